package markup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cdn = "https://cdn.example.com/t-1/"

func urlsFor(paths ...string) map[string]string {
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		out[p] = cdn + p
	}
	return out
}

// ==========================
// Attributes
// ==========================

func TestRewrite_Attributes(t *testing.T) {
	urls := urlsFor("css/style.css", "img/logo.png", "js/app.js", "video/p.jpg")
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "link href",
			src:  `<link rel="stylesheet" href="css/style.css">`,
			want: `<link rel="stylesheet" href="` + cdn + `css/style.css">`,
		},
		{
			name: "img src upper case attribute",
			src:  `<IMG SRC="img/logo.png" alt="Logo">`,
			want: `<img src="` + cdn + `img/logo.png" alt="Logo">`,
		},
		{
			name: "script src single quoted",
			src:  `<script src='js/app.js'></script>`,
			want: `<script src="` + cdn + `js/app.js"></script>`,
		},
		{
			name: "poster and dot slash",
			src:  `<video poster="./video/p.jpg"></video>`,
			want: `<video poster="` + cdn + `video/p.jpg"></video>`,
		},
		{
			name: "srcset",
			src:  `<img srcset="img/logo.png 1x, img/missing.png 2x">`,
			want: `<img srcset="` + cdn + `img/logo.png 1x, img/missing.png 2x">`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Rewrite(tt.src, urls)
			assert.Equal(t, tt.want, res.HTML)
			assert.Equal(t, 1, res.Rewritten)
		})
	}
}

func TestRewrite_UnchangedTokensAreVerbatim(t *testing.T) {
	src := "<!DOCTYPE html>\n<HTML lang=en>\n<!-- <img src=\"img/logo.png\"> -->\n" +
		"<a href=\"about.html\" class = 'x'>About</a>\n" +
		"<script>var s = \"img/logo.png\"; if (a < b) {}</script>\n</HTML>"

	res := Rewrite(src, urlsFor("img/logo.png"))

	assert.Equal(t, src, res.HTML)
	assert.Zero(t, res.Rewritten)
	assert.Contains(t, res.Unresolved, "about.html")
}

// ==========================
// Inline CSS
// ==========================

func TestRewrite_InlineStyles(t *testing.T) {
	src := `<head><style>.a{background:url(img/bg.jpg)}</style></head>` +
		`<div style="background-image: url('img/bg.jpg')">x</div>`

	res := Rewrite(src, urlsFor("img/bg.jpg"))

	assert.Equal(t,
		`<head><style>.a{background:url("`+cdn+`img/bg.jpg")}</style></head>`+
			`<div style="background-image: url(&#34;`+cdn+`img/bg.jpg&#34;)">x</div>`,
		res.HTML)
	assert.Equal(t, 2, res.Rewritten)
}

// ==========================
// Properties
// ==========================

func TestRewrite_LongestPathWins(t *testing.T) {
	urls := map[string]string{
		"img/a.png":        "https://cdn.example.com/short.png",
		"assets/img/a.png": "https://cdn.example.com/long.png",
	}

	res := Rewrite(`<img src="assets/img/a.png"><img src="img/a.png">`, urls)

	assert.Equal(t,
		`<img src="https://cdn.example.com/long.png"><img src="https://cdn.example.com/short.png">`,
		res.HTML)
}

func TestRewrite_Idempotent(t *testing.T) {
	urls := urlsFor("css/style.css", "img/logo.png", "img/bg.jpg")
	src := `<link href="css/style.css" rel="stylesheet"><img src="img/logo.png">` +
		`<section style="background:url(img/bg.jpg)"></section>`

	once := Rewrite(src, urls).HTML
	twice := Rewrite(once, urls)

	assert.Equal(t, once, twice.HTML)
	assert.Zero(t, twice.Rewritten)
	assert.NotContains(t, once, `"img/logo.png"`)
}

func TestRewrite_EmptyMap(t *testing.T) {
	src := `<p><img src="img/logo.png"></p>`
	res := Rewrite(src, nil)
	require.Equal(t, src, res.HTML)
	assert.True(t, strings.HasPrefix(res.HTML, "<p>"))
}
