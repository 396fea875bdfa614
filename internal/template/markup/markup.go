// Package markup rewrites asset references in an HTML document to their
// relocated public URLs.
package markup

import (
	"io"
	"strings"

	"golang.org/x/net/html"

	"template-ingest/internal/template/stylesheet"
)

// DocumentPath is where the entry page lives relative to the site root.
const DocumentPath = "index.html"

// attributes holding a single URL. Keys are compared lower-cased.
var urlAttributes = map[string]bool{
	"href":            true,
	"src":             true,
	"poster":          true,
	"data-src":        true,
	"data-bg":         true,
	"data-background": true,
	"xlink:href":      true,
}

var srcsetAttributes = map[string]bool{
	"srcset":      true,
	"data-srcset": true,
}

type Result struct {
	HTML       string
	Rewritten  int
	Unresolved []string
}

// Rewrite substitutes every reference in src whose value, or cleaned
// root-relative form, is a key of urls. Tokens that do not change are
// copied verbatim; script bodies and comments are never touched.
func Rewrite(src string, urls map[string]string) Result {
	r := &rewriter{index: newIndex(urls)}

	z := html.NewTokenizer(strings.NewReader(src))
	var (
		buf     strings.Builder
		inStyle bool
	)
	buf.Grow(len(src))

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				return Result{HTML: src}
			}
			break
		}

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			// TagName lower-cases the tokenizer buffer in place
			raw := string(z.Raw())
			tok := z.Token()
			inStyle = tt == html.StartTagToken && tok.Data == "style"
			if r.rewriteTag(&tok) {
				buf.WriteString(tok.String())
			} else {
				buf.WriteString(raw)
			}
		case html.EndTagToken:
			inStyle = false
			buf.Write(z.Raw())
		case html.TextToken:
			if inStyle {
				buf.WriteString(r.rewriteCSS(string(z.Raw())))
			} else {
				buf.Write(z.Raw())
			}
		default:
			buf.Write(z.Raw())
		}
	}

	return Result{HTML: buf.String(), Rewritten: r.rewritten, Unresolved: r.unresolved}
}

type rewriter struct {
	index      *index
	rewritten  int
	unresolved []string
}

func (r *rewriter) rewriteTag(tok *html.Token) bool {
	changed := false
	for i := range tok.Attr {
		attr := &tok.Attr[i]
		key := attr.Key
		if attr.Namespace != "" {
			key = attr.Namespace + ":" + key
		}

		var (
			next string
			ok   bool
		)
		switch {
		case urlAttributes[key]:
			next, ok = r.rewriteURL(attr.Val)
		case srcsetAttributes[key]:
			next, ok = r.rewriteSrcset(attr.Val)
		case key == "style":
			next = r.rewriteCSS(attr.Val)
			ok = next != attr.Val
		}
		if ok {
			attr.Val = next
			changed = true
		}
	}
	return changed
}

func (r *rewriter) rewriteURL(value string) (string, bool) {
	publicURL, rel, found := r.index.match(value)
	if found {
		r.rewritten++
		return publicURL, true
	}
	if rel != "" {
		r.unresolved = append(r.unresolved, rel)
	}
	return value, false
}

// rewriteSrcset handles "a.png 1x, b.png 2x" candidate lists.
func (r *rewriter) rewriteSrcset(value string) (string, bool) {
	if strings.Contains(value, "data:") {
		return value, false
	}
	candidates := strings.Split(value, ",")
	changed := false
	for i, c := range candidates {
		fields := strings.Fields(c)
		if len(fields) == 0 {
			continue
		}
		if next, ok := r.rewriteURL(fields[0]); ok {
			fields[0] = next
			changed = true
		}
		candidates[i] = strings.Join(fields, " ")
	}
	if !changed {
		return value, false
	}
	return strings.Join(candidates, ", "), true
}

func (r *rewriter) rewriteCSS(text string) string {
	res := stylesheet.Rewrite(text, DocumentPath, r.index.lookup)
	r.rewritten += res.Rewritten
	r.unresolved = append(r.unresolved, res.Unresolved...)
	return res.Text
}
