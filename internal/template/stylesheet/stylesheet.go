// Package stylesheet rewrites url() and @import references in CSS text so
// they point at relocated public URLs.
package stylesheet

import (
	"bytes"
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// Lookup maps a root-relative asset path to its public URL.
type Lookup func(relativePath string) (string, bool)

// Result describes one rewrite.
type Result struct {
	Text       string
	Rewritten  int
	Unresolved []string
}

// Rewrite replaces every url() (and @import string) whose reference, resolved
// against the directory of sheetPath, is known to lookup. Everything else,
// comments included, is emitted byte for byte.
func Rewrite(text, sheetPath string, lookup Lookup) Result {
	lexer := css.NewLexer(parse.NewInputString(text))

	var (
		buf         strings.Builder
		res         Result
		afterImport bool
	)
	buf.Grow(len(text))

	for {
		tt, data := lexer.Next()
		if tt == css.ErrorToken {
			if lexer.Err() != io.EOF {
				return Result{Text: text}
			}
			break
		}

		switch tt {
		case css.URLToken:
			ref := unwrapURL(data)
			if out, ok := substitute(ref, sheetPath, lookup, &res); ok {
				buf.WriteString(`url("` + out + `")`)
				afterImport = false
				continue
			}
		case css.StringToken:
			if afterImport {
				if out, ok := substitute(unquote(data), sheetPath, lookup, &res); ok {
					buf.WriteString(`"` + out + `"`)
					afterImport = false
					continue
				}
			}
		}

		switch tt {
		case css.AtKeywordToken:
			afterImport = bytes.EqualFold(data, []byte("@import"))
		case css.WhitespaceToken, css.CommentToken:
		default:
			afterImport = false
		}
		buf.Write(data)
	}

	res.Text = buf.String()
	return res
}

func substitute(ref, sheetPath string, lookup Lookup, res *Result) (string, bool) {
	rel, suffix, ok := Resolve(sheetPath, ref)
	if !ok {
		return "", false
	}
	publicURL, found := lookup(rel)
	if !found {
		res.Unresolved = append(res.Unresolved, rel)
		return "", false
	}
	res.Rewritten++
	return publicURL + suffix, true
}

// unwrapURL extracts the reference from a url(...) token.
func unwrapURL(tok []byte) string {
	s := string(tok)
	if len(s) >= 4 && strings.EqualFold(s[:4], "url(") {
		s = s[4:]
	}
	s = strings.TrimSuffix(s, ")")
	return unquote([]byte(strings.TrimSpace(s)))
}

func unquote(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}

// References lists the root-relative path of every url() and @import in
// text, resolved against sheetPath, in source order.
func References(text, sheetPath string) []string {
	return Rewrite(text, sheetPath, func(string) (string, bool) { return "", false }).Unresolved
}
