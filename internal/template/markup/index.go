package markup

import (
	"template-ingest/internal/template/stylesheet"
)

// index matches whole attribute values against asset paths. Because a value
// is only ever compared in full, a short path such as img/a.png can never
// claim part of assets/img/a.png.
type index struct {
	urls map[string]string
}

func newIndex(urls map[string]string) *index {
	return &index{urls: urls}
}

func (x *index) lookup(rel string) (string, bool) {
	u, ok := x.urls[rel]
	return u, ok
}

// match tries the literal attribute value, then its cleaned root-relative
// form. rel is the cleaned path, or empty when value is not rewritable.
func (x *index) match(value string) (publicURL, rel string, ok bool) {
	if u, found := x.urls[value]; found {
		return u, value, true
	}
	rel, suffix, resolvable := stylesheet.Resolve(DocumentPath, value)
	if !resolvable {
		return "", "", false
	}
	if u, found := x.urls[rel]; found {
		return u + suffix, rel, true
	}
	return "", rel, false
}
