package stylesheet

import (
	"net/url"
	"path"
	"strings"
)

// Resolve turns ref, as written inside the file at basePath, into a
// root-relative asset path. suffix carries any query or fragment so it can be
// re-attached to the public URL. ok is false for references that are never
// rewritten: empty, data URIs, absolute or protocol-relative URLs and pure
// fragments. Segments that climb above the root are dropped.
func Resolve(basePath, ref string) (rel, suffix string, ok bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "//") {
		return "", "", false
	}
	if hasScheme(ref) {
		return "", "", false
	}

	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref, suffix = ref[:i], ref[i:]
	}
	if ref == "" {
		return "", "", false
	}
	if unescaped, err := url.PathUnescape(ref); err == nil {
		ref = unescaped
	}

	var joined string
	if strings.HasPrefix(ref, "/") {
		joined = path.Clean(strings.TrimPrefix(ref, "/"))
	} else {
		joined = path.Join(path.Dir(basePath), ref)
	}
	// like URL resolution, ".." at the root stays at the root
	for joined == ".." || strings.HasPrefix(joined, "../") {
		joined = strings.TrimPrefix(strings.TrimPrefix(joined, ".."), "/")
	}
	if joined == "" || joined == "." {
		return "", "", false
	}
	return joined, suffix, true
}

// hasScheme reports an RFC 3986 scheme prefix such as http:, data: or mailto:.
func hasScheme(ref string) bool {
	for i := 0; i < len(ref); i++ {
		c := ref[i]
		switch {
		case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		case c == ':' && i > 0:
			return true
		default:
			return false
		}
	}
	return false
}
