package archive

import (
	"strings"

	"template-ingest/internal/common/errors"
)

const EntryPoint = "index.html"

// ResolveRoot returns the directory prefix (with trailing slash, or empty)
// of the first entry whose path ends in index.html.
func ResolveRoot(entries []Entry) (string, error) {
	for _, e := range entries {
		if e.IsDir || !strings.HasSuffix(e.Path, EntryPoint) {
			continue
		}
		if i := strings.LastIndex(e.Path, "/"); i >= 0 {
			return e.Path[:i+1], nil
		}
		return "", nil
	}
	return "", errors.NewMissingEntryPointError()
}

// Relative strips root from p. ok is false for entries outside the root.
func Relative(root, p string) (string, bool) {
	if !strings.HasPrefix(p, root) {
		return "", false
	}
	return p[len(root):], true
}
