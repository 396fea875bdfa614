package archive

import (
	"bytes"
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var cssCharsetRule = regexp.MustCompile(`^@charset\s+["']([A-Za-z0-9_.:-]+)["']\s*;`)

func contentTypeFor(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".html", ".htm":
		return "text/html"
	case ".css":
		return "text/css"
	default:
		return "text/plain"
	}
}

func decodeText(raw []byte, contentType string) (string, error) {
	if hasUnicodeBOM(raw) {
		// BOMOverride picks UTF-8 or UTF-16 from the mark and strips it.
		out, _, err := transform.Bytes(unicode.BOMOverride(encoding.Nop.NewDecoder()), raw)
		if err != nil {
			return "", err
		}
		return validUTF8(out)
	}

	if utf8.Valid(raw) {
		return string(raw), nil
	}

	enc := lookupDeclared(raw, contentType)
	if enc == nil {
		enc, _, _ = charset.DetermineEncoding(raw, contentType)
	}

	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("transcode: %w", err)
	}
	return validUTF8(out)
}

func hasUnicodeBOM(raw []byte) bool {
	return bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}) ||
		bytes.HasPrefix(raw, []byte{0xFF, 0xFE}) ||
		bytes.HasPrefix(raw, []byte{0xFE, 0xFF})
}

// lookupDeclared honours a leading CSS @charset rule.
func lookupDeclared(raw []byte, contentType string) encoding.Encoding {
	if contentType != "text/css" {
		return nil
	}
	m := cssCharsetRule.FindSubmatch(raw)
	if m == nil {
		return nil
	}
	enc, _ := charset.Lookup(string(m[1]))
	return enc
}

func validUTF8(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", fmt.Errorf("content is not valid UTF-8 after decoding")
	}
	return string(b), nil
}
