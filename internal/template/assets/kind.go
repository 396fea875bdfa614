// Package assets classifies archive entries, relocates them to durable
// storage and records where each one ended up.
package assets

import (
	"path"
	"strings"
)

type Kind string

const (
	KindMarkup     Kind = "markup"
	KindStylesheet Kind = "stylesheet"
	KindBinary     Kind = "binary"
	KindIgnored    Kind = "ignored"
)

var binaryExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".svg": true,
	".ttf": true, ".otf": true, ".eot": true, ".woff": true, ".woff2": true, ".js": true,
}

var previewExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// Classify decides how a root-relative path is handled. Extensions are
// matched case-insensitively.
func Classify(relativePath string) Kind {
	ext := strings.ToLower(path.Ext(relativePath))
	switch {
	case ext == ".html" || ext == ".htm":
		return KindMarkup
	case ext == ".css":
		return KindStylesheet
	case binaryExtensions[ext]:
		return KindBinary
	default:
		return KindIgnored
	}
}

// IsPreviewImage reports raster images eligible for the gallery. SVG is not.
func IsPreviewImage(relativePath string) bool {
	return previewExtensions[strings.ToLower(path.Ext(relativePath))]
}
