// Package archive loads an uploaded ZIP template into an ordered, read-only
// list of entries and locates the site root inside it.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"template-ingest/internal/common/errors"
)

// Archive is an immutable view over the entries of one ZIP payload.
type Archive struct {
	entries []Entry
	size    int64
}

// Entry is a single stored path. Content is decoded on demand.
type Entry struct {
	Path  string
	IsDir bool

	file *zip.File
}

// Load parses data as a ZIP container. Entries keep archive storage order.
func Load(data []byte) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.NewCorruptArchiveError(err)
	}

	entries := make([]Entry, 0, len(zr.File))
	for _, f := range zr.File {
		// some Windows tools store backslash separators
		name := strings.ReplaceAll(f.Name, "\\", "/")
		entries = append(entries, Entry{
			Path:  name,
			IsDir: f.FileInfo().IsDir() || strings.HasSuffix(name, "/"),
			file:  f,
		})
	}

	return &Archive{entries: entries, size: int64(len(data))}, nil
}

// Entries returns a fresh copy of the entry list on every call.
func (a *Archive) Entries() []Entry {
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

func (a *Archive) Len() int {
	return len(a.entries)
}

// Size is the compressed payload size in bytes.
func (a *Archive) Size() int64 {
	return a.size
}

// ReadBinary returns the raw, uncompressed content of the entry.
func (e Entry) ReadBinary() ([]byte, error) {
	if e.IsDir {
		return nil, fmt.Errorf("%s is a directory", e.Path)
	}
	if e.file == nil {
		return nil, fmt.Errorf("%s has no backing file", e.Path)
	}

	rc, err := e.file.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", e.Path, err)
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", e.Path, err)
	}
	return body, nil
}

// ReadText returns the entry content as UTF-8. Failures are DECODE_FAILED errors.
func (e Entry) ReadText() (string, error) {
	raw, err := e.ReadBinary()
	if err != nil {
		return "", errors.NewDecodeFailedError(e.Path, err)
	}

	text, err := decodeText(raw, contentTypeFor(e.Path))
	if err != nil {
		return "", errors.NewDecodeFailedError(e.Path, err)
	}
	return text, nil
}

// NewEntry builds an Entry without a backing file; only the path is usable.
func NewEntry(path string, isDir bool) Entry {
	return Entry{Path: path, IsDir: isDir}
}
