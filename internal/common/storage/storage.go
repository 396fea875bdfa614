// Package storage writes relocated template assets to durable object storage
// and derives their public URLs.
package storage

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"

	"template-ingest/internal/common/config"
)

// Backend is a bucket-scoped object writer. Put is an upsert.
type Backend interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Name() string
}

// Reader is implemented by backends that can read objects back.
type Reader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Store pairs a Backend with the public URL scheme of its bucket.
type Store struct {
	backend      Backend
	publicPrefix string
}

func NewStore(backend Backend, publicPrefix string) *Store {
	if !strings.HasSuffix(publicPrefix, "/") {
		publicPrefix += "/"
	}
	return &Store{backend: backend, publicPrefix: publicPrefix}
}

// NewStoreFromConfig builds the backend selected by storage.backend.
func NewStoreFromConfig(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	var (
		backend Backend
		err     error
	)

	switch cfg.Backend {
	case config.StorageBackendS3:
		backend, err = NewS3Backend(ctx, cfg)
	case config.StorageBackendMinio:
		backend, err = NewMinioBackend(ctx, cfg)
	case config.StorageBackendLocal:
		backend = NewOSBackend(cfg.Local.Root, cfg.Bucket)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	return NewStore(backend, cfg.PublicPrefix()), nil
}

// Upload writes body under key and returns the object's public URL.
func (s *Store) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}
	if err := s.backend.Put(ctx, key, body, contentType); err != nil {
		return "", fmt.Errorf("%s put %s: %w", s.backend.Name(), key, err)
	}
	return s.PublicURL(key), nil
}

// PublicURL escapes each key segment; the key itself is stored verbatim.
func (s *Store) PublicURL(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicPrefix + strings.Join(segments, "/")
}

// PublicPrefix is the URL every object of this store starts with.
func (s *Store) PublicPrefix() string {
	return s.publicPrefix
}

func (s *Store) Backend() Backend {
	return s.backend
}

// ObjectKey joins a template id and a root-relative asset path.
func ObjectKey(templateID, relativePath string) string {
	return templateID + "/" + relativePath
}

var knownTypes = map[string]string{
	".css":   "text/css",
	".html":  "text/html; charset=utf-8",
	".js":    "application/javascript",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".png":   "image/png",
	".gif":   "image/gif",
	".webp":  "image/webp",
	".svg":   "image/svg+xml",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
	".eot":   "application/vnd.ms-fontobject",
}

// ContentTypeFor guesses a MIME type from the key's extension.
func ContentTypeFor(key string) string {
	ext := strings.ToLower(path.Ext(key))
	if ct, ok := knownTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
