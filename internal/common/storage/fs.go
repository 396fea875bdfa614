package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FSBackend writes objects under root/bucket on an afero filesystem.
type FSBackend struct {
	fs     afero.Fs
	prefix string
}

func NewFSBackend(fs afero.Fs, root, bucket string) *FSBackend {
	return &FSBackend{fs: fs, prefix: filepath.Join(root, bucket)}
}

func NewOSBackend(root, bucket string) *FSBackend {
	return NewFSBackend(afero.NewOsFs(), root, bucket)
}

func NewMemBackend(bucket string) *FSBackend {
	return NewFSBackend(afero.NewMemMapFs(), "/", bucket)
}

func (b *FSBackend) Name() string { return "fs" }

func (b *FSBackend) Put(ctx context.Context, key string, body []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := b.resolve(key)
	if err != nil {
		return err
	}
	if err := b.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(b.fs, target, body, 0o644)
}

func (b *FSBackend) Get(_ context.Context, key string) ([]byte, error) {
	target, err := b.resolve(key)
	if err != nil {
		return nil, err
	}
	return afero.ReadFile(b.fs, target)
}

// Keys lists every stored object key, slash-separated.
func (b *FSBackend) Keys() ([]string, error) {
	var keys []string
	exists, err := afero.DirExists(b.fs, b.prefix)
	if err != nil || !exists {
		return nil, err
	}
	err = afero.Walk(b.fs, b.prefix, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.prefix, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// resolve keeps keys from escaping the bucket directory.
func (b *FSBackend) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "\x00") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(b.prefix, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}
