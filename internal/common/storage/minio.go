package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"template-ingest/internal/common/config"
)

// MinioAPI is the subset of *minio.Client the backend needs.
type MinioAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type MinioBackend struct {
	client MinioAPI
	bucket string
}

func NewMinioBackend(ctx context.Context, cfg config.StorageConfig) (*MinioBackend, error) {
	client, err := minio.New(cfg.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Minio.AccessKey, cfg.Minio.SecretKey, ""),
		Secure: cfg.Minio.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	backend := NewMinioBackendWithClient(client, cfg.Bucket)
	if err := backend.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return backend, nil
}

func NewMinioBackendWithClient(client MinioAPI, bucket string) *MinioBackend {
	return &MinioBackend{client: client, bucket: bucket}
}

// EnsureBucket creates the bucket on first start.
func (b *MinioBackend) EnsureBucket(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", b.bucket, err)
	}
	if exists {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", b.bucket, err)
	}
	return nil
}

func (b *MinioBackend) Name() string { return "minio" }

func (b *MinioBackend) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}
