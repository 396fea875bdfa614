package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const prefix = "https://project.example.co/storage/v1/object/public/templates/"

func TestStore_UploadReturnsPublicURL(t *testing.T) {
	backend := NewMemBackend("templates")
	store := NewStore(backend, prefix)

	url, err := store.Upload(context.Background(), ObjectKey("t-1", "css/main.css"), []byte("body{}"), "")
	require.NoError(t, err)
	assert.Equal(t, prefix+"t-1/css/main.css", url)

	body, err := backend.Get(context.Background(), "t-1/css/main.css")
	require.NoError(t, err)
	assert.Equal(t, "body{}", string(body))

	keys, err := backend.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"t-1/css/main.css"}, keys)
}

func TestStore_PublicURLEscapesSegments(t *testing.T) {
	store := NewStore(NewMemBackend("templates"), "https://cdn.example.com/public")

	assert.Equal(t,
		"https://cdn.example.com/public/t-1/images/hero%20shot.png",
		store.PublicURL("t-1/images/hero shot.png"))
	assert.Equal(t, "https://cdn.example.com/public/", store.PublicPrefix())
}

func TestFSBackend_RejectsEmptyKey(t *testing.T) {
	backend := NewMemBackend("templates")
	err := backend.Put(context.Background(), "", []byte("x"), "text/plain")
	require.Error(t, err)
}

func TestFSBackend_KeysOnEmptyBucket(t *testing.T) {
	keys, err := NewMemBackend("templates").Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"a/main.css":     "text/css",
		"a/logo.SVG":     "image/svg+xml",
		"a/font.woff2":   "font/woff2",
		"a/app.js":       "application/javascript",
		"a/photo.jpeg":   "image/jpeg",
		"a/unknown.zzzz": "application/octet-stream",
	}
	for key, want := range tests {
		t.Run(key, func(t *testing.T) {
			assert.Equal(t, want, ContentTypeFor(key))
		})
	}
}

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.PutObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.GetObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestS3Backend_Put(t *testing.T) {
	client := new(mockS3)
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Bucket == "templates" &&
			*in.Key == "t-1/img/a.png" &&
			*in.ContentType == "image/png" &&
			*in.ContentLength == 3
	})).Return(&s3.PutObjectOutput{}, nil)

	store := NewStore(NewS3BackendWithClient(client, "templates"), prefix)
	url, err := store.Upload(context.Background(), "t-1/img/a.png", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, prefix+"t-1/img/a.png", url)
	client.AssertExpectations(t)
}

func TestS3Backend_PutErrorIsWrapped(t *testing.T) {
	client := new(mockS3)
	client.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

	store := NewStore(NewS3BackendWithClient(client, "templates"), prefix)
	_, err := store.Upload(context.Background(), "t-1/a.js", []byte("x"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3 put t-1/a.js")
	assert.Contains(t, err.Error(), "access denied")
}

type mockMinio struct {
	mock.Mock
}

func (m *mockMinio) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *mockMinio) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucketName).Error(0)
}

func (m *mockMinio) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, objectSize, opts.ContentType)
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: objectSize}, args.Error(0)
}

func TestMinioBackend_EnsureBucketCreatesMissing(t *testing.T) {
	client := new(mockMinio)
	client.On("BucketExists", mock.Anything, "templates").Return(false, nil)
	client.On("MakeBucket", mock.Anything, "templates").Return(nil)

	backend := NewMinioBackendWithClient(client, "templates")
	require.NoError(t, backend.EnsureBucket(context.Background()))
	client.AssertExpectations(t)
}

func TestMinioBackend_Put(t *testing.T) {
	client := new(mockMinio)
	client.On("PutObject", mock.Anything, "templates", "t-1/main.css", int64(6), "text/css").Return(nil)

	backend := NewMinioBackendWithClient(client, "templates")
	require.NoError(t, backend.Put(context.Background(), "t-1/main.css", []byte("body{}"), "text/css"))
	assert.Equal(t, "minio", backend.Name())
	client.AssertExpectations(t)
}
