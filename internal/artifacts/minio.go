package artifacts

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MockupStore keeps rendered mockup images in S3-compatible object storage.
// The document store only ever holds the refs this type hands out.
type MockupStore struct {
	client *minio.Client
	bucket string
}

// NewMockupStore creates the client and ensures the bucket exists.
func NewMockupStore(cfg *Config) (*MockupStore, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("artifacts: minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("artifacts: minio new: %w", err)
	}
	s := &MockupStore{client: mc, bucket: cfg.Bucket}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		// tolerate pre-existing bucket
		exist, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("artifacts: minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

// Put stores one rendered mockup under mockups/<slug>/<name> and returns the
// object key used as the mockup ref.
func (s *MockupStore) Put(ctx context.Context, slug, name string, reader io.Reader, size int64, contentType string) (string, error) {
	key := path.Join("mockups", slug, name)
	if _, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return "", fmt.Errorf("artifacts: put %s: %w", key, err)
	}
	return key, nil
}

// Open returns a ReadCloser for a stored mockup ref.
func (s *MockupStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

// PresignedURL returns a presigned GET URL for a mockup ref, suitable for
// handing to the storefront image upload.
func (s *MockupStore) PresignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, expires, url.Values{})
	if err != nil {
		return "", err
	}
	return presigned.String(), nil
}
