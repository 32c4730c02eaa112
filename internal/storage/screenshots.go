// Package storage persists check screenshots in S3-compatible object
// storage and mints short-lived download links for the admin API.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ScreenshotStore is the object-storage surface the check pipeline needs.
type ScreenshotStore interface {
	// Save uploads a PNG under path and returns the stored object path.
	Save(ctx context.Context, path string, png []byte) (string, error)
	// SignedURL returns a time-limited download URL for a stored object.
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// MinioStore stores screenshots in a single bucket on any S3-compatible
// endpoint (MinIO, AWS, etc.).
type MinioStore struct {
	client *minio.Client
	bucket string

	// UploadTimeout bounds each Save independently of the caller's
	// deadline. Zero means 15s.
	UploadTimeout time.Duration
}

// NewMinioStore connects to the endpoint and ensures the bucket exists.
func NewMinioStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	if endpoint == "" || bucket == "" {
		return nil, fmt.Errorf("storage: endpoint and bucket are required")
	}
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: connect %s: %w", endpoint, err)
	}
	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("storage: create bucket %s: %w", bucket, err)
		}
	}
	return &MinioStore{client: cli, bucket: bucket}, nil
}

func (s *MinioStore) Save(ctx context.Context, path string, png []byte) (string, error) {
	timeout := s.UploadTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := s.client.PutObject(ctx, s.bucket, path, bytes.NewReader(png), int64(len(png)),
		minio.PutObjectOptions{ContentType: "image/png"})
	if err != nil {
		return "", fmt.Errorf("storage: put %s: %w", path, err)
	}
	return path, nil
}

func (s *MinioStore) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, path, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("storage: sign %s: %w", path, err)
	}
	return u.String(), nil
}

// ObjectPath builds the storage key for one check's screenshot:
// checks/{date}/{client-slug}/{time}.png.
func ObjectPath(slug string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("checks/%s/%s/%s.png", at.Format("2006-01-02"), slug, at.Format("15-04-05"))
}
