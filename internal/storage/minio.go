// Package storage wraps MinIO object storage. Uploaded documents live in a
// bucket keyed {project_id}/{document_id}; ingestion downloads them from
// here before loading and chunking.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	qerr "github.com/docuquery/docuquery/internal/errors"
)

// ObjectStore is the storage surface ingestion depends on.
type ObjectStore interface {
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, key string) error
}

// Config configures the MinIO connection.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOStore implements ObjectStore against a single MinIO bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

var _ ObjectStore = (*MinIOStore)(nil)

// NewMinIOStore connects to MinIO and ensures the bucket exists.
func NewMinIOStore(ctx context.Context, cfg Config) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	s := &MinIOStore{client: client, bucket: cfg.Bucket}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinIOStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	slog.Info("bucket created", slog.String("bucket", s.bucket))
	return nil
}

// Download returns the object's content and its stored content type.
func (s *MinIOStore) Download(ctx context.Context, key string) (io.ReadCloser, string, error) {
	// Stat first: GetObject errors lazily on read, Stat fails fast on a
	// missing key.
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, "", qerr.New(qerr.ErrCodeStorageDownload,
			fmt.Sprintf("failed to stat object %s", key), err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", qerr.New(qerr.ErrCodeStorageDownload,
			fmt.Sprintf("failed to download object %s", key), err)
	}
	return obj, info.ContentType, nil
}

// Upload stores an object. Pass size -1 when unknown.
func (s *MinIOStore) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", key, err)
	}
	slog.Debug("object uploaded", slog.String("key", key), slog.Int64("size", size))
	return nil
}

// Remove deletes an object. Removing an absent key is not an error.
func (s *MinIOStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object %s: %w", key, err)
	}
	return nil
}
