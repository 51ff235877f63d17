package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"

	platformstore "github.com/animus-labs/runstate/internal/platform/objectstore"
)

var errStoreNotReady = errors.New("minio store not initialized")

// MinioStore implements Store on a MinIO or other S3-compatible endpoint.
type MinioStore struct {
	client *minio.Client
}

// NewMinioStore connects to the endpoint in cfg and creates the snapshots
// bucket when it does not exist yet.
func NewMinioStore(ctx context.Context, cfg platformstore.Config) (*MinioStore, error) {
	client, err := platformstore.NewMinIOClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := platformstore.EnsureBuckets(ctx, client, cfg); err != nil {
		return nil, err
	}
	return &MinioStore{client: client}, nil
}

func (s *MinioStore) ready() error {
	if s == nil || s.client == nil {
		return errStoreNotReady
	}
	return nil
}

func (s *MinioStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	return objectError(bucket, key, err)
}

// Get stats the object first so that a missing key fails here rather than on
// the first read of the returned body.
func (s *MinioStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error) {
	info, err := s.Stat(ctx, bucket, key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, objectError(bucket, key, err)
	}
	return obj, info, nil
}

func (s *MinioStore) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	if err := s.ready(); err != nil {
		return ObjectInfo{}, err
	}
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, objectError(bucket, key, err)
	}
	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
	}, nil
}

func (s *MinioStore) Delete(ctx context.Context, bucket, key string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return objectError(bucket, key, s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}))
}

// objectError names the object in err and maps a missing key to
// ErrObjectNotFound.
func objectError(bucket, key string, err error) error {
	if err == nil {
		return nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%s/%s: %w", bucket, key, ErrObjectNotFound)
	}
	return fmt.Errorf("%s/%s: %w", bucket, key, err)
}

var _ Store = (*MinioStore)(nil)
