package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned when a key does not exist in its bucket.
var ErrObjectNotFound = errors.New("object not found")

// Store is the subset of an S3-compatible bucket API the snapshot archive
// needs. Implementations wrap a missing key in ErrObjectNotFound.
type Store interface {
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error)
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
	Delete(ctx context.Context, bucket, key string) error
}

// ObjectInfo describes a stored object. Size is what Load checks against its
// read limit; LastModified tells when a run was last archived.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}
