package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

const snapshotContentType = "application/json"

// maxSnapshotBytes bounds how much of an archived object Load reads.
const maxSnapshotBytes = 64 << 20

// SnapshotArchive stores encoded run snapshots under
// runs/<projectId>/<runId>/snapshot.json. It does not interpret the bytes.
type SnapshotArchive struct {
	store  Store
	bucket string
}

func NewSnapshotArchive(store Store, bucket string) (*SnapshotArchive, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &SnapshotArchive{store: store, bucket: bucket}, nil
}

// SnapshotKey returns the object key for a run.
func SnapshotKey(projectID, runID string) (string, error) {
	projectID = strings.TrimSpace(projectID)
	runID = strings.TrimSpace(runID)
	if projectID == "" || runID == "" {
		return "", errors.New("project id and run id are required")
	}
	for _, part := range []string{projectID, runID} {
		if strings.Contains(part, "/") || part == "." || part == ".." {
			return "", fmt.Errorf("invalid key segment %q", part)
		}
	}
	return path.Join("runs", projectID, runID, "snapshot.json"), nil
}

func (a *SnapshotArchive) Save(ctx context.Context, projectID, runID string, payload []byte) (string, error) {
	key, err := SnapshotKey(projectID, runID)
	if err != nil {
		return "", err
	}
	if err := a.store.Put(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)), snapshotContentType); err != nil {
		return "", fmt.Errorf("archive snapshot %s: %w", key, err)
	}
	return key, nil
}

func (a *SnapshotArchive) Load(ctx context.Context, projectID, runID string) ([]byte, error) {
	key, err := SnapshotKey(projectID, runID)
	if err != nil {
		return nil, err
	}
	body, info, err := a.store.Get(ctx, a.bucket, key)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	defer body.Close()
	if info.Size > maxSnapshotBytes {
		return nil, fmt.Errorf("load snapshot %s: %d bytes exceeds limit", key, info.Size)
	}
	raw, err := io.ReadAll(io.LimitReader(body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", key, err)
	}
	return raw, nil
}

func (a *SnapshotArchive) Delete(ctx context.Context, projectID, runID string) error {
	key, err := SnapshotKey(projectID, runID)
	if err != nil {
		return err
	}
	return a.store.Delete(ctx, a.bucket, key)
}

// Exists reports whether a snapshot is archived for the run.
func (a *SnapshotArchive) Exists(ctx context.Context, projectID, runID string) (bool, error) {
	key, err := SnapshotKey(projectID, runID)
	if err != nil {
		return false, err
	}
	if _, err := a.store.Stat(ctx, a.bucket, key); err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
