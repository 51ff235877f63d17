package objectstore

import (
	"context"
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"
)

func TestObjectErrorMapsMissingKeys(t *testing.T) {
	require.NoError(t, objectError("b", "k", nil))

	err := objectError("run-snapshots", "runs/11/101/snapshot.json", minio.ErrorResponse{Code: "NoSuchKey"})
	require.ErrorIs(t, err, ErrObjectNotFound)
	require.Contains(t, err.Error(), "run-snapshots/runs/11/101/snapshot.json")

	denied := minio.ErrorResponse{Code: "AccessDenied"}
	err = objectError("b", "k", denied)
	require.False(t, errors.Is(err, ErrObjectNotFound))
	require.Equal(t, "AccessDenied", minio.ToErrorResponse(errors.Unwrap(err)).Code)
}

func TestUninitializedMinioStore(t *testing.T) {
	var store *MinioStore
	ctx := context.Background()
	_, err := store.Stat(ctx, "b", "k")
	require.ErrorIs(t, err, errStoreNotReady)
	_, _, err = store.Get(ctx, "b", "k")
	require.ErrorIs(t, err, errStoreNotReady)
	require.ErrorIs(t, (&MinioStore{}).Delete(ctx, "b", "k"), errStoreNotReady)
}
