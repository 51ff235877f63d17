package objectstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Endpoint:        "localhost:9000",
		AccessKey:       "a",
		SecretKey:       "b",
		Region:          "us-east-1",
		BucketSnapshots: "run-snapshots",
	}
	require.NoError(t, valid.Validate())

	invalid := valid
	invalid.Endpoint = "http://localhost:9000"
	require.ErrorContains(t, invalid.Validate(), "scheme")

	invalid = valid
	invalid.BucketSnapshots = " "
	require.Error(t, invalid.Validate())
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("RUNSTATE_MINIO_BUCKET_SNAPSHOTS", "snaps")
	t.Setenv("RUNSTATE_MINIO_USE_SSL", "true")
	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, "snaps", cfg.BucketSnapshots)
	require.True(t, cfg.UseSSL)

	t.Setenv("RUNSTATE_MINIO_USE_SSL", "maybe")
	_, err = ConfigFromEnv()
	require.Error(t, err)
}

func TestNewMinIOClient(t *testing.T) {
	client, err := NewMinIOClient(Config{
		Endpoint:        "localhost:9000",
		AccessKey:       "a",
		SecretKey:       "b",
		Region:          "us-east-1",
		BucketSnapshots: "run-snapshots",
	})
	require.NoError(t, err)
	require.Equal(t, "localhost:9000", client.EndpointURL().Host)

	_, err = NewMinIOClient(Config{})
	require.Error(t, err)
}
