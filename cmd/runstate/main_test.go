package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/animus-labs/runstate/internal/domain"
	"github.com/animus-labs/runstate/internal/execution/snapshot"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("RUNSTATE_FLOW", "jobe")
	t.Setenv("RUNSTATE_PROJECT_ID", "11")
	t.Setenv("RUNSTATE_PROJECT_VERSION", "123")
	t.Setenv("RUNSTATE_FAILURE_ACTION", "cancel_all")
	t.Setenv("RUNSTATE_DISABLED_JOBS", "jobb, jobc,,")
	t.Setenv("RUNSTATE_FAILURE_EMAILS", "ops@example.com")
	t.Setenv("RUNSTATE_PARAMETERS", "env=prod,retries=3")

	cfg, err := configFromEnv()
	require.NoError(t, err)
	require.Equal(t, "jobe", cfg.Flow)
	require.False(t, cfg.Persist)
	require.Equal(t, 123, cfg.Metadata.ProjectVersion)
	require.Equal(t, domain.FailureActionCancelAll, cfg.Options.FailureAction)
	require.Equal(t, []string{"jobb", "jobc"}, cfg.Options.DisabledJobs())
	require.True(t, cfg.Options.FailureEmails.Overridden)
	require.False(t, cfg.Options.SuccessEmails.Overridden)
	require.Equal(t, map[string]string{"env": "prod", "retries": "3"}, cfg.Options.Parameters())
}

func TestConfigFromEnvErrors(t *testing.T) {
	t.Setenv("RUNSTATE_PROJECT_ID", "11")
	_, err := configFromEnv()
	require.ErrorContains(t, err, "RUNSTATE_FLOW")

	t.Setenv("RUNSTATE_FLOW", "jobe")
	t.Setenv("RUNSTATE_FAILURE_ACTION", "retry_forever")
	_, err = configFromEnv()
	require.ErrorContains(t, err, "unsupported failure action")

	t.Setenv("RUNSTATE_FAILURE_ACTION", "")
	t.Setenv("RUNSTATE_PARAMETERS", "novalue")
	_, err = configFromEnv()
	require.ErrorContains(t, err, "not key=value")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "json").Info("hello", "run_id", "101")
	require.Contains(t, buf.String(), `"run_id":"101"`)

	buf.Reset()
	newLogger(&buf, "text").Info("hello", "run_id", "101")
	require.Contains(t, buf.String(), "run_id=101")
	require.NotContains(t, buf.String(), "\x1b[", "no colour off a terminal")
}

func TestRunPrintsSnapshot(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	var out bytes.Buffer

	t.Setenv("RUNSTATE_PROJECT_ID", "11")
	require.Equal(t, 2, run(ctx, logger, &out), "missing flow is a config error")

	t.Setenv("RUNSTATE_FLOW", "jobe")
	t.Setenv("RUNSTATE_DEFINITIONS_DIR", t.TempDir()+"/missing")
	require.Equal(t, 1, run(ctx, logger, &out))
	require.Zero(t, out.Len())

	t.Setenv("RUNSTATE_DEFINITIONS_DIR", "../../internal/definition/testdata/embedded")
	t.Setenv("RUNSTATE_RUN_ID", "101")
	t.Setenv("RUNSTATE_DISABLED_JOBS", "jobd")
	require.Equal(t, 0, run(ctx, logger, &out))

	decoded, err := snapshot.Unmarshal(bytes.TrimSpace(out.Bytes()))
	require.NoError(t, err)
	require.Equal(t, "101", decoded.RunID)
	require.Equal(t, "jobe", decoded.FlowID())
	jobd, ok := decoded.Lookup("jobd")
	require.True(t, ok)
	require.Equal(t, domain.StatusDisabled, jobd.Status())
}
