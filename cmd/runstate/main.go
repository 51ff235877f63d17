package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/animus-labs/runstate/internal/definition"
	"github.com/animus-labs/runstate/internal/domain"
	"github.com/animus-labs/runstate/internal/platform/auditlog"
	"github.com/animus-labs/runstate/internal/platform/env"
	platformstore "github.com/animus-labs/runstate/internal/platform/objectstore"
	"github.com/animus-labs/runstate/internal/platform/postgres"
	repopg "github.com/animus-labs/runstate/internal/repo/postgres"
	"github.com/animus-labs/runstate/internal/service/runs"
	"github.com/animus-labs/runstate/internal/storage/objectstore"
)

// runstate materializes one workflow into a run tree, applies the configured
// execution options and prints the snapshot. With RUNSTATE_PERSIST=true the
// snapshot is also stored in Postgres and the object store.
func main() {
	logger := newLogger(os.Stderr, env.String("RUNSTATE_LOG_FORMAT", "json"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, logger, os.Stdout)
	stop()
	os.Exit(code)
}

// run returns the process exit code: 2 for bad configuration, 1 when a
// dependency or the run itself fails.
func run(ctx context.Context, logger *slog.Logger, stdout io.Writer) int {
	cfg, err := configFromEnv()
	if err != nil {
		logger.Error("invalid env", "error", err)
		return 2
	}

	catalog, err := definition.LoadDir(cfg.DefinitionsDir)
	if err != nil {
		logger.Error("load definitions", "dir", cfg.DefinitionsDir, "error", err)
		return 1
	}

	runs.InitMetrics(prometheus.DefaultRegisterer)

	trackerCfg := runs.Config{Logger: logger}
	if cfg.Persist {
		db, archive, err := openStores(ctx, logger)
		if err != nil {
			logger.Error("storage unavailable", "error", err)
			return 1
		}
		defer func() { _ = db.Close() }()
		trackerCfg.Snapshots = repopg.NewSnapshotStore(db)
		trackerCfg.Archive = archive
		trackerCfg.Audit = auditlog.NewSQLAppender(db)
	}
	tracker := runs.NewTracker(trackerCfg)

	started, err := tracker.Start(catalog, cfg.Flow, cfg.Metadata, cfg.Options)
	if err != nil {
		logger.Error("materialize run", "flow", cfg.Flow, "error", err)
		return 1
	}

	payload, err := tracker.Snapshot(ctx, started.RunID)
	if err != nil {
		logger.Error("encode snapshot", "run_id", started.RunID, "error", err)
		return 1
	}
	if _, err := fmt.Fprintln(stdout, string(payload)); err != nil {
		logger.Error("write snapshot", "error", err)
		return 1
	}

	if cfg.Persist {
		persistCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		record, err := tracker.Persist(persistCtx, started.RunID)
		if err != nil {
			logger.Error("persist snapshot", "run_id", started.RunID, "error", err)
			return 1
		}
		logger.Info("snapshot persisted", "run_id", record.RunID, "snapshot_id", record.SnapshotID, "status", record.Status)
	}
	return 0
}

// newLogger returns a JSON logger, or a tint text logger when format is
// "text". Colour is only used on a terminal.
func newLogger(w io.Writer, format string) *slog.Logger {
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		noColor := true
		if f, ok := w.(*os.File); ok {
			noColor = !isatty.IsTerminal(f.Fd())
		}
		return slog.New(tint.NewHandler(w, &tint.Options{
			NoColor:    noColor,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, nil))
}

type config struct {
	DefinitionsDir string
	Flow           string
	Persist        bool
	Metadata       domain.RunMetadata
	Options        domain.ExecutionOptions
}

func configFromEnv() (config, error) {
	persist, err := env.Bool("RUNSTATE_PERSIST", false)
	if err != nil {
		return config{}, err
	}
	version, err := env.Int("RUNSTATE_PROJECT_VERSION", 1)
	if err != nil {
		return config{}, err
	}
	pipelineLevel, err := env.Int("RUNSTATE_PIPELINE_LEVEL", 0)
	if err != nil {
		return config{}, err
	}
	failureAction, err := domain.ParseFailureAction(env.String("RUNSTATE_FAILURE_ACTION", ""))
	if err != nil {
		return config{}, err
	}
	params, err := env.KeyValues("RUNSTATE_PARAMETERS")
	if err != nil {
		return config{}, err
	}

	cfg := config{
		DefinitionsDir: env.String("RUNSTATE_DEFINITIONS_DIR", "./definitions"),
		Flow:           strings.TrimSpace(env.String("RUNSTATE_FLOW", "")),
		Persist:        persist,
		Metadata: domain.RunMetadata{
			RunID:          env.String("RUNSTATE_RUN_ID", ""),
			ProjectID:      env.String("RUNSTATE_PROJECT_ID", ""),
			ProjectVersion: version,
			SubmitUser:     env.String("RUNSTATE_SUBMIT_USER", ""),
			ExecutionPath:  env.String("RUNSTATE_EXECUTION_PATH", ""),
			ScheduleID:     env.String("RUNSTATE_SCHEDULE_ID", ""),
		},
		Options: domain.ExecutionOptions{
			ConcurrentOption: env.String("RUNSTATE_CONCURRENT_OPTION", ""),
			FailureAction:    failureAction,
			PipelineLevel:    pipelineLevel,
		},
	}
	cfg.Options.SetDisabledJobs(env.Strings("RUNSTATE_DISABLED_JOBS", nil))
	if addrs := env.Strings("RUNSTATE_SUCCESS_EMAILS", nil); addrs != nil {
		cfg.Options.SetSuccessEmails(addrs)
	}
	if addrs := env.Strings("RUNSTATE_FAILURE_EMAILS", nil); addrs != nil {
		cfg.Options.SetFailureEmails(addrs)
	}
	if len(params) > 0 {
		cfg.Options.SetParameters(params)
	}

	if cfg.Flow == "" {
		return config{}, errors.New("RUNSTATE_FLOW is required")
	}
	if strings.TrimSpace(cfg.Metadata.ProjectID) == "" {
		return config{}, errors.New("RUNSTATE_PROJECT_ID is required")
	}
	return cfg, nil
}

func openStores(ctx context.Context, logger *slog.Logger) (*sql.DB, *objectstore.SnapshotArchive, error) {
	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("database config: %w", err)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		return nil, nil, err
	}
	statements := append(append([]string{}, repopg.Schema...), auditlog.CreateTableStatement)
	if err := postgres.Migrate(ctx, db, statements...); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	storeCfg, err := platformstore.ConfigFromEnv()
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("object store config: %w", err)
	}
	store, err := objectstore.NewMinioStore(ctx, storeCfg)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	archive, err := objectstore.NewSnapshotArchive(store, storeCfg.BucketSnapshots)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	logger.Info("storage ready", "bucket", storeCfg.BucketSnapshots)
	return db, archive, nil
}
