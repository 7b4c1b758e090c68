package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jaennil/guide_helper/backend/prefetch/internal/fetch"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/progress"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/provider"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/repository/ledger"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/repository/runlog"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/repository/store"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/usecase"
	"github.com/jaennil/guide_helper/backend/prefetch/pkg/config"
	"github.com/jaennil/guide_helper/backend/prefetch/pkg/logger"
	"github.com/jaennil/guide_helper/backend/prefetch/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prefetch runs one acquisition and/or retry pass. Tiles left in the failure
// ledger are not an error.
func Prefetch(ctx context.Context, cfg *config.Config, args Args, l logger.Logger) error {
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", "error", err)
			}
		}()
	}

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			l.Info("serving metrics", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				l.Error("metrics listener failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	mode, err := usecase.ParseMode(cfg.Scheduler.Mode)
	if err != nil {
		return err
	}

	var runs usecase.RunRecorder
	if cfg.RunLog.Enabled {
		journal, err := runlog.NewSQLiteRunLog(cfg.RunLog.Path, l)
		if err != nil {
			return err
		}
		defer journal.Close()
		runs = journal
		logRecentRuns(ctx, journal, l)
	}

	fileSink := progress.NewFileSink(cfg.Progress.Dir, cfg.Progress.MaxLines)
	defer fileSink.Close()

	acq := usecase.NewAcquirer(usecase.AcquirerConfig{
		Store:  store.NewFilesystemStore(cfg.Store.Root),
		Ledger: ledger.New(cfg.Ledger.Path),
		Fetcher: fetch.NewHTTPFetcher(fetch.Options{
			UserAgent: cfg.Fetch.UserAgent,
			Referer:   cfg.Fetch.Referer,
			Timeout:   cfg.Fetch.Timeout,
		}),
		Providers: provider.Default(),
		Sink:      progress.Tee(progress.NewLoggerSink(l), fileSink),
		Runs:      runs,
		Logger:    l,
		Mode:      mode,
	})

	if !args.RetryOnly {
		if _, err := acq.Acquire(ctx, args.Request); err != nil {
			return err
		}
	}

	if args.Retry || args.RetryOnly {
		stats, err := acq.Retry(ctx, args.Request.Concurrency)
		if err != nil {
			return err
		}
		if stats.Failed > 0 {
			l.Warn("tiles still failing, see the failure ledger",
				"failed", stats.Failed,
				"ledger", cfg.Ledger.Path,
			)
		}
	}

	return nil
}

const recentRuns = 3

func logRecentRuns(ctx context.Context, journal *runlog.SQLiteRunLog, l logger.Logger) {
	previous, err := journal.Recent(ctx, recentRuns)
	if err != nil {
		l.Warn("failed to read run journal", "error", err)
		return
	}
	for _, run := range previous {
		l.Info("previous run",
			"id", run.ID,
			"kind", run.Kind,
			"provider", run.Provider,
			"zoom_start", run.ZoomStart,
			"zoom_end", run.ZoomEnd,
			"finished_at", run.FinishedAt,
			"fetched", run.Fetched,
			"skipped", run.Skipped,
			"failed", run.Failed,
			"error", run.Error,
		)
	}
}
