// Package app builds the long-lived services for one archiving run from configuration and
// holds them until the run ends.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-archiver/internal/archiver"
	"github.com/JakeFAU/wayback-archiver/internal/cache"
	"github.com/JakeFAU/wayback-archiver/internal/clock/system"
	"github.com/JakeFAU/wayback-archiver/internal/config"
	"github.com/JakeFAU/wayback-archiver/internal/id/uuid"
	"github.com/JakeFAU/wayback-archiver/internal/logging"
	"github.com/JakeFAU/wayback-archiver/internal/metrics"
	"github.com/JakeFAU/wayback-archiver/internal/pipeline"
	"github.com/JakeFAU/wayback-archiver/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/wayback-archiver/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/wayback-archiver/internal/queue/memory"
	"github.com/JakeFAU/wayback-archiver/internal/server"
	"github.com/JakeFAU/wayback-archiver/internal/storage"
	gcsstorage "github.com/JakeFAU/wayback-archiver/internal/storage/gcs"
	localstorage "github.com/JakeFAU/wayback-archiver/internal/storage/local"
	pgstore "github.com/JakeFAU/wayback-archiver/internal/storage/postgres"
	stdoutstorage "github.com/JakeFAU/wayback-archiver/internal/storage/stdout"
	"github.com/JakeFAU/wayback-archiver/internal/telemetry"
	"github.com/JakeFAU/wayback-archiver/internal/wayback"
)

// Options overrides the defaults Build would otherwise derive.
type Options struct {
	// Logger replaces the logger built from config.
	Logger *zap.Logger
	// Stdout receives the result document for the stdout backend.
	Stdout io.Writer
	// HTTPClient replaces the client used to reach the archiving service.
	HTTPClient *http.Client
	// Store replaces the store selected by cache.backend.
	Store storage.Provider
	// Publisher replaces the Pub/Sub publisher.
	Publisher archiver.Publisher
}

// App contains the run's dependencies.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	runID    string
	store    storage.Provider
	pipeline *pipeline.Pipeline
	status   *server.Server
	closers  []func() error
}

// Build creates the run's dependencies. Prior results are loaded from the store when
// cache.merge is set.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
	}
	metrics.Init()

	runID, err := uuid.New().NewID()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	logger = logger.With(zap.String("run_id", runID))

	a := &App{cfg: cfg, logger: logger, runID: runID}

	tracing, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		RunID:       runID,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing init failed: %w", err)
	}
	a.closers = append(a.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tracing.Shutdown(shutdownCtx)
	})

	a.store = opts.Store
	if a.store == nil {
		if a.store, err = a.setupStore(ctx, opts); err != nil {
			a.closeAll()
			return nil, err
		}
	}

	results := cache.New()
	if cfg.Cache.Merge {
		if results, err = a.store.Load(ctx); err != nil {
			a.closeAll()
			return nil, fmt.Errorf("load prior results: %w", err)
		}
		logger.Info("loaded prior results", zap.String("backend", a.store.Name()), zap.Int("entries", results.Len()))
	}
	metrics.SetCacheEntries(results.Len())

	publisher := opts.Publisher
	if publisher == nil && cfg.PubSub.TopicName != "" {
		pub, err := gcppublisher.Dial(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			a.closeAll()
			return nil, fmt.Errorf("pubsub init failed: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		publisher = pub
		logger.Info("publishing outcomes", zap.String("topic", cfg.PubSub.TopicName))
	}

	clk := system.New()
	policy := cfg.ArchiverPolicy()
	limiter := ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.Wayback.RequestsPerSecond})
	client := wayback.New(wayback.Config{
		AvailabilityURL:    cfg.Wayback.AvailabilityURL,
		SaveURL:            cfg.Wayback.SaveURL,
		SnapshotPathPrefix: cfg.Wayback.SnapshotPathPrefix,
		UserAgent:          cfg.Wayback.UserAgent,
		Timeout:            cfg.RequestTimeout(),
	}, opts.HTTPClient, limiter, logger.Named("wayback"))
	resolver := archiver.NewResolver(client, client, clk, policy, logger.Named("resolver"))
	retry := archiver.NewRetryController(resolver, clk, clk, policy, logger.Named("retry"))

	a.pipeline = pipeline.New(
		retry,
		a.store,
		results,
		queuememory.NewQueue(cfg.Queue.Depth),
		publisher,
		clk,
		pipeline.Config{
			RunID:                  runID,
			CheckpointEvery:        cfg.Cache.CheckpointEvery,
			ReuseWindow:            policy.ReuseWindow,
			Topic:                  cfg.PubSub.TopicName,
			FinalCheckpointTimeout: cfg.FinalCheckpointTimeout(),
			TracerProvider:         tracing.TracerProvider(),
		},
		logger.Named("pipeline"),
	)

	if cfg.Server.Addr != "" {
		a.status = server.NewServer(a.pipeline, logger.Named("server"))
	}
	return a, nil
}

func (a *App) setupStore(ctx context.Context, opts Options) (storage.Provider, error) {
	cfg := a.cfg
	switch backend := cfg.ResolvedBackend(); backend {
	case config.BackendLocal:
		a.logger.Info("Using local result file", zap.String("path", cfg.Cache.Path))
		store, err := localstorage.New(localstorage.Config{Path: cfg.Cache.Path})
		if err != nil {
			return nil, fmt.Errorf("local store init failed: %w", err)
		}
		return store, nil
	case config.BackendGCS:
		client, err := gcsstorage.Dial(ctx)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		store, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: cfg.Storage.GCSBucket,
			Object: cfg.Storage.GCSObject,
		}, a.logger.Named("gcs"))
		if err != nil {
			return nil, fmt.Errorf("gcs store init failed: %w", err)
		}
		a.logger.Info("Using GCS result object", zap.String("uri", store.URI()))
		return store, nil
	case config.BackendPostgres:
		store, err := pgstore.New(ctx, pgstore.Config{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: int32(cfg.DB.MaxConns), //nolint:gosec // bounded by config validation
			Replace:  !cfg.Cache.Merge,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.logger.Info("Using Postgres result table", zap.String("table", cfg.DB.Table))
		return store, nil
	case config.BackendStdout:
		out := opts.Stdout
		if out == nil {
			out = os.Stdout
		}
		return stdoutstorage.New(out), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", storage.ErrNotConfigured, backend)
	}
}

// RunID identifies this run in logs, metrics and notifications.
func (a *App) RunID() string {
	return a.runID
}

// Pipeline exposes the run pipeline (primarily for the status server and tests).
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Run archives every URL read from input and blocks until the batch ends or ctx is cancelled.
// The status server, when configured, runs alongside the batch.
func (a *App) Run(ctx context.Context, input io.Reader) error {
	serverCtx, stopServer := context.WithCancel(context.WithoutCancel(ctx))
	serverDone := make(chan struct{})
	if a.status != nil {
		go func() {
			defer close(serverDone)
			if err := a.status.ListenAndServe(serverCtx, a.cfg.Server.Addr); err != nil {
				a.logger.Error("status server error", zap.Error(err))
			}
		}()
	} else {
		close(serverDone)
	}

	a.logger.Info("run started", zap.String("backend", a.store.Name()))
	_, err := a.pipeline.Run(ctx, input)

	stats := a.pipeline.Stats()
	fields := []zap.Field{
		zap.Int("processed", stats.Processed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
		zap.Int("interrupted", stats.Interrupted),
		zap.Int("checkpoints", stats.Checkpoints),
	}
	switch {
	case err != nil:
		a.logger.Error("run failed", append(fields, zap.Error(err))...)
	case ctx.Err() != nil:
		a.logger.Warn("run interrupted", fields...)
	default:
		a.logger.Info("run complete", fields...)
	}

	stopServer()
	<-serverDone
	return err
}

// Close releases clients opened by Build and flushes the logger.
func (a *App) Close() error {
	err := a.closeAll()
	_ = a.logger.Sync()
	return err
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
