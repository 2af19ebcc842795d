package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/datacove/orangebook-etl/internal/adapters/driven/fetch"
	"github.com/datacove/orangebook-etl/internal/adapters/driven/postgres"
	redisadapter "github.com/datacove/orangebook-etl/internal/adapters/driven/redis"
	"github.com/datacove/orangebook-etl/internal/config"
	"github.com/datacove/orangebook-etl/internal/core/domain"
	"github.com/datacove/orangebook-etl/internal/core/ports/driven"
	"github.com/datacove/orangebook-etl/internal/core/services"
)

var version = "dev"

// Exit codes: 0 when every dataset succeeded, 2 when at least one dataset
// committed and at least one failed, 1 when nothing committed.
const (
	exitOK      = 0
	exitFailed  = 1
	exitPartial = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		return exitFailed
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("orangebook-etl starting", "version", version, "datasets", len(cfg.Datasets))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received, stopping")
		cancel()
	}()

	logger.Info("connecting to postgres")
	db, err := postgres.Connect(ctx, postgres.DefaultConfig(cfg.DatabaseURL))
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return exitFailed
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		logger.Error("failed to initialize schema", "error", err)
		return exitFailed
	}
	logger.Info("postgres connected and schema initialized")

	// Dataset lock: Redis when configured, otherwise Postgres advisory
	// locks on the same connection.
	var lock driven.DatasetLock
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to parse Redis URL", "error", err)
			return exitFailed
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			return exitFailed
		}
		defer redisClient.Close()
		lock = redisadapter.NewLock(redisClient)
		logger.Info("using Redis dataset lock")
	} else {
		lock = postgres.NewAdvisoryLock(db)
		logger.Info("using Postgres advisory dataset lock")
	}

	fetcher := fetch.NewClient(fetch.ClientConfig{
		RequestInterval: cfg.RequestInterval,
		Logger:          logger,
	})

	pipeline := services.NewPipeline(services.PipelineConfig{
		Fetcher:    fetcher,
		Loader:     postgres.NewLoader(db, logger),
		StateStore: postgres.NewLoadStateStore(db),
		RunStore:   postgres.NewLoadRunStore(db),
		Lock:       lock,
		Specs:      cfg.Datasets,
		Logger:     logger,
		Retry: domain.RetryPolicy{
			MaxAttempts: cfg.PipelineAttempts,
			BaseDelay:   2 * time.Second,
			MaxDelay:    time.Minute,
		},
		LockTTL: cfg.LockTTL,
		Workers: cfg.Workers,
	})

	results := pipeline.RunAll(ctx)

	succeeded, failed := 0, 0
	for _, res := range results {
		switch res.Outcome {
		case domain.OutcomeFailed:
			failed++
			logger.Error("dataset failed", "dataset", res.Dataset, "error", res.Err)
		default:
			succeeded++
			logger.Info("dataset done",
				"dataset", res.Dataset,
				"outcome", string(res.Outcome),
				"unchanged_source", res.Unchanged,
				"inserted", res.Counts.Inserted,
				"updated", res.Counts.Updated,
				"deleted", res.Counts.Deleted,
				"rejected", res.Counts.Rejected,
			)
		}
	}

	switch {
	case failed == 0:
		logger.Info("all datasets completed", "datasets", succeeded)
		return exitOK
	case succeeded > 0:
		logger.Warn("some datasets failed", "succeeded", succeeded, "failed", failed)
		return exitPartial
	default:
		logger.Error("all datasets failed", "failed", failed)
		return exitFailed
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
