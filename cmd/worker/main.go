package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/comptaflow/comptaflow/internal/ai"
	"github.com/comptaflow/comptaflow/internal/app"
	"github.com/comptaflow/comptaflow/internal/coa"
	"github.com/comptaflow/comptaflow/internal/engine"
	"github.com/comptaflow/comptaflow/internal/platform/cache"
	"github.com/comptaflow/comptaflow/internal/platform/db"
	"github.com/comptaflow/comptaflow/internal/shared"
	"github.com/comptaflow/comptaflow/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, chart cache disabled", slog.Any("error", err))
		redisClient = nil
	}

	var aiClient ai.Client
	if cfg.AIConfigured() {
		gemini, err := ai.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("init gemini client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = gemini.Close() }()
		aiClient = gemini
	}

	chartRepo := coa.NewCachedRepository(coa.NewRepository(pool), redisClient, cfg.ChartCacheTTL, logger)
	charts := coa.NewService(chartRepo)
	repo := engine.NewPgRepository(pool)
	generator := engine.NewGenerator(aiClient, logger)
	coordinator := engine.NewCoordinator(repo, shared.NewAuditLogger(pool))

	batch := engine.NewBatchController(engine.BatchConfig{
		Charts:    charts,
		Generator: generator,
		Coord:     coordinator,
		Repo:      repo,
		Logger:    logger,
		Opts: engine.Options{
			UseAI:      cfg.AIConfigured(),
			MaxRetries: 1,
			Timeout:    cfg.BatchAITimeout,
		},
		Pause: cfg.BatchPause,
	})

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() { _ = asynqClient.Close() }()
	enqueuer := jobs.NewEnqueuer(asynqClient)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeRegeneratePostings, Handler: jobs.NewRegeneratePostingsHandler(batch, logger)},
			{Type: jobs.TaskTypeRegenerateSweep, Handler: jobs.NewRegenerateSweepHandler(repo, enqueuer.EnqueueRegenerate, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RegenerateCron, Task: jobs.NewRegenerateSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
