package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

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
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}()

	var aiClient ai.Client
	if cfg.AIConfigured() {
		gemini, err := ai.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("init gemini client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = gemini.Close() }()
		aiClient = gemini
	} else {
		logger.Warn("GEMINI_API_KEY not set, AI generation disabled")
	}

	chartRepo := coa.NewCachedRepository(coa.NewRepository(pool), redisClient, cfg.ChartCacheTTL, logger)
	charts := coa.NewService(chartRepo)

	repo := engine.NewPgRepository(pool)
	audit := shared.NewAuditLogger(pool)
	generator := engine.NewGenerator(aiClient, logger)
	coordinator := engine.NewCoordinator(repo, audit)

	interactiveOpts := engine.Options{
		UseAI:      cfg.AIConfigured(),
		MaxRetries: cfg.AIMaxRetries,
		Timeout:    cfg.AITimeout,
	}
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

	handler := engine.NewHandler(engine.HandlerConfig{
		Logger:    logger,
		Repo:      repo,
		Charts:    charts,
		Generator: generator,
		Coord:     coordinator,
		Batch:     batch,
		Enqueue:   enqueuer.EnqueueRegenerate,
		Opts:      interactiveOpts,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		PostingHandler: handler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
	}
}
