package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/calliope-hq/calliope/internal/config"
	dbRedis "github.com/calliope-hq/calliope/internal/db/redis"
	"github.com/calliope-hq/calliope/internal/domain"
	logpkg "github.com/calliope-hq/calliope/internal/logger"
	"github.com/calliope-hq/calliope/internal/metrics"
	budgetrepo "github.com/calliope-hq/calliope/internal/repository/budget"
	"github.com/calliope-hq/calliope/internal/repository/embcache"
	entityrepo "github.com/calliope-hq/calliope/internal/repository/entity"
	"github.com/calliope-hq/calliope/internal/transport/natsq"
	openaiEmb "github.com/calliope-hq/calliope/internal/transport/openai"
	embeddinguc "github.com/calliope-hq/calliope/internal/usecase/embedding"
	"github.com/calliope-hq/calliope/internal/version"
)

// The embed worker consumes regeneration jobs from the queue and writes
// vectors back to the store. Multiple instances share the queue group, so
// scaling out is a matter of starting more processes.
func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting calliope embed worker",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("queue_subject", cfg.Queue.Subject),
		zap.String("queue_group", cfg.Queue.QueueGroup),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	metrics.RegisterEmbeddingMetrics()

	var budget *embeddinguc.BudgetTracker
	budgetCfg := cfg.Embedding.Budget
	if budgetCfg.DailyTokenLimit > 0 || budgetCfg.MonthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if budgetCfg.Action == "reject" {
			action = embeddinguc.BudgetActionReject
		}
		budget = embeddinguc.NewBudgetTracker(
			cfg.Embedding.Provider, budgetCfg.DailyTokenLimit, budgetCfg.MonthlyTokenLimit, action, logger,
		)
		budget.WithStore(ctx, budgetrepo.New(store, 48*time.Hour, 62*24*time.Hour))
	}

	// Same gotcha as the API server: only assign a non-nil tracker.
	var budgetChecker embeddinguc.BudgetChecker
	if budget != nil {
		budgetChecker = budget
	}

	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	var embedder domain.Embedder = embcache.New(base, store, metrics.EmbeddingCacheTotal, logger)
	embedder = embeddinguc.NewInstrumentedEmbedder(
		embedder, cfg.Embedding.Provider, cfg.Embedding.Model, embeddinguc.WorkloadIngest,
		budgetChecker, logger,
	)
	if cfg.Embedding.DocumentInstruction != "" {
		embedder = domain.NewInstructionEmbedder(embedder, cfg.Embedding.DocumentInstruction)
	}

	queue, err := natsq.Connect(cfg.Queue.URL, cfg.Queue.Subject, cfg.Queue.QueueGroup, logger)
	if err != nil {
		logger.Fatal("Failed to connect to job queue", zap.Error(err))
	}
	defer queue.Close()
	logger.Info("Connected to job queue")

	generator := embeddinguc.NewGenerator(
		entityrepo.New(store), embedder,
		cfg.Embedding.Dimensions, cfg.Embedding.MaxInputChars,
		time.Duration(cfg.Embedding.TimeoutSec)*time.Second,
		logger,
	)
	worker := embeddinguc.NewWorker(generator, queue, logger).
		WithRetry(cfg.Queue.MaxAttempts, time.Duration(cfg.Queue.BackoffSec)*time.Second)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("Received shutdown signal")
		cancel()
	}()

	if err := worker.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Worker stopped with error", zap.Error(err))
	}

	logger.Info("Worker stopped gracefully")
}
