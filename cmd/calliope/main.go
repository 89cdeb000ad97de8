package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/calliope-hq/calliope/internal/config"
	"github.com/calliope-hq/calliope/internal/db"
	dbRedis "github.com/calliope-hq/calliope/internal/db/redis"
	"github.com/calliope-hq/calliope/internal/domain"
	"github.com/calliope-hq/calliope/internal/domain/entity"
	logpkg "github.com/calliope-hq/calliope/internal/logger"
	"github.com/calliope-hq/calliope/internal/metrics"
	budgetrepo "github.com/calliope-hq/calliope/internal/repository/budget"
	"github.com/calliope-hq/calliope/internal/repository/embcache"
	entityrepo "github.com/calliope-hq/calliope/internal/repository/entity"
	searchrepo "github.com/calliope-hq/calliope/internal/repository/search"
	chiTransport "github.com/calliope-hq/calliope/internal/transport/chi"
	"github.com/calliope-hq/calliope/internal/transport/natsq"
	openaiEmb "github.com/calliope-hq/calliope/internal/transport/openai"
	"github.com/calliope-hq/calliope/internal/transport/tokenizer"
	embeddinguc "github.com/calliope-hq/calliope/internal/usecase/embedding"
	entityuc "github.com/calliope-hq/calliope/internal/usecase/entity"
	healthuc "github.com/calliope-hq/calliope/internal/usecase/health"
	raguc "github.com/calliope-hq/calliope/internal/usecase/rag"
	searchuc "github.com/calliope-hq/calliope/internal/usecase/search"
	"github.com/calliope-hq/calliope/internal/version"
)

func main() {
	// Load configuration based on ENV
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

	logger.Info("Starting calliope API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSearchMetrics()

	if err := ensureIndexes(ctx, store, cfg); err != nil {
		logger.Fatal("Failed to create search indexes", zap.Error(err))
	}
	logger.Info("Search indexes ready", zap.Int("dimensions", cfg.Embedding.Dimensions))

	// Single BudgetTracker shared across both embedders.
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
		// Connect persistence store — loads current counters from DB.
		budgetStore := budgetrepo.New(store, 48*time.Hour, 62*24*time.Hour)
		budget.WithStore(ctx, budgetStore)
	}

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	// Go gotcha: (*BudgetTracker)(nil) wrapped in BudgetChecker != nil.
	var budgetChecker embeddinguc.BudgetChecker
	if budget != nil {
		budgetChecker = budget
	}

	docEmbedder := buildEmbedder(
		cfg, cfg.Embedding.DocumentInstruction, embeddinguc.WorkloadIngest, store, budgetChecker, logger)
	queryEmbedder := buildEmbedder(
		cfg, cfg.Embedding.QueryInstruction, embeddinguc.WorkloadQuery, store, budgetChecker, logger)
	logger.Info("Embedders created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	queue, err := natsq.Connect(cfg.Queue.URL, cfg.Queue.Subject, cfg.Queue.QueueGroup, logger)
	if err != nil {
		logger.Fatal("Failed to connect to job queue", zap.Error(err))
	}
	defer queue.Close()
	logger.Info("Connected to job queue", zap.String("subject", cfg.Queue.Subject))

	// Create repositories (domain-native, no adapters)
	entityRepo := entityrepo.New(store)
	searchRepo := searchrepo.New(store)

	// Create use case services
	entitySvc := entityuc.New(entityRepo, queue, logger)
	searchSvc := searchuc.New(
		searchRepo, queryEmbedder,
		searchuc.Weights{
			Vector:              cfg.Search.WVector,
			Keyword:             cfg.Search.WKeyword,
			RecencyHalfLifeDays: cfg.Search.RecencyHalfLifeDays,
			RecencyFloor:        cfg.Search.RecencyFloor,
		},
		time.Duration(cfg.Search.TimeoutSec)*time.Second,
		cfg.TypePriority(),
		logger,
	)
	ragSvc := raguc.New(searchSvc, newTokenCounter(cfg.RAG.Encoding, logger), cfg.RAG.DefaultTokenBudget, logger)

	// Health service
	healthSvc := healthuc.New(store, newEmbeddingHealthChecker(docEmbedder), queue)

	// Optional in-process embed worker: useful for single-node deployments
	// where a separate embedworker binary is not worth running.
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if cfg.Queue.InlineWorker {
		generator := embeddinguc.NewGenerator(
			entityRepo, docEmbedder,
			cfg.Embedding.Dimensions, cfg.Embedding.MaxInputChars,
			time.Duration(cfg.Embedding.TimeoutSec)*time.Second,
			logger,
		)
		worker := embeddinguc.NewWorker(generator, queue, logger).
			WithRetry(cfg.Queue.MaxAttempts, time.Duration(cfg.Queue.BackoffSec)*time.Second)
		go func() {
			if err := worker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Inline embed worker stopped", zap.Error(err))
			}
		}()
		logger.Info("Inline embed worker started", zap.String("queue_group", cfg.Queue.QueueGroup))
	}

	// Create chi server
	server := chiTransport.NewServer(entitySvc, searchSvc, ragSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")
	stopWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// ensureIndexes creates the per-type vector indexes. Existing indexes are
// left untouched, so restarting against a populated store is safe.
func ensureIndexes(ctx context.Context, store db.Store, cfg config.Config) error {
	for _, typ := range entity.AllTypes() {
		def, err := entityrepo.IndexDefinition(
			typ, cfg.Embedding.Dimensions, db.DistanceCosine,
			cfg.Index.HNSWM, cfg.Index.HNSWEFConstruct,
		)
		if err != nil {
			return err
		}
		if err := store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
			return fmt.Errorf("create index for %s: %w", typ, err)
		}
	}
	return nil
}

// newTokenCounter returns a tiktoken-backed counter, falling back to the
// rune heuristic when the encoding is unavailable (e.g. offline BPE fetch).
func newTokenCounter(encoding string, logger *zap.Logger) raguc.TokenCounter {
	counter, err := tokenizer.New(encoding)
	if err != nil {
		logger.Warn("Tokenizer unavailable, using heuristic token counting",
			zap.String("encoding", encoding), zap.Error(err))
		return tokenizer.Heuristic{}
	}
	return counter
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction
func buildEmbedder(
	cfg config.Config,
	instruction, workload string,
	store db.Store,
	budget embeddinguc.BudgetChecker,
	logger *zap.Logger,
) domain.Embedder {
	// Base provider (with transport metrics built-in)
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})

	// Cached
	var embedder domain.Embedder = base
	if store != nil {
		embedder = embcache.New(base, store, metrics.EmbeddingCacheTotal, logger)
	}

	// Instrumented (budget + metrics)
	embedder = embeddinguc.NewInstrumentedEmbedder(
		embedder, cfg.Embedding.Provider, cfg.Embedding.Model, workload, budget, logger,
	)

	// Instruction prefix (outermost — cache key includes instruction)
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}

	return embedder
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
