package embedding

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/calliope-hq/calliope/internal/domain"
	"github.com/calliope-hq/calliope/internal/domain/entity"
	"github.com/calliope-hq/calliope/internal/metrics"
)

// Worker consumes embedding jobs and runs the generator. Delivery is
// at-least-once: the generator is idempotent, so duplicate jobs just redo
// the same write. Core NATS has no broker-side redelivery, so the worker
// retries transient failures itself before giving a job up.
type Worker struct {
	generator   *Generator
	source      JobSource
	maxAttempts int
	backoff     time.Duration
	logger      *zap.Logger
}

// NewWorker creates an embedding job worker.
func NewWorker(generator *Generator, source JobSource, logger *zap.Logger) *Worker {
	return &Worker{
		generator:   generator,
		source:      source,
		maxAttempts: 3,
		backoff:     2 * time.Second,
		logger:      logger,
	}
}

// WithRetry overrides retry parameters.
func (w *Worker) WithRetry(maxAttempts int, backoff time.Duration) *Worker {
	if maxAttempts > 0 {
		w.maxAttempts = maxAttempts
	}
	if backoff > 0 {
		w.backoff = backoff
	}
	return w
}

// Run subscribes and processes jobs until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	jobs, err := w.source.SubscribeEmbedJobs(ctx)
	if err != nil {
		return err
	}

	w.logger.Info("Embedding worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Embedding worker stopped")
			return ctx.Err()
		case job, ok := <-jobs:
			if !ok {
				w.logger.Info("Job channel closed, worker exiting")
				return nil
			}
			w.process(ctx, job)
		}
	}
}

func (w *Worker) process(ctx context.Context, job domain.EmbedJob) {
	typ, err := entity.ParseType(job.EntityType)
	if err != nil {
		w.logger.Warn("Dropping job with unknown entity type",
			zap.String("entity_type", job.EntityType), zap.String("entity_id", job.EntityID))
		metrics.EmbedJobsTotal.WithLabelValues("invalid").Inc()
		return
	}

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		err = w.generator.Generate(ctx, typ, job.EntityID)
		if err == nil {
			metrics.EmbedJobsTotal.WithLabelValues("success").Inc()
			return
		}

		w.logger.Warn("Embedding job attempt failed",
			zap.String("entity_type", job.EntityType),
			zap.String("entity_id", job.EntityID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if attempt < w.maxAttempts && !w.sleep(ctx, time.Duration(attempt)*w.backoff) {
			break
		}
	}

	// The entity stays stale and lexically searchable; the next content
	// mutation republishes the job.
	w.logger.Error("Embedding job exhausted retries",
		zap.String("entity_type", job.EntityType),
		zap.String("entity_id", job.EntityID),
		zap.Error(err),
	)
	metrics.EmbedJobsTotal.WithLabelValues("failed").Inc()
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
