package embedding

import (
	"context"

	"github.com/calliope-hq/calliope/internal/domain"
	"github.com/calliope-hq/calliope/internal/domain/entity"
)

// EntityStore defines the persistence contract the generator needs.
type EntityStore interface {
	Get(ctx context.Context, typ entity.Type, id string) (entity.Entity, error)
	SetVector(ctx context.Context, typ entity.Type, id string, vector []float32, generatedAt int64) error
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// JobSource delivers embedding jobs to the worker.
type JobSource interface {
	SubscribeEmbedJobs(ctx context.Context) (<-chan domain.EmbedJob, error)
}
