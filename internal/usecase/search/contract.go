package search

import (
	"context"

	"github.com/calliope-hq/calliope/internal/domain"
	"github.com/calliope-hq/calliope/internal/domain/entity"
	"github.com/calliope-hq/calliope/internal/domain/principal"
	"github.com/calliope-hq/calliope/internal/domain/search/result"
)

// Repository defines the per-type sub-query contract.
type Repository interface {
	SearchKNN(
		ctx context.Context, typ entity.Type, p *principal.Principal,
		vector []float32, topK int,
	) ([]result.Candidate, error)

	SearchBM25(
		ctx context.Context, typ entity.Type, p *principal.Principal,
		query string, topK int,
	) ([]result.Candidate, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
