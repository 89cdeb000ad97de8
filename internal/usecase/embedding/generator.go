package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/calliope-hq/calliope/internal/domain"
	"github.com/calliope-hq/calliope/internal/domain/entity"
)

// Generator recomputes entity vectors from current content. It is the only
// writer of the vector triple (vector, generated_at, stale); everything else
// only ever raises the stale flag.
type Generator struct {
	entities   EntityStore
	embedder   Embedder
	dimensions int
	maxChars   int
	timeout    time.Duration
	logger     *zap.Logger
}

// NewGenerator creates an embedding generator.
func NewGenerator(
	entities EntityStore, embedder Embedder,
	dimensions, maxChars int, timeout time.Duration,
	logger *zap.Logger,
) *Generator {
	return &Generator{
		entities:   entities,
		embedder:   embedder,
		dimensions: dimensions,
		maxChars:   maxChars,
		timeout:    timeout,
		logger:     logger,
	}
}

// Generate loads the entity, embeds its derived text, and stores the vector
// triple. Failures leave the entity untouched (still stale), so a retry or
// the next job attempt picks it up. Running twice on unchanged content is
// harmless: same text, same vector.
func (g *Generator) Generate(ctx context.Context, typ entity.Type, id string) error {
	e, err := g.entities.Get(ctx, typ, id)
	if err != nil {
		if errors.Is(err, domain.ErrEntityNotFound) {
			// Deleted between publish and pickup.
			g.logger.Debug("Entity gone before embedding",
				zap.String("entity_type", string(typ)), zap.String("entity_id", id))
			return nil
		}
		return fmt.Errorf("load entity %s/%s: %w", typ, id, err)
	}

	text := truncateRunes(e.EmbeddingText(), g.maxChars)
	if text == "" {
		g.logger.Debug("Empty embedding text, skipping",
			zap.String("entity_type", string(typ)), zap.String("entity_id", id))
		return nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := g.embedder.Embed(embedCtx, text)
	if err != nil {
		return fmt.Errorf("embed %s/%s: %w", typ, id, err)
	}

	if g.dimensions > 0 && len(result.Embedding) != g.dimensions {
		return fmt.Errorf("%w: got %d, want %d",
			domain.ErrVectorDimMismatch, len(result.Embedding), g.dimensions)
	}

	generatedAt := time.Now().UnixMilli()
	if err := g.entities.SetVector(ctx, typ, id, result.Embedding, generatedAt); err != nil {
		return fmt.Errorf("store vector %s/%s: %w", typ, id, err)
	}

	g.logger.Debug("Vector generated",
		zap.String("entity_type", string(typ)),
		zap.String("entity_id", id),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return nil
}

// truncateRunes cuts text at a rune boundary. Byte-level truncation could
// split a multi-byte character and change the embedding input between runs.
func truncateRunes(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
