package entity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/calliope-hq/calliope/internal/domain"
	doment "github.com/calliope-hq/calliope/internal/domain/entity"
)

// Service handles entity sync from the system of record. Every content
// mutation lands with stale=true in the same storage write; embedding
// regeneration is published as an async job and never runs inline.
type Service struct {
	repo   Repository
	jobs   JobPublisher
	logger *zap.Logger
}

// New creates an entity service.
func New(repo Repository, jobs JobPublisher, logger *zap.Logger) *Service {
	return &Service{repo: repo, jobs: jobs, logger: logger}
}

// Upsert creates or updates an entity and enqueues embedding regeneration.
// Returns true if the entity was created, false if updated. A failed publish
// is logged, not returned: the content write already succeeded and the
// stale flag keeps the entity eligible for a later reindex sweep.
func (s *Service) Upsert(ctx context.Context, e *doment.Entity) (bool, error) {
	created, err := s.repo.Upsert(ctx, e)
	if err != nil {
		return false, fmt.Errorf("upsert entity: %w", err)
	}

	s.publish(ctx, e.Type(), e.ID())
	return created, nil
}

// Get retrieves an entity by type and id.
func (s *Service) Get(ctx context.Context, typ doment.Type, id string) (doment.Entity, error) {
	e, err := s.repo.Get(ctx, typ, id)
	if err != nil {
		return doment.Entity{}, fmt.Errorf("get entity: %w", err)
	}
	return e, nil
}

// Delete removes an entity, its vector, and its index entries.
func (s *Service) Delete(ctx context.Context, typ doment.Type, id string) error {
	if err := s.repo.Delete(ctx, typ, id); err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	return nil
}

// MarkStale flags an entity for regeneration without changing its content
// and enqueues the embed job. Used by reindex sweeps and model migrations.
func (s *Service) MarkStale(ctx context.Context, typ doment.Type, id string) error {
	if err := s.repo.MarkStale(ctx, typ, id); err != nil {
		return fmt.Errorf("mark stale: %w", err)
	}

	s.publish(ctx, typ, id)
	return nil
}

func (s *Service) publish(ctx context.Context, typ doment.Type, id string) {
	job := domain.EmbedJob{EntityType: string(typ), EntityID: id}
	if err := s.jobs.PublishEmbedJob(ctx, job); err != nil {
		s.logger.Warn("Embed job publish failed; entity stays stale until reindexed",
			zap.String("entity_type", string(typ)),
			zap.String("entity_id", id),
			zap.Error(err),
		)
	}
}
