package entity

import (
	"context"

	"github.com/calliope-hq/calliope/internal/domain"
	doment "github.com/calliope-hq/calliope/internal/domain/entity"
)

// Repository defines the storage contract for entities.
type Repository interface {
	Upsert(ctx context.Context, e *doment.Entity) (created bool, err error)
	Get(ctx context.Context, typ doment.Type, id string) (doment.Entity, error)
	Delete(ctx context.Context, typ doment.Type, id string) error
	MarkStale(ctx context.Context, typ doment.Type, id string) error
}

// JobPublisher enqueues asynchronous embedding work.
type JobPublisher interface {
	PublishEmbedJob(ctx context.Context, job domain.EmbedJob) error
}
