package entity

import (
	"context"
	"fmt"
	"strconv"

	"github.com/calliope-hq/calliope/internal/db"
	"github.com/calliope-hq/calliope/internal/domain"
	doment "github.com/calliope-hq/calliope/internal/domain/entity"
)

// store is the consumer interface for entity hashes (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Repo implements the entity persistence ports of the usecase layer.
type Repo struct {
	store store
}

// New creates an entity repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Upsert creates or replaces an entity. Returns true if created. Content and
// the stale flag land in a single HSET so readers never see one without the
// other.
func (r *Repo) Upsert(ctx context.Context, e *doment.Entity) (bool, error) {
	key := entityKey(e.Type(), e.ID())

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check exists %s: %w", key, err)
	}

	if err := r.store.HSet(ctx, key, buildHashFields(e)); err != nil {
		return false, fmt.Errorf("hset %s: %w", key, err)
	}

	return !exists, nil
}

// Get returns an entity by type and ID.
func (r *Repo) Get(ctx context.Context, typ doment.Type, id string) (doment.Entity, error) {
	key := entityKey(typ, id)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return doment.Entity{}, fmt.Errorf("hgetall %s: %w", key, err)
	}
	if len(m) == 0 {
		// HGETALL returns an empty map for missing keys.
		return doment.Entity{}, domain.ErrEntityNotFound
	}
	return parseHashFields(typ, id, m), nil
}

// Delete removes an entity. The FT index drops the document with the key.
func (r *Repo) Delete(ctx context.Context, typ doment.Type, id string) error {
	key := entityKey(typ, id)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists %s: %w", key, err)
	}
	if !exists {
		return domain.ErrEntityNotFound
	}

	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// SetVector writes the vector triple in a single HSET: vector bytes,
// generation timestamp, and the cleared stale flag. The generator is the only
// caller.
func (r *Repo) SetVector(
	ctx context.Context, typ doment.Type, id string, vector []float32, generatedAt int64,
) error {
	key := entityKey(typ, id)
	fields := map[string]string{
		fieldVector:      vectorToBytes(vector),
		fieldGeneratedAt: strconv.FormatInt(generatedAt, 10),
		fieldStale:       "0",
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("hset vector %s: %w", key, err)
	}
	return nil
}

// MarkStale re-asserts the stale flag without touching content or vector.
func (r *Repo) MarkStale(ctx context.Context, typ doment.Type, id string) error {
	key := entityKey(typ, id)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists %s: %w", key, err)
	}
	if !exists {
		return domain.ErrEntityNotFound
	}

	if err := r.store.HSet(ctx, key, map[string]string{fieldStale: "1"}); err != nil {
		return fmt.Errorf("hset stale %s: %w", key, err)
	}
	return nil
}

// Key returns the storage key for an entity.
func Key(typ doment.Type, id string) string {
	return entityKey(typ, id)
}

// IndexName returns the FT index name for an entity type.
func IndexName(typ doment.Type) string {
	return fmt.Sprintf("%s%s:idx", domain.KeyPrefix, typ)
}

// KeyPrefix returns the key prefix covered by an entity type's index.
func KeyPrefix(typ doment.Type) string {
	return fmt.Sprintf("%s%s:", domain.KeyPrefix, typ)
}

// IndexDefinition builds the FT schema for one entity type.
func IndexDefinition(typ doment.Type, dim int, metric db.DistanceMetric, m, efConstruct int) (*db.IndexDefinition, error) {
	return db.NewIndex(IndexName(typ)).
		Prefix(KeyPrefix(typ)).
		Text(fieldContent).
		Tag(fieldTenantID).
		Tag(fieldOwnerID).
		Tag(fieldVisibility).
		Tag(fieldStale).
		Numeric(fieldUpdatedAt).
		VectorHNSW(fieldVector, dim, metric, m, efConstruct).
		Build()
}

func entityKey(typ doment.Type, id string) string {
	return fmt.Sprintf("%s%s:%s", domain.KeyPrefix, typ, id)
}
