package entity

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/calliope-hq/calliope/internal/domain"
	doment "github.com/calliope-hq/calliope/internal/domain/entity"
)

type mockRepo struct {
	upsertFn    func(ctx context.Context, e *doment.Entity) (bool, error)
	getFn       func(ctx context.Context, typ doment.Type, id string) (doment.Entity, error)
	deleteFn    func(ctx context.Context, typ doment.Type, id string) error
	markStaleFn func(ctx context.Context, typ doment.Type, id string) error
}

func (m *mockRepo) Upsert(ctx context.Context, e *doment.Entity) (bool, error) {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, e)
	}
	return true, nil
}

func (m *mockRepo) Get(ctx context.Context, typ doment.Type, id string) (doment.Entity, error) {
	if m.getFn != nil {
		return m.getFn(ctx, typ, id)
	}
	return doment.Entity{}, domain.ErrEntityNotFound
}

func (m *mockRepo) Delete(ctx context.Context, typ doment.Type, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, typ, id)
	}
	return nil
}

func (m *mockRepo) MarkStale(ctx context.Context, typ doment.Type, id string) error {
	if m.markStaleFn != nil {
		return m.markStaleFn(ctx, typ, id)
	}
	return nil
}

type mockPublisher struct {
	err  error
	jobs []domain.EmbedJob
}

func (m *mockPublisher) PublishEmbedJob(_ context.Context, job domain.EmbedJob) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

func newTestService(t *testing.T, repo *mockRepo, jobs *mockPublisher) *Service {
	t.Helper()
	return New(repo, jobs, zap.NewNop())
}

func testEntity(t *testing.T) doment.Entity {
	t.Helper()
	e, err := doment.New(
		"doc-1", doment.TypeDocument, "Launch Plan", "Ship in Q3.",
		"acme", "user-1", doment.VisibilityPrivate, 1700000000000,
	)
	if err != nil {
		t.Fatalf("build entity: %v", err)
	}
	return e
}
