package entity

import (
	"context"
	"errors"
	"testing"

	"github.com/calliope-hq/calliope/internal/domain"
	doment "github.com/calliope-hq/calliope/internal/domain/entity"
)

func TestUpsert_PublishesEmbedJob(t *testing.T) {
	repo := &mockRepo{}
	jobs := &mockPublisher{}
	svc := newTestService(t, repo, jobs)

	e := testEntity(t)
	created, err := svc.Upsert(context.Background(), &e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected created=true")
	}
	if len(jobs.jobs) != 1 {
		t.Fatalf("expected 1 embed job, got %d", len(jobs.jobs))
	}
	want := domain.EmbedJob{EntityType: "document", EntityID: "doc-1"}
	if jobs.jobs[0] != want {
		t.Errorf("job = %+v, want %+v", jobs.jobs[0], want)
	}
}

func TestUpsert_PublishFailureIsNotFatal(t *testing.T) {
	repo := &mockRepo{}
	jobs := &mockPublisher{err: errors.New("nats unavailable")}
	svc := newTestService(t, repo, jobs)

	e := testEntity(t)
	if _, err := svc.Upsert(context.Background(), &e); err != nil {
		t.Fatalf("publish failure must not fail the upsert, got %v", err)
	}
}

func TestUpsert_StoreErrorSkipsPublish(t *testing.T) {
	repo := &mockRepo{
		upsertFn: func(_ context.Context, _ *doment.Entity) (bool, error) {
			return false, errors.New("redis down")
		},
	}
	jobs := &mockPublisher{}
	svc := newTestService(t, repo, jobs)

	e := testEntity(t)
	if _, err := svc.Upsert(context.Background(), &e); err == nil {
		t.Fatal("expected store error")
	}
	if len(jobs.jobs) != 0 {
		t.Error("no job may be published when the write failed")
	}
}

func TestGet_NotFound(t *testing.T) {
	svc := newTestService(t, &mockRepo{}, &mockPublisher{})

	_, err := svc.Get(context.Background(), doment.TypeDocument, "missing")
	if !errors.Is(err, domain.ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
}

func TestDelete_PublishesNothing(t *testing.T) {
	var deleted bool
	repo := &mockRepo{
		deleteFn: func(_ context.Context, typ doment.Type, id string) error {
			deleted = typ == doment.TypeNote && id == "n1"
			return nil
		},
	}
	jobs := &mockPublisher{}
	svc := newTestService(t, repo, jobs)

	if err := svc.Delete(context.Background(), doment.TypeNote, "n1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !deleted {
		t.Error("expected repo delete to run")
	}
	if len(jobs.jobs) != 0 {
		t.Error("delete must not enqueue embed jobs")
	}
}

func TestMarkStale_PublishesEmbedJob(t *testing.T) {
	var marked bool
	repo := &mockRepo{
		markStaleFn: func(_ context.Context, typ doment.Type, id string) error {
			marked = typ == doment.TypeComment && id == "c1"
			return nil
		},
	}
	jobs := &mockPublisher{}
	svc := newTestService(t, repo, jobs)

	if err := svc.MarkStale(context.Background(), doment.TypeComment, "c1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !marked {
		t.Error("expected repo mark-stale to run")
	}
	if len(jobs.jobs) != 1 || jobs.jobs[0].EntityID != "c1" {
		t.Fatalf("expected 1 embed job for c1, got %+v", jobs.jobs)
	}
}

func TestMarkStale_NotFound(t *testing.T) {
	repo := &mockRepo{
		markStaleFn: func(_ context.Context, _ doment.Type, _ string) error {
			return domain.ErrEntityNotFound
		},
	}
	jobs := &mockPublisher{}
	svc := newTestService(t, repo, jobs)

	err := svc.MarkStale(context.Background(), doment.TypeComment, "missing")
	if !errors.Is(err, domain.ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
	if len(jobs.jobs) != 0 {
		t.Error("no job may be published when mark-stale failed")
	}
}
