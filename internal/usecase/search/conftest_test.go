package search

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/calliope-hq/calliope/internal/domain"
	"github.com/calliope-hq/calliope/internal/domain/entity"
	"github.com/calliope-hq/calliope/internal/domain/principal"
	"github.com/calliope-hq/calliope/internal/domain/search/query"
	"github.com/calliope-hq/calliope/internal/domain/search/result"
)

type mockRepo struct {
	searchKNNFn  func(ctx context.Context, typ entity.Type, p *principal.Principal, vector []float32, topK int) ([]result.Candidate, error)
	searchBM25Fn func(ctx context.Context, typ entity.Type, p *principal.Principal, query string, topK int) ([]result.Candidate, error)
}

func (m *mockRepo) SearchKNN(
	ctx context.Context, typ entity.Type, p *principal.Principal, vector []float32, topK int,
) ([]result.Candidate, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, typ, p, vector, topK)
	}
	return nil, nil
}

func (m *mockRepo) SearchBM25(
	ctx context.Context, typ entity.Type, p *principal.Principal, query string, topK int,
) ([]result.Candidate, error) {
	if m.searchBM25Fn != nil {
		return m.searchBM25Fn(ctx, typ, p, query, topK)
	}
	return nil, nil
}

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return m.result, nil
}

func newTestService(t *testing.T, repo Repository, embed Embedder) *Service {
	t.Helper()
	s := New(
		repo, embed, DefaultWeights(), 5*time.Second,
		[]entity.Type{entity.TypeDocument, entity.TypeNote, entity.TypeComment},
		zap.NewNop(),
	)
	// Frozen clock keeps recency multipliers identical across candidates.
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return s
}

func testPrincipal(t *testing.T, tenants ...string) principal.Principal {
	t.Helper()
	m := make(map[string]principal.MembershipStatus, len(tenants))
	for _, tenant := range tenants {
		m[tenant] = principal.StatusActive
	}
	return principal.New("user-1", m)
}

func testQuery(t *testing.T, text string, limit int, types ...entity.Type) *query.Query {
	t.Helper()
	q, err := query.New(text, types, limit)
	if err != nil {
		t.Fatalf("build query: %v", err)
	}
	return &q
}

func candidate(typ entity.Type, id string, score float64, d entity.Descriptor) result.Candidate {
	return result.Candidate{
		EntityType: typ,
		ID:         id,
		Title:      "Title " + id,
		Snippet:    "Snippet " + id,
		Descriptor: d,
		UpdatedAt:  1700000000000,
		Score:      score,
	}
}

func ownedBy(owner string) entity.Descriptor {
	return entity.Descriptor{OwnerID: owner, Visibility: entity.VisibilityPrivate}
}

func inTenant(tenant string) entity.Descriptor {
	return entity.Descriptor{TenantID: tenant, OwnerID: "someone-else", Visibility: entity.VisibilityPrivate}
}
