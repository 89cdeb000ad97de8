package search

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/calliope-hq/calliope/internal/domain/entity"
	"github.com/calliope-hq/calliope/internal/domain/principal"
	"github.com/calliope-hq/calliope/internal/domain/search/query"
	"github.com/calliope-hq/calliope/internal/domain/search/result"
	"github.com/calliope-hq/calliope/internal/metrics"
)

// Weights configures score combination and recency decay.
type Weights struct {
	Vector              float64
	Keyword             float64
	RecencyHalfLifeDays float64
	RecencyFloor        float64
}

// DefaultWeights returns an even vector/keyword split with a 30-day half-life.
func DefaultWeights() Weights {
	return Weights{
		Vector:              0.5,
		Keyword:             0.5,
		RecencyHalfLifeDays: 30,
		RecencyFloor:        0.1,
	}
}

// Service runs hybrid search: parallel per-type vector and keyword
// sub-queries, an access filter, weighted score combination, and a single
// ranked cut. Sub-query failures degrade result quality but never fail the
// call; only an empty query does.
type Service struct {
	repo     Repository
	embed    Embedder
	weights  Weights
	timeout  time.Duration
	priority map[entity.Type]int
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a search service. typePriority breaks score ties; earlier
// types win.
func New(
	repo Repository, embed Embedder,
	weights Weights, timeout time.Duration, typePriority []entity.Type,
	logger *zap.Logger,
) *Service {
	if len(typePriority) == 0 {
		typePriority = entity.AllTypes()
	}
	priority := make(map[entity.Type]int, len(typePriority))
	for i, t := range typePriority {
		priority[t] = i
	}
	return &Service{
		repo:     repo,
		embed:    embed,
		weights:  weights,
		timeout:  timeout,
		priority: priority,
		logger:   logger,
		now:      time.Now,
	}
}

// Search executes a hybrid search for the principal.
func (s *Service) Search(
	ctx context.Context, p *principal.Principal, q *query.Query,
) ([]result.Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	queryVec := s.embedQuery(ctx, q.Text())

	vectorHits, keywordHits := s.fanOut(ctx, p, q, queryVec)

	merged := merge(vectorHits, keywordHits, p)
	s.score(merged)
	s.sortRanked(merged)

	results := make([]result.Result, 0, min(len(merged), q.Limit()))
	for i, m := range merged {
		if i >= q.Limit() {
			break
		}
		results = append(results, m.toResult())
	}
	return results, nil
}

// embedQuery vectorizes the query text. On failure the search degrades to
// lexical-only instead of failing.
func (s *Service) embedQuery(ctx context.Context, text string) []float32 {
	res, err := s.embed.Embed(ctx, text)
	if err != nil {
		s.logger.Warn("Query embedding failed, degrading to lexical-only", zap.Error(err))
		metrics.SearchDegradedTotal.WithLabelValues("query_embed_failed").Inc()
		return nil
	}
	return res.Embedding
}

// fanOut runs one vector and one keyword sub-query per entity type in
// parallel. Each sub-query is capped at limit*3 candidates. A failed or
// timed-out sub-query contributes nothing; the rest still count.
func (s *Service) fanOut(
	ctx context.Context, p *principal.Principal, q *query.Query, queryVec []float32,
) (vectorHits, keywordHits []result.Candidate) {
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	topK := q.FanOut()

	for _, typ := range q.Types() {
		if queryVec != nil {
			g.Go(func() error {
				hits, err := s.repo.SearchKNN(ctx, typ, p, queryVec, topK)
				s.recordSubquery(typ, "vector", err)
				if err != nil {
					return nil
				}
				mu.Lock()
				vectorHits = append(vectorHits, hits...)
				mu.Unlock()
				return nil
			})
		}
		g.Go(func() error {
			hits, err := s.repo.SearchBM25(ctx, typ, p, q.Text(), topK)
			s.recordSubquery(typ, "keyword", err)
			if err != nil {
				return nil
			}
			mu.Lock()
			keywordHits = append(keywordHits, hits...)
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait() // sub-query errors are swallowed above
	return vectorHits, keywordHits
}

func (s *Service) recordSubquery(typ entity.Type, kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		s.logger.Warn("Search sub-query failed",
			zap.String("entity_type", string(typ)),
			zap.String("kind", kind),
			zap.Error(err),
		)
		metrics.SearchDegradedTotal.WithLabelValues("subquery_failed").Inc()
	}
	metrics.SearchSubqueriesTotal.WithLabelValues(string(typ), kind, status).Inc()
}
