package rag

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/calliope-hq/calliope/internal/domain/entity"
	"github.com/calliope-hq/calliope/internal/domain/principal"
	"github.com/calliope-hq/calliope/internal/domain/search/query"
	"github.com/calliope-hq/calliope/internal/domain/search/result"
)

type mockSearcher struct {
	results []result.Result
	err     error
}

func (m *mockSearcher) Search(
	_ context.Context, _ *principal.Principal, _ *query.Query,
) ([]result.Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

// countFn adapts a function to the TokenCounter interface.
type countFn func(text string) int

func (f countFn) Count(text string) int { return f(text) }

// entryCounter charges a flat cost per context entry and nothing for the
// preamble and question, making budget arithmetic exact in tests.
func entryCounter(perEntry int) TokenCounter {
	return countFn(func(text string) int {
		if strings.HasPrefix(text, "[") {
			return perEntry
		}
		return 0
	})
}

func newTestService(t *testing.T, search Searcher, counter TokenCounter) *Service {
	t.Helper()
	return New(search, counter, DefaultTokenBudget, zap.NewNop())
}

func testQuery(t *testing.T, text string) *query.Query {
	t.Helper()
	q, err := query.New(text, nil, 0)
	if err != nil {
		t.Fatalf("build query: %v", err)
	}
	return &q
}

func testPrincipal(t *testing.T) principal.Principal {
	t.Helper()
	return principal.New("user-1", nil)
}

func hit(t *testing.T, typ entity.Type, id, title, snippet string) result.Result {
	t.Helper()
	return result.New(
		typ, id, title, snippet, "/api/v1/entities/"+string(typ)+"/"+id,
		0.8, 0.6, true, true, 0.7, 1700000000000,
	)
}
