package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/calliope-hq/calliope/internal/domain/principal"
	domrag "github.com/calliope-hq/calliope/internal/domain/rag"
	"github.com/calliope-hq/calliope/internal/domain/search/query"
	"github.com/calliope-hq/calliope/internal/domain/search/result"
)

// DefaultTokenBudget bounds the assembled context when the caller does not
// pass a budget.
const DefaultTokenBudget = 1024

const preamble = "Use the following context to answer the question.\n\n"

// Service assembles a token-budgeted RAG context from search results.
// Entries are included whole or not at all; numbering is sequential with
// no gaps, and every number in the prompt text has a matching source.
type Service struct {
	search        Searcher
	counter       TokenCounter
	defaultBudget int
	logger        *zap.Logger
}

// New creates a RAG context service.
func New(search Searcher, counter TokenCounter, defaultBudget int, logger *zap.Logger) *Service {
	if defaultBudget <= 0 {
		defaultBudget = DefaultTokenBudget
	}
	return &Service{search: search, counter: counter, defaultBudget: defaultBudget, logger: logger}
}

// BuildContext searches on behalf of the principal and assembles the ranked
// hits into a prompt within tokenBudget (<=0 means the configured default).
// Zero usable sources is a valid outcome: the prompt then carries only the
// preamble and the query.
func (s *Service) BuildContext(
	ctx context.Context, p *principal.Principal, q *query.Query, tokenBudget int,
) (domrag.Context, error) {
	if tokenBudget <= 0 {
		tokenBudget = s.defaultBudget
	}

	results, err := s.search.Search(ctx, p, q)
	if err != nil {
		return domrag.Context{}, fmt.Errorf("search for context: %w", err)
	}

	return s.assemble(q.Text(), results, tokenBudget), nil
}

// assemble walks the ranked results in order, appending each formatted entry
// while it fits. An entry that would overflow the budget is skipped entirely
// along with everything after it; entries are never cut mid-text.
func (s *Service) assemble(queryText string, results []result.Result, budget int) domrag.Context {
	suffix := "Question: " + queryText + "\n"
	used := s.counter.Count(preamble) + s.counter.Count(suffix)

	var b strings.Builder
	b.WriteString(preamble)

	sources := make([]domrag.Source, 0, len(results))
	for _, r := range results {
		entry := formatEntry(len(sources)+1, &r)
		cost := s.counter.Count(entry)
		if used+cost > budget {
			break
		}
		used += cost
		b.WriteString(entry)
		sources = append(sources, domrag.Source{
			Number:     len(sources) + 1,
			EntityType: r.EntityType(),
			EntityID:   r.ID(),
			Title:      r.Title(),
			Snippet:    r.Snippet(),
			Locator:    r.Locator(),
		})
	}

	b.WriteString(suffix)
	return domrag.Context{
		PromptText: b.String(),
		Sources:    sources,
		TokenCount: used,
	}
}

// formatEntry renders one numbered context entry.
func formatEntry(n int, r *result.Result) string {
	return fmt.Sprintf("[%d] %s: %s\n%s\n\n", n, r.EntityType(), r.Title(), r.Snippet())
}
