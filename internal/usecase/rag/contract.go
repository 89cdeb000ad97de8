package rag

import (
	"context"

	"github.com/calliope-hq/calliope/internal/domain/principal"
	"github.com/calliope-hq/calliope/internal/domain/search/query"
	"github.com/calliope-hq/calliope/internal/domain/search/result"
)

// Searcher runs the hybrid search that supplies candidate sources.
type Searcher interface {
	Search(ctx context.Context, p *principal.Principal, q *query.Query) ([]result.Result, error)
}

// TokenCounter counts tokens the way the downstream model does.
type TokenCounter interface {
	Count(text string) int
}
