// Package query defines the validated hybrid search query value object.
package query

import (
	"fmt"

	"github.com/calliope-hq/calliope/internal/domain"
	"github.com/calliope-hq/calliope/internal/domain/entity"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 4096
	DefaultLimit   = 20
	MaxLimit       = 100
	// FanOutFactor bounds per-type sub-query size relative to the limit.
	FanOutFactor = 3
)

// Query is a validated hybrid search query.
type Query struct {
	text  string
	types []entity.Type
	limit int
}

// New validates and normalizes search parameters.
// Defaults: all entity types, limit=20. Limit is capped at 100.
func New(text string, types []entity.Type, limit int) (Query, error) {
	if text == "" {
		return Query{}, fmt.Errorf("%w: query text is required", domain.ErrInvalidQuery)
	}
	if len(text) > MaxQueryLength {
		return Query{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrInvalidQuery, MaxQueryLength)
	}
	if len(types) == 0 {
		types = entity.AllTypes()
	} else {
		seen := make(map[entity.Type]bool, len(types))
		for _, t := range types {
			if _, err := entity.ParseType(string(t)); err != nil {
				return Query{}, err
			}
			if seen[t] {
				return Query{}, fmt.Errorf("%w: duplicate entity type %q", domain.ErrInvalidQuery, t)
			}
			seen[t] = true
		}
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Query{text: text, types: types, limit: limit}, nil
}

// Text returns the search query text.
func (q *Query) Text() string { return q.text }

// Types returns the requested entity types.
func (q *Query) Types() []entity.Type { return q.types }

// Limit returns the maximum results to return.
func (q *Query) Limit() int { return q.limit }

// FanOut returns the per-sub-query candidate cap.
func (q *Query) FanOut() int { return q.limit * FanOutFactor }
