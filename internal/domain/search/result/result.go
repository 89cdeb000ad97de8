// Package result defines search hit types: raw per-sub-query candidates and
// the final ranked result.
package result

import "github.com/calliope-hq/calliope/internal/domain/entity"

// Candidate is a raw hit from a single vector or lexical sub-query,
// before access filtering and score combination (ephemeral plumbing).
type Candidate struct {
	EntityType entity.Type
	ID         string
	Title      string
	Snippet    string
	Descriptor entity.Descriptor
	UpdatedAt  int64 // unix millis
	Score      float64
}

// Result is a single ranked search hit.
type Result struct {
	entityType    entity.Type
	id            string
	title         string
	snippet       string
	locator       string
	vectorScore   float64
	keywordScore  float64
	hasVector     bool
	hasKeyword    bool
	combinedScore float64
	updatedAt     int64
}

// New creates a ranked search result. hasVector/hasKeyword report which
// modalities contributed; the corresponding score is meaningless when false.
func New(
	entityType entity.Type, id, title, snippet, locator string,
	vectorScore, keywordScore float64, hasVector, hasKeyword bool,
	combinedScore float64, updatedAt int64,
) Result {
	return Result{
		entityType: entityType, id: id, title: title, snippet: snippet, locator: locator,
		vectorScore: vectorScore, keywordScore: keywordScore,
		hasVector: hasVector, hasKeyword: hasKeyword,
		combinedScore: combinedScore, updatedAt: updatedAt,
	}
}

// EntityType returns the entity type discriminator.
func (r *Result) EntityType() entity.Type { return r.entityType }

// ID returns the entity identifier.
func (r *Result) ID() string { return r.id }

// Title returns the entity title.
func (r *Result) Title() string { return r.title }

// Snippet returns a short excerpt for display and citation.
func (r *Result) Snippet() string { return r.snippet }

// Locator returns a stable link back to the original entity.
func (r *Result) Locator() string { return r.locator }

// VectorScore returns the vector similarity in [0,1].
func (r *Result) VectorScore() float64 { return r.vectorScore }

// KeywordScore returns the normalized lexical match score.
func (r *Result) KeywordScore() float64 { return r.keywordScore }

// HasVector reports whether the vector sub-query matched this entity.
func (r *Result) HasVector() bool { return r.hasVector }

// HasKeyword reports whether the lexical sub-query matched this entity.
func (r *Result) HasKeyword() bool { return r.hasKeyword }

// CombinedScore returns the final ranking score.
func (r *Result) CombinedScore() float64 { return r.combinedScore }

// UpdatedAt returns the entity's last mutation time in unix millis.
func (r *Result) UpdatedAt() int64 { return r.updatedAt }
