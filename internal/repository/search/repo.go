package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/calliope-hq/calliope/internal/db"
	"github.com/calliope-hq/calliope/internal/domain"
	"github.com/calliope-hq/calliope/internal/domain/entity"
	"github.com/calliope-hq/calliope/internal/domain/principal"
	"github.com/calliope-hq/calliope/internal/domain/search/result"
)

// snippetMaxRunes bounds the excerpt carried into assembled context.
const snippetMaxRunes = 240

var returnFields = []string{
	"title", "__content", "tenant_id", "owner_id", "visibility", "updated_at",
}

// store is the consumer interface for search operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
}

// Repo implements the per-type sub-query ports of usecase/search.
type Repo struct {
	store store
}

// New creates a search repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// SearchKNN runs a vector similarity sub-query against one entity type's
// index, pre-filtered to what the principal may see.
func (r *Repo) SearchKNN(
	ctx context.Context, typ entity.Type, p *principal.Principal,
	vector []float32, topK int,
) ([]result.Candidate, error) {
	q := &db.KNNQuery{
		IndexName:    indexName(typ),
		Prefilter:    AccessPrefilter(p),
		Vector:       vector,
		K:            topK,
		ReturnFields: returnFields,
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search knn %s: %w", typ, err)
	}

	return parseCandidates(sr, typ), nil
}

// SearchBM25 runs a keyword sub-query against one entity type's index,
// pre-filtered to what the principal may see.
func (r *Repo) SearchBM25(
	ctx context.Context, typ entity.Type, p *principal.Principal,
	query string, topK int,
) ([]result.Candidate, error) {
	q := &db.TextQuery{
		IndexName:    indexName(typ),
		Query:        query,
		Prefilter:    AccessPrefilter(p),
		TopK:         topK,
		ReturnFields: returnFields,
	}

	sr, err := r.store.SearchBM25(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search bm25 %s: %w", typ, err)
	}

	return parseCandidates(sr, typ), nil
}

// AccessPrefilter builds the index-side visibility filter for a principal:
// public entities, owned entities, or entities in a tenant with an active
// membership. The in-process predicate re-checks every hit; this filter only
// keeps invisible entities from consuming candidate slots.
func AccessPrefilter(p *principal.Principal) string {
	return db.AnyOf(
		db.TagFilter("visibility",
			string(entity.VisibilityPublicRead), string(entity.VisibilityPublicWrite)),
		db.TagFilter("owner_id", p.ID()),
		db.TagFilter("tenant_id", p.ActiveTenants()...),
	)
}

func indexName(typ entity.Type) string {
	return fmt.Sprintf("%s%s:idx", domain.KeyPrefix, typ)
}

func parseCandidates(sr *db.SearchResult, typ entity.Type) []result.Candidate {
	if sr == nil || sr.Total == 0 {
		return nil
	}

	prefix := fmt.Sprintf("%s%s:", domain.KeyPrefix, typ)
	candidates := make([]result.Candidate, 0, len(sr.Entries))

	for _, entry := range sr.Entries {
		id := strings.TrimPrefix(entry.Key, prefix)
		candidates = append(candidates, parseEntryFields(typ, id, entry))
	}

	return candidates
}

func parseEntryFields(typ entity.Type, id string, entry db.SearchEntry) result.Candidate {
	updatedAt, _ := strconv.ParseInt(entry.Fields["updated_at"], 10, 64)

	return result.Candidate{
		EntityType: typ,
		ID:         id,
		Title:      entry.Fields["title"],
		Snippet:    snippetFrom(entry.Fields["__content"]),
		Descriptor: entity.Descriptor{
			TenantID:   entry.Fields["tenant_id"],
			OwnerID:    entry.Fields["owner_id"],
			Visibility: entity.Visibility(entry.Fields["visibility"]),
		},
		UpdatedAt: updatedAt,
		Score:     entry.Score,
	}
}

// snippetFrom takes a bounded prefix of the indexed content, cut at a rune
// boundary and trimmed to the last whole word.
func snippetFrom(content string) string {
	if utf8.RuneCountInString(content) <= snippetMaxRunes {
		return content
	}

	runes := []rune(content)
	cut := string(runes[:snippetMaxRunes])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
