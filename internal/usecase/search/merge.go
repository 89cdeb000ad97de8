package search

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/calliope-hq/calliope/internal/domain/access"
	"github.com/calliope-hq/calliope/internal/domain/principal"
	"github.com/calliope-hq/calliope/internal/domain/search/result"
)

// ranked is a candidate after the vector and keyword hit lists are unioned.
type ranked struct {
	result.Candidate
	vectorScore  float64
	keywordScore float64
	hasVector    bool
	hasKeyword   bool
	combined     float64
}

type mergeKey struct {
	typ string
	id  string
}

// merge unions vector and keyword hits by (type, id), keeping both scores
// for entities found by both modalities. Candidates the principal cannot
// see are dropped here, before any scoring happens. The index prefilter
// already excludes most of them; this predicate is authoritative.
func merge(vectorHits, keywordHits []result.Candidate, p *principal.Principal) []*ranked {
	byKey := make(map[mergeKey]*ranked, len(vectorHits)+len(keywordHits))
	order := make([]*ranked, 0, len(vectorHits)+len(keywordHits))

	add := func(c result.Candidate, vector bool) {
		if !access.Visible(c.Descriptor, p) {
			return
		}
		k := mergeKey{typ: string(c.EntityType), id: c.ID}
		r, ok := byKey[k]
		if !ok {
			r = &ranked{Candidate: c}
			byKey[k] = r
			order = append(order, r)
		}
		if vector {
			r.vectorScore = c.Score
			r.hasVector = true
		} else {
			r.keywordScore = c.Score
			r.hasKeyword = true
		}
	}

	for _, c := range vectorHits {
		add(c, true)
	}
	for _, c := range keywordHits {
		add(c, false)
	}
	return order
}

// score computes each candidate's combined score. BM25 scores are unbounded,
// so keyword scores are first normalized by the per-query maximum to land in
// [0,1] alongside vector similarity. Entities matched by both modalities get
// the weighted sum; single-modality hits keep their one score unweighted so
// they are not penalized for the other modality's silence. A recency
// multiplier then decays the score by entity age.
func (s *Service) score(merged []*ranked) {
	var maxKeyword float64
	for _, r := range merged {
		if r.hasKeyword && r.keywordScore > maxKeyword {
			maxKeyword = r.keywordScore
		}
	}
	for _, r := range merged {
		if r.hasKeyword && maxKeyword > 0 {
			r.keywordScore /= maxKeyword
		}

		switch {
		case r.hasVector && r.hasKeyword:
			r.combined = s.weights.Vector*r.vectorScore + s.weights.Keyword*r.keywordScore
		case r.hasVector:
			r.combined = r.vectorScore
		default:
			r.combined = r.keywordScore
		}
		r.combined *= s.recencyMultiplier(r.UpdatedAt)
	}
}

// recencyMultiplier returns a factor in (0,1] that halves every
// RecencyHalfLifeDays and never drops below RecencyFloor. It is monotonic
// in age: an older entity never outscores a newer one on recency alone.
func (s *Service) recencyMultiplier(updatedAtMillis int64) float64 {
	if s.weights.RecencyHalfLifeDays <= 0 {
		return 1
	}
	age := s.now().Sub(time.UnixMilli(updatedAtMillis))
	if age <= 0 {
		return 1
	}
	ageDays := age.Hours() / 24
	m := math.Pow(0.5, ageDays/s.weights.RecencyHalfLifeDays)
	if m < s.weights.RecencyFloor {
		return s.weights.RecencyFloor
	}
	return m
}

// sortRanked orders candidates by combined score descending, breaking ties
// by type priority, then newer updated_at, then id ascending. The full chain
// makes the ordering total, so equal-score pages are stable across calls.
func (s *Service) sortRanked(merged []*ranked) {
	sort.Slice(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.combined != b.combined {
			return a.combined > b.combined
		}
		pa, pb := s.typePriority(a), s.typePriority(b)
		if pa != pb {
			return pa < pb
		}
		if a.UpdatedAt != b.UpdatedAt {
			return a.UpdatedAt > b.UpdatedAt
		}
		return a.ID < b.ID
	})
}

func (s *Service) typePriority(r *ranked) int {
	if p, ok := s.priority[r.EntityType]; ok {
		return p
	}
	return len(s.priority) // unlisted types sort last
}

func (r *ranked) toResult() result.Result {
	return result.New(
		r.EntityType, r.ID, r.Title, r.Snippet, locator(r.Candidate),
		r.vectorScore, r.keywordScore, r.hasVector, r.hasKeyword,
		r.combined, r.UpdatedAt,
	)
}

// locator builds a stable reference back to the entity.
func locator(c result.Candidate) string {
	return fmt.Sprintf("/api/v1/entities/%s/%s", c.EntityType, c.ID)
}
