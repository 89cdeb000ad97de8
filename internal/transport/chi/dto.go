package chi

import (
	"fmt"
	"time"

	"github.com/calliope-hq/calliope/internal/domain"
	"github.com/calliope-hq/calliope/internal/domain/entity"
	"github.com/calliope-hq/calliope/internal/domain/principal"
	"github.com/calliope-hq/calliope/internal/domain/search/result"
)

// errorCode is the machine-readable error discriminator in error responses.
type errorCode string

const (
	codeBadRequest             errorCode = "bad_request"
	codeValidationFailed       errorCode = "validation_failed"
	codeEntityNotFound         errorCode = "entity_not_found"
	codeVectorDimMismatch      errorCode = "vector_dim_mismatch"
	codeRateLimited            errorCode = "rate_limited"
	codeEmbeddingQuota         errorCode = "embedding_quota_exceeded"
	codeEmbeddingProviderError errorCode = "embedding_provider_error"
	codeInternalError          errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// principalDTO carries the caller's identity and tenant memberships. The
// gateway in front of this service resolves sessions; we trust its claims.
type principalDTO struct {
	UserID      string            `json:"user_id"`
	Memberships map[string]string `json:"memberships,omitempty"`
}

func (d *principalDTO) toDomain() (principal.Principal, error) {
	if d.UserID == "" {
		return principal.Principal{}, fmt.Errorf("%w: principal.user_id is required", domain.ErrInvalidQuery)
	}
	m := make(map[string]principal.MembershipStatus, len(d.Memberships))
	for tenant, status := range d.Memberships {
		switch s := principal.MembershipStatus(status); s {
		case principal.StatusActive, principal.StatusSuspended, principal.StatusRevoked:
			m[tenant] = s
		default:
			return principal.Principal{}, fmt.Errorf(
				"%w: unknown membership status %q for tenant %q", domain.ErrInvalidQuery, status, tenant)
		}
	}
	return principal.New(d.UserID, m), nil
}

type searchRequest struct {
	Query       string       `json:"query"`
	Principal   principalDTO `json:"principal"`
	EntityTypes []string     `json:"entity_types,omitempty"`
	Limit       int          `json:"limit,omitempty"`
}

type searchResultItem struct {
	EntityType    string    `json:"entity_type"`
	ID            string    `json:"id"`
	Title         string    `json:"title,omitempty"`
	Snippet       string    `json:"snippet,omitempty"`
	Locator       string    `json:"locator"`
	VectorScore   *float64  `json:"vector_score,omitempty"`
	KeywordScore  *float64  `json:"keyword_score,omitempty"`
	CombinedScore float64   `json:"combined_score"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type searchResponse struct {
	Items []searchResultItem `json:"items"`
	Total int                `json:"total"`
}

type contextRequest struct {
	Query       string       `json:"query"`
	Principal   principalDTO `json:"principal"`
	EntityTypes []string     `json:"entity_types,omitempty"`
	Limit       int          `json:"limit,omitempty"`
	TokenBudget int          `json:"token_budget,omitempty"`
}

// upsertEntityRequest syncs one entity's content and ownership from the
// system of record. Type and id come from the URL.
type upsertEntityRequest struct {
	Title      string `json:"title,omitempty"`
	Body       string `json:"body"`
	TenantID   string `json:"tenant_id,omitempty"`
	OwnerID    string `json:"owner_id"`
	Visibility string `json:"visibility,omitempty"`
	UpdatedAt  int64  `json:"updated_at,omitempty"`
}

type entityResponse struct {
	EntityType string `json:"entity_type"`
	ID         string `json:"id"`
	Title      string `json:"title,omitempty"`
	Body       string `json:"body"`
	TenantID   string `json:"tenant_id,omitempty"`
	OwnerID    string `json:"owner_id"`
	Visibility string `json:"visibility"`
	UpdatedAt  int64  `json:"updated_at"`
	Stale      bool   `json:"stale"`
}

func entityToDTO(e *entity.Entity) entityResponse {
	return entityResponse{
		EntityType: string(e.Type()),
		ID:         e.ID(),
		Title:      e.Title(),
		Body:       e.Body(),
		TenantID:   e.TenantID(),
		OwnerID:    e.OwnerID(),
		Visibility: string(e.Visibility()),
		UpdatedAt:  e.UpdatedAt(),
		Stale:      e.Stale(),
	}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func parseEntityTypes(names []string) ([]entity.Type, error) {
	if len(names) == 0 {
		return nil, nil
	}
	types := make([]entity.Type, 0, len(names))
	for _, n := range names {
		t, err := entity.ParseType(n)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

func searchResultToDTO(r *result.Result) searchResultItem {
	item := searchResultItem{
		EntityType:    string(r.EntityType()),
		ID:            r.ID(),
		Title:         r.Title(),
		Snippet:       r.Snippet(),
		Locator:       r.Locator(),
		CombinedScore: r.CombinedScore(),
		UpdatedAt:     time.UnixMilli(r.UpdatedAt()).UTC(),
	}
	if r.HasVector() {
		v := r.VectorScore()
		item.VectorScore = &v
	}
	if r.HasKeyword() {
		k := r.KeywordScore()
		item.KeywordScore = &k
	}
	return item
}
