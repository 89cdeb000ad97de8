package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/calliope-hq/calliope/internal/domain"
	doment "github.com/calliope-hq/calliope/internal/domain/entity"
	"github.com/calliope-hq/calliope/internal/domain/principal"
	domrag "github.com/calliope-hq/calliope/internal/domain/rag"
	"github.com/calliope-hq/calliope/internal/domain/search/query"
	"github.com/calliope-hq/calliope/internal/domain/search/result"
	healthuc "github.com/calliope-hq/calliope/internal/usecase/health"
)

// Consumer-side service contracts.
type entityService interface {
	Upsert(ctx context.Context, e *doment.Entity) (created bool, err error)
	Get(ctx context.Context, typ doment.Type, id string) (doment.Entity, error)
	Delete(ctx context.Context, typ doment.Type, id string) error
	MarkStale(ctx context.Context, typ doment.Type, id string) error
}

type searchService interface {
	Search(ctx context.Context, p *principal.Principal, q *query.Query) ([]result.Result, error)
}

type contextService interface {
	BuildContext(
		ctx context.Context, p *principal.Principal, q *query.Query, tokenBudget int,
	) (domrag.Context, error)
}

type healthService interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API.
type Server struct {
	entities      entityService
	search        searchService
	rag           contextService
	health        healthService
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	entities entityService,
	search searchService,
	rag contextService,
	health healthService,
	logger *zap.Logger,
) *Server {
	s := &Server{
		entities: entities,
		search:   search,
		rag:      rag,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEntityNotFound, http.StatusNotFound, codeEntityNotFound),
		sentinelHandler(domain.ErrInvalidEntity, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, codeVectorDimMismatch),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, codeEmbeddingQuota),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProviderError),
	}
	return s
}

// Routes registers all handlers on the router.
func (s *Server) Routes(r chirouter.Router) {
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chirouter.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/context", s.handleContext)
		r.Route("/entities/{type}/{id}", func(r chirouter.Router) {
			r.Put("/", s.handleUpsertEntity)
			r.Get("/", s.handleGetEntity)
			r.Delete("/", s.handleDeleteEntity)
			r.Post("/reindex", s.handleReindex)
		})
	})
}

// handleSearch handles POST /api/v1/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	p, q, ok := s.principalAndQuery(w, req.Principal, req.Query, req.EntityTypes, req.Limit)
	if !ok {
		return
	}

	results, err := s.search.Search(r.Context(), &p, q)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]searchResultItem, len(results))
	for i := range results {
		items[i] = searchResultToDTO(&results[i])
	}
	writeJSON(w, http.StatusOK, searchResponse{Items: items, Total: len(items)})
}

// handleContext handles POST /api/v1/context.
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.TokenBudget < 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "token_budget must be positive")
		return
	}

	p, q, ok := s.principalAndQuery(w, req.Principal, req.Query, req.EntityTypes, req.Limit)
	if !ok {
		return
	}

	rc, err := s.rag.BuildContext(r.Context(), &p, q, req.TokenBudget)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

// handleUpsertEntity handles PUT /api/v1/entities/{type}/{id}.
func (s *Server) handleUpsertEntity(w http.ResponseWriter, r *http.Request) {
	typ, id, ok := s.entityRef(w, r)
	if !ok {
		return
	}

	var req upsertEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	updatedAt := req.UpdatedAt
	if updatedAt == 0 {
		updatedAt = time.Now().UnixMilli()
	}

	e, err := doment.New(
		id, typ, req.Title, req.Body,
		req.TenantID, req.OwnerID, doment.Visibility(req.Visibility), updatedAt,
	)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	created, err := s.entities.Upsert(r.Context(), &e)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		w.Header().Set("Location", fmt.Sprintf("/api/v1/entities/%s/%s", typ, id))
	}
	writeJSON(w, status, map[string]any{
		"entity_type": typ,
		"id":          id,
		"stale":       true,
	})
}

// handleGetEntity handles GET /api/v1/entities/{type}/{id}.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	typ, id, ok := s.entityRef(w, r)
	if !ok {
		return
	}

	e, err := s.entities.Get(r.Context(), typ, id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entityToDTO(&e))
}

// handleDeleteEntity handles DELETE /api/v1/entities/{type}/{id}.
func (s *Server) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	typ, id, ok := s.entityRef(w, r)
	if !ok {
		return
	}

	if err := s.entities.Delete(r.Context(), typ, id); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReindex handles POST /api/v1/entities/{type}/{id}/reindex. It marks
// the entity stale and enqueues regeneration without touching content.
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	typ, id, ok := s.entityRef(w, r)
	if !ok {
		return
	}

	if err := s.entities.MarkStale(r.Context(), typ, id); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, healthResponse{Status: string(report.Status), Checks: checks})
}

func (s *Server) principalAndQuery(
	w http.ResponseWriter, pd principalDTO, text string, typeNames []string, limit int,
) (principal.Principal, *query.Query, bool) {
	p, err := pd.toDomain()
	if err != nil {
		s.handleDomainError(w, err)
		return principal.Principal{}, nil, false
	}

	types, err := parseEntityTypes(typeNames)
	if err != nil {
		s.handleDomainError(w, err)
		return principal.Principal{}, nil, false
	}

	q, err := query.New(text, types, limit)
	if err != nil {
		s.handleDomainError(w, err)
		return principal.Principal{}, nil, false
	}
	return p, &q, true
}

func (s *Server) entityRef(w http.ResponseWriter, r *http.Request) (doment.Type, string, bool) {
	typ, err := doment.ParseType(chirouter.URLParam(r, "type"))
	if err != nil {
		s.handleDomainError(w, err)
		return "", "", false
	}
	id := chirouter.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "entity id is required")
		return "", "", false
	}
	return typ, id, true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrEntityNotFound,
		domain.ErrInvalidEntity,
		domain.ErrInvalidQuery,
		domain.ErrVectorDimMismatch,
		domain.ErrRateLimited,
		domain.ErrEmbeddingQuotaExceeded,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}
