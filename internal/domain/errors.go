package domain

import "errors"

var (
	// ErrEntityNotFound signals a missing searchable entity.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrInvalidEntity signals an entity that failed validation.
	ErrInvalidEntity = errors.New("invalid entity")
	// ErrInvalidQuery signals a malformed search query.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	// Transient: jobs that hit it are retried, searches degrade to lexical.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)
