// Package rag defines the assembled retrieval context handed to an external
// LLM orchestrator.
package rag

import "github.com/calliope-hq/calliope/internal/domain/entity"

// Source is a numbered, attributable context entry.
type Source struct {
	Number     int         `json:"number"`
	EntityType entity.Type `json:"entity_type"`
	EntityID   string      `json:"entity_id"`
	Title      string      `json:"title"`
	Snippet    string      `json:"snippet"`
	Locator    string      `json:"locator"`
}

// Context is a token-bounded context block plus its source attribution list.
// Source numbers are sequential from 1 and match the entries present in
// PromptText exactly.
type Context struct {
	PromptText string   `json:"prompt_text"`
	Sources    []Source `json:"sources"`
	TokenCount int      `json:"token_count"`
}
