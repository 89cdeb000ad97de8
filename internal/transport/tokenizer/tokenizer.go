// Package tokenizer counts tokens for the context budget using tiktoken
// encodings, with a deterministic heuristic fallback.
package tokenizer

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding matches current OpenAI embedding and chat models.
const DefaultEncoding = "cl100k_base"

// Counter counts tokens with a loaded tiktoken encoding.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// New loads the named encoding (empty means DefaultEncoding).
func New(encoding string) (*Counter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", encoding, err)
	}
	return &Counter{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Heuristic approximates token counts as ceil(runes/4). Used when an
// encoding cannot be loaded (offline environments); it overestimates for
// dense prose, which errs on the safe side of the budget.
type Heuristic struct{}

// Count returns the approximate number of tokens in text.
func (Heuristic) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
