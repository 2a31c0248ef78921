package inference

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer provides client-side token counting so prompts can be trimmed to
// a backend's budget before the request is sent.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenizer creates a tokenizer using the cl100k_base encoding. Callers
// should tolerate failure (the encoding data may be unavailable offline) and
// fall back to heuristic counting via a nil-safe CountTokens.
func NewTokenizer() (*Tokenizer, error) {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tokenizer: %w", err)
	}
	return &Tokenizer{encoding: encoding}, nil
}

// CountTokens returns the token count for text. A nil tokenizer (or one
// without an encoding) estimates at four characters per token.
func (t *Tokenizer) CountTokens(text string) int {
	if t == nil || t.encoding == nil {
		return (len(text) + 3) / 4
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// Truncate trims text to at most maxTokens, preserving the head. Without an
// encoding it trims on the four-characters-per-token estimate.
func (t *Tokenizer) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	if t == nil || t.encoding == nil {
		limit := maxTokens * 4
		if len(text) <= limit {
			return text
		}
		return text[:limit]
	}

	tokens := t.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return t.encoding.Decode(tokens[:maxTokens])
}
