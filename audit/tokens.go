package audit

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sirupsen/logrus"
)

// DefaultEncoding is the tokenizer used for prompt estimates
const DefaultEncoding = "cl100k_base"

// TokenCounter estimates prompt sizes. The zero value counts 4 characters per
// token.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	mu       sync.Mutex
}

// NewTokenCounter loads the cl100k_base encoding, falling back to the
// character heuristic when it cannot be loaded (offline hosts)
func NewTokenCounter() *TokenCounter {
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		logrus.WithError(err).Warn("audit: tiktoken unavailable, estimating tokens from length")
		return &TokenCounter{}
	}
	return &TokenCounter{encoding: enc}
}

// Count returns the estimated token count for text
func (c *TokenCounter) Count(text string) int {
	if c == nil || c.encoding == nil {
		return len(text) / 4
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.encoding.Encode(text, nil, nil))
}
