package llm

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"agentforge/internal/domain"
)

// Compile-time interface check.
var _ domain.TokenCounter = (*TiktokenCounter)(nil)

// TiktokenCounter counts tokens with the cl100k_base encoding, which is a
// close enough estimate across the OpenAI-compatible model families served
// through OpenRouter. Falls back to a bytes/4 heuristic if the encoding
// cannot be loaded.
type TiktokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTiktokenCounter creates a counter. Encoding data loads lazily on the
// first Count call.
func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{}
}

// Count returns the number of tokens in text.
func (c *TiktokenCounter) Count(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			c.enc = enc
		}
	})
	if c.enc == nil {
		return (len(text) + 3) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}

// contextLimits maps known model names to context window sizes in tokens.
var contextLimits = map[string]int{
	"openai/gpt-4o":                   128000,
	"openai/gpt-4o-mini":              128000,
	"openai/gpt-4-turbo":              128000,
	"openai/gpt-3.5-turbo":            16385,
	"anthropic/claude-3.5-sonnet":     200000,
	"anthropic/claude-3-opus":         200000,
	"anthropic/claude-3-sonnet":       200000,
	"anthropic/claude-3-haiku":        200000,
	"google/gemini-pro":               32768,
	"meta-llama/llama-3-70b-instruct": 8192,
}

// contextLimitPrefixes covers model families not listed exactly.
var contextLimitPrefixes = []struct {
	prefix string
	limit  int
}{
	{"anthropic/claude", 200000},
	{"openai/gpt-4", 128000},
	{"mistralai/", 32000},
}

// defaultContextLimit is used for models not in either table.
const defaultContextLimit = 128000

// ContextLimitFor returns the context window size, in tokens, for a model.
func ContextLimitFor(model string) int {
	if limit, ok := contextLimits[model]; ok {
		return limit
	}
	for _, entry := range contextLimitPrefixes {
		if strings.HasPrefix(model, entry.prefix) {
			return entry.limit
		}
	}
	return defaultContextLimit
}
