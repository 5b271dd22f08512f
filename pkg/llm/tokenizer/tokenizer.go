// Package tokenizer counts tokens for budget decisions.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/entrhq/pilot/pkg/logging"
)

// DefaultEncoding is used for every model; budgets are approximate anyway.
const DefaultEncoding = "cl100k_base"

var debugLog *logging.Logger

func init() {
	debugLog, _ = logging.NewLogger("tokenizer")
}

// Counter counts tokens in text.
type Counter interface {
	Count(text string) int
}

// Tokenizer counts tokens with tiktoken and falls back to a characters/4
// estimate when the encoding cannot be loaded (for example offline).
type Tokenizer struct {
	enc  *tiktoken.Tiktoken
	mu   sync.Mutex
	once sync.Once
	name string
}

// New returns a tokenizer for the default encoding. The encoding is loaded lazily.
func New() *Tokenizer {
	return &Tokenizer{name: DefaultEncoding}
}

func (t *Tokenizer) load() {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.name)
		if err != nil {
			debugLog.Warnf("falling back to estimated token counts: %v", err)
			return
		}
		t.enc = enc
	})
}

// Count returns the number of tokens in text.
func (t *Tokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	t.load()
	if t.enc == nil {
		return Estimate(text)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.enc.Encode(text, nil, nil))
}

// Estimate approximates tokens as one per four characters, minimum one.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		return 1
	}
	return n
}

// EstimateCounter is a Counter that never loads an encoding.
type EstimateCounter struct{}

// Count implements Counter.
func (EstimateCounter) Count(text string) int {
	return Estimate(text)
}
