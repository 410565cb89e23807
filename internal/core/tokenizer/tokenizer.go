package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter measures and bounds text in model tokens.
type Counter interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// Estimator approximates four characters per token. It needs no vocabulary
// files, which makes it the default for tests and offline runs.
type Estimator struct{}

func (Estimator) Count(text string) int {
	n := len([]rune(text))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}

func (Estimator) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	r := []rune(text)
	if len(r) <= maxTokens*4 {
		return text
	}
	return string(r[:maxTokens*4])
}

// Tiktoken counts with the BPE vocabulary of an OpenAI model.
type Tiktoken struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the encoding of model, falling back to cl100k_base for
// models tiktoken does not know.
func NewTiktoken(model string) (*Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("load tiktoken encoding: %w", err)
		}
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Count(text string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.enc.Encode(text, nil, nil))
}

func (t *Tiktoken) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return t.enc.Decode(tokens[:maxTokens])
}
