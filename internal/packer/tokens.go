package packer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter converts text to a token count for budget accounting.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts with a real BPE encoding so budgets hold exactly
// for OpenAI-family models.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter creates a counter for the given encoding name,
// for example "cl100k_base" or "o200k_base".
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("packer: load encoding %q: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

// CounterForModel creates a counter matched to a model name, falling back
// to the ratio counter when the model is unknown to the tokenizer tables.
func CounterForModel(model string) TokenCounter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return RatioCounter{}
	}
	return &TiktokenCounter{enc: enc}
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// RatioCounter approximates tokens at 3.5 characters per token. Used only
// when no real tokenizer is configured.
type RatioCounter struct{}

func (RatioCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	n := int(float64(len(text)) / 3.5)
	if n < 1 {
		n = 1
	}
	return n
}
