package rag

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter reports how many model tokens a text costs; the pipeline
// uses it to keep the assembled context under the generation token budget.
type TokenCounter interface {
	CountTokens(text string) int
}

// TiktokenCounter counts tokens with the tiktoken encoding for a model.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter creates a counter for the given model's encoding.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("tiktoken encoding for %q: %w", model, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

// CountTokens returns the token count for text.
func (c *TiktokenCounter) CountTokens(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// EstimateCounter approximates one token per four characters. Used when the
// tiktoken encoding data is unavailable (offline environments).
type EstimateCounter struct{}

// CountTokens estimates the token count for text.
func (EstimateCounter) CountTokens(text string) int {
	return len(text) / 4
}

// NewTokenCounter returns a tiktoken counter for model, falling back to the
// character estimate when the encoding cannot be loaded.
func NewTokenCounter(model string) TokenCounter {
	counter, err := NewTiktokenCounter(model)
	if err != nil {
		return EstimateCounter{}
	}
	return counter
}
