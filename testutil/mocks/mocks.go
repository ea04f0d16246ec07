// Package mocks provides in-memory collaborators for pipeline tests: a
// deterministic embedder, a scripted completion model, and a relevance
// scorer. All mocks honor context cancellation and count their calls.
package mocks

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"
)

// MockEmbedder produces deterministic pseudo-embeddings derived from the
// text content, so similar tests get repeatable similarity orderings.
type MockEmbedder struct {
	Dims   int
	FailOn func(texts []string) bool // batch-level error injection

	mu      sync.Mutex
	batches [][]string
}

// NewMockEmbedder creates an embedder emitting vectors of dims dimensions.
func NewMockEmbedder(dims int) *MockEmbedder {
	return &MockEmbedder{Dims: dims}
}

func (m *MockEmbedder) Dimensions() int { return m.Dims }

// EmbedBatch returns one deterministic vector per text.
func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	batch := make([]string, len(texts))
	copy(batch, texts)
	m.batches = append(m.batches, batch)
	m.mu.Unlock()

	if m.FailOn != nil && m.FailOn(texts) {
		return nil, context.DeadlineExceeded
	}

	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		vectors[i] = DeterministicVector(text, m.Dims)
	}
	return vectors, nil
}

// Batches returns every batch the embedder has seen.
func (m *MockEmbedder) Batches() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.batches))
	copy(out, m.batches)
	return out
}

// Calls returns the number of batch calls made.
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

// DeterministicVector maps text to a unit-norm vector. Identical texts map
// to identical vectors; different texts are very unlikely to collide.
func DeterministicVector(text string, dims int) []float64 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float64, dims)
	var norm float64
	state := seed
	for i := range vec {
		// xorshift64
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		vec[i] = float64(int64(state%2000)-1000) / 1000
		norm += vec[i] * vec[i]
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// MockCompleter is a scripted generation model.
type MockCompleter struct {
	Response string                               // fixed response when Respond is nil
	Err      error                                // returned on every call when set
	Respond  func(prompt string) (string, error)  // per-prompt scripting
	Delay    time.Duration                        // simulated latency, context-aware

	mu      sync.Mutex
	prompts []string
}

// Complete records the prompt and returns the scripted response.
func (m *MockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.Err != nil {
		return "", m.Err
	}
	if m.Respond != nil {
		return m.Respond(prompt)
	}
	return m.Response, nil
}

// Calls returns the number of completed calls.
func (m *MockCompleter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns every prompt received, in call order.
func (m *MockCompleter) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// MockScorer scores candidates with a caller-provided function.
type MockScorer struct {
	Score func(question, candidate string) float64
	Err   error

	mu    sync.Mutex
	calls int
}

// ScoreAll scores every candidate against the question.
func (m *MockScorer) ScoreAll(ctx context.Context, question string, candidates []string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}

	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		if m.Score != nil {
			scores[i] = m.Score(question, c)
		}
	}
	return scores, nil
}

// Calls returns the number of scoring calls.
func (m *MockScorer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
