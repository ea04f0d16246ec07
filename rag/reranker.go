package rag

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/docqa/llm/rerank"
)

// RelevanceScorer scores every (question, candidate) pair with a
// cross-attention relevance model. Only relative order matters; the score
// scale is model-specific. The result is parallel to candidates.
type RelevanceScorer interface {
	ScoreAll(ctx context.Context, question string, candidates []string) ([]float64, error)
}

// ProviderScorer adapts a reranking provider to the RelevanceScorer contract.
type ProviderScorer struct {
	provider rerank.Provider
}

// NewProviderScorer wraps a reranking provider.
func NewProviderScorer(provider rerank.Provider) *ProviderScorer {
	return &ProviderScorer{provider: provider}
}

// ScoreAll requests relevance scores for every candidate in one call.
func (s *ProviderScorer) ScoreAll(ctx context.Context, question string, candidates []string) ([]float64, error) {
	results, err := s.provider.RerankSimple(ctx, question, candidates, len(candidates))
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(candidates))
	seen := make([]bool, len(candidates))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(candidates) {
			return nil, fmt.Errorf("rerank result index %d out of range", r.Index)
		}
		scores[r.Index] = r.RelevanceScore
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			// Providers may truncate; unscored candidates rank last.
			scores[i] = 0
		}
	}
	return scores, nil
}

// Reranker is the second, more precise relevance filter: it re-scores the
// retrieval candidates against the original question and truncates to the
// final top-k the generation step will see.
type Reranker struct {
	scorer RelevanceScorer
	logger *zap.Logger
}

// NewReranker creates a reranker over the given scorer.
func NewReranker(scorer RelevanceScorer, logger *zap.Logger) *Reranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reranker{
		scorer: scorer,
		logger: logger.With(zap.String("component", "reranker")),
	}
}

// Rerank returns the top-k candidates by relevance to question, descending,
// ties retaining input order. Always len(result) == min(topK, len(candidates));
// empty input yields empty output. A scorer failure degrades to retrieval
// order truncation rather than failing the question.
func (r *Reranker) Rerank(ctx context.Context, question string, candidates []string, topK int) []string {
	if topK <= 0 || len(candidates) == 0 {
		return nil
	}
	if topK > len(candidates) {
		topK = len(candidates)
	}

	scores, err := r.scorer.ScoreAll(ctx, question, candidates)
	if err != nil || len(scores) != len(candidates) {
		r.logger.Warn("rerank scoring failed, keeping retrieval order", zap.Error(err))
		return candidates[:topK]
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	result := make([]string, topK)
	for i := 0; i < topK; i++ {
		result[i] = candidates[order[i]]
	}
	return result
}
