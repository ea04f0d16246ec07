package rag

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/docqa/llm/embedding"
)

var errNoEmbedding = errors.New("embedding provider returned no vectors")

// Embedder is the narrow embedding contract the core needs: one batch of
// texts in, one vector per text out, same length.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	Dimensions() int
}

// ProviderEmbedder adapts an embedding provider to the Embedder contract.
type ProviderEmbedder struct {
	provider embedding.Provider
}

// NewProviderEmbedder wraps an embedding provider.
func NewProviderEmbedder(provider embedding.Provider) *ProviderEmbedder {
	return &ProviderEmbedder{provider: provider}
}

func (e *ProviderEmbedder) Dimensions() int { return e.provider.Dimensions() }

// EmbedBatch embeds one batch of texts.
func (e *ProviderEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	return e.provider.EmbedDocuments(ctx, texts)
}

// BatchEmbedder wraps an Embedder with the index-build contract: inputs are
// embedded in fixed-size batches, a failed batch degrades to zero vectors
// instead of aborting, and the output is always index-aligned with the input.
type BatchEmbedder struct {
	inner     Embedder
	batchSize int
	logger    *zap.Logger
}

// NewBatchEmbedder creates a batching embedder.
func NewBatchEmbedder(inner Embedder, batchSize int, logger *zap.Logger) *BatchEmbedder {
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchEmbedder{
		inner:     inner,
		batchSize: batchSize,
		logger:    logger.With(zap.String("component", "batch_embedder")),
	}
}

func (e *BatchEmbedder) Dimensions() int { return e.inner.Dimensions() }

// EmbedAll embeds every text, length-preserving. Blank inputs and failed
// batches produce zero vectors of the correct dimensionality, so
// len(result) == len(texts) holds unconditionally.
func (e *BatchEmbedder) EmbedAll(ctx context.Context, texts []string) [][]float64 {
	dims := e.inner.Dimensions()
	result := make([][]float64, len(texts))
	for i := range result {
		result[i] = make([]float64, dims)
	}

	// Blank inputs keep their zero vector and are excluded from batching.
	var liveTexts []string
	var liveIdx []int
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		liveTexts = append(liveTexts, t)
		liveIdx = append(liveIdx, i)
	}

	for start := 0; start < len(liveTexts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(liveTexts) {
			end = len(liveTexts)
		}

		vectors, err := e.inner.EmbedBatch(ctx, liveTexts[start:end])
		if err != nil || len(vectors) != end-start {
			e.logger.Warn("embedding batch failed, substituting zero vectors",
				zap.Int("batch_start", start),
				zap.Int("batch_size", end-start),
				zap.Error(err),
			)
			continue
		}

		for j, vec := range vectors {
			if len(vec) == dims {
				result[liveIdx[start+j]] = vec
			}
		}
	}

	return result
}

// EmbedQuery embeds a single query string.
func (e *BatchEmbedder) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	vectors, err := e.inner.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errNoEmbedding
	}
	return vectors[0], nil
}
