package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/docqa/internal/cache"
)

// VectorIndex holds one document snapshot as parallel chunk/embedding
// arrays and answers top-k cosine similarity queries by brute force.
// Build replaces the index wholesale; a built index is never mutated and
// is safe for concurrent Search calls.
type VectorIndex struct {
	chunks      []string
	embeddings  [][]float64
	fingerprint string
	embedder    *BatchEmbedder
	logger      *zap.Logger
}

// NewVectorIndex creates an empty index backed by the given embedder.
func NewVectorIndex(embedder *BatchEmbedder, logger *zap.Logger) *VectorIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorIndex{
		embedder: embedder,
		logger:   logger.With(zap.String("component", "vector_index")),
	}
}

// Build embeds the chunks and replaces the index contents. Embedding
// failures degrade to zero vectors per batch, so after Build the
// chunk/embedding arrays are always the same length.
func (idx *VectorIndex) Build(ctx context.Context, chunks []string) {
	idx.chunks = chunks
	idx.embeddings = idx.embedder.EmbedAll(ctx, chunks)
	idx.fingerprint = Fingerprint(chunks)

	idx.logger.Debug("index built",
		zap.Int("chunks", len(chunks)),
		zap.String("fingerprint", idx.fingerprint[:12]),
	)
}

// Size returns the number of indexed chunks.
func (idx *VectorIndex) Size() int { return len(idx.chunks) }

// Chunks returns the indexed text units in document order.
func (idx *VectorIndex) Chunks() []string { return idx.chunks }

// Embeddings returns the stored vectors, parallel to Chunks.
func (idx *VectorIndex) Embeddings() [][]float64 { return idx.embeddings }

// Fingerprint returns the content-derived identifier of the indexed
// document, stable across processes and restarts.
func (idx *VectorIndex) Fingerprint() string { return idx.fingerprint }

// Search embeds the query and returns the topK most similar chunks,
// descending by cosine similarity, ties broken by document order.
func (idx *VectorIndex) Search(ctx context.Context, query string, topK int) ([]string, error) {
	if topK <= 0 || len(idx.chunks) == 0 {
		return nil, nil
	}

	queryVec, err := idx.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	order := make([]int, len(idx.chunks))
	scores := make([]float64, len(idx.chunks))
	for i := range idx.chunks {
		order[i] = i
		scores[i] = cosineSimilarity(queryVec, idx.embeddings[i])
	}

	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if topK > len(order) {
		topK = len(order)
	}
	results := make([]string, topK)
	for i := 0; i < topK; i++ {
		results[i] = idx.chunks[order[i]]
	}
	return results, nil
}

// indexBlob is the opaque persistence format for a built index.
type indexBlob struct {
	Chunks     []string    `json:"chunks"`
	Embeddings [][]float64 `json:"embeddings"`
}

// Encode serializes the built index for the blob store.
func (idx *VectorIndex) Encode() ([]byte, error) {
	return json.Marshal(indexBlob{
		Chunks:     idx.chunks,
		Embeddings: idx.embeddings,
	})
}

// DecodeIndex restores a persisted index. The fingerprint is recomputed
// from content, so a decoded index is interchangeable with a rebuilt one.
func DecodeIndex(data []byte, embedder *BatchEmbedder, logger *zap.Logger) (*VectorIndex, error) {
	var blob indexBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("decode index blob: %w", err)
	}
	if len(blob.Chunks) != len(blob.Embeddings) {
		return nil, fmt.Errorf("corrupt index blob: %d chunks, %d embeddings",
			len(blob.Chunks), len(blob.Embeddings))
	}

	idx := NewVectorIndex(embedder, logger)
	idx.chunks = blob.Chunks
	idx.embeddings = blob.Embeddings
	idx.fingerprint = Fingerprint(blob.Chunks)
	return idx, nil
}

// Fingerprint derives the content-addressed identifier for a chunk list.
func Fingerprint(chunks []string) string {
	return cache.Key(chunks...)
}

// cosineSimilarity returns the cosine of the angle between a and b.
// Mismatched or zero-norm vectors score 0 and therefore rank last.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
