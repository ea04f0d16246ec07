package rag

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/docqa/types"
)

// SplitStrategy splits one oversized text block into retrievable units.
type SplitStrategy interface {
	Name() string
	Split(ctx context.Context, text string) ([]string, error)
}

// SegmenterConfig configures the chunk segmenter.
type SegmenterConfig struct {
	ChunkSize            int     // max unit size in runes
	Overlap              int     // fixed-window overlap in runes
	BreakpointPercentile float64 // semantic strategy: cut below this percentile
}

// Segmenter turns extracted raw blocks into a flat ordered list of text
// units. Tables pass through atomically; oversized text blocks are split by
// the configured strategy, falling back to fixed-window on strategy failure.
type Segmenter struct {
	cfg      SegmenterConfig
	strategy SplitStrategy
	fallback *FixedWindowSplitter
	logger   *zap.Logger
}

// NewSegmenter creates a segmenter with the given split strategy.
func NewSegmenter(cfg SegmenterConfig, strategy SplitStrategy, logger *zap.Logger) *Segmenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	fallback := NewFixedWindowSplitter(cfg.ChunkSize, cfg.Overlap)
	if strategy == nil {
		strategy = fallback
	}
	return &Segmenter{
		cfg:      cfg,
		strategy: strategy,
		fallback: fallback,
		logger:   logger.With(zap.String("component", "segmenter")),
	}
}

// Segment produces the ordered list of text units for one document.
func (s *Segmenter) Segment(ctx context.Context, blocks []types.RawBlock) []string {
	var units []string
	for _, block := range blocks {
		text := strings.TrimSpace(block.Text)
		if text == "" {
			continue
		}

		if block.Kind == types.BlockTable {
			units = append(units, text)
			continue
		}

		if len([]rune(text)) <= s.cfg.ChunkSize {
			units = append(units, text)
			continue
		}

		parts, err := s.strategy.Split(ctx, text)
		if err != nil {
			s.logger.Warn("split strategy failed, falling back to fixed-window",
				zap.String("strategy", s.strategy.Name()),
				zap.Error(err),
			)
			parts, _ = s.fallback.Split(ctx, text)
		}
		units = append(units, parts...)
	}

	s.logger.Debug("document segmented",
		zap.Int("blocks", len(blocks)),
		zap.Int("units", len(units)),
	)
	return units
}

// FixedWindowSplitter slides a window of chunkSize runes with overlap runes
// repeated between consecutive windows.
type FixedWindowSplitter struct {
	chunkSize int
	overlap   int
}

// NewFixedWindowSplitter creates the low-latency default splitter.
// Overlap is clamped below chunkSize so the window always advances.
func NewFixedWindowSplitter(chunkSize, overlap int) *FixedWindowSplitter {
	if chunkSize <= 0 {
		chunkSize = 2000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 10
	}
	return &FixedWindowSplitter{chunkSize: chunkSize, overlap: overlap}
}

func (s *FixedWindowSplitter) Name() string { return "fixed" }

// Split never fails; the error return satisfies SplitStrategy.
func (s *FixedWindowSplitter) Split(ctx context.Context, text string) ([]string, error) {
	runes := []rune(text)
	step := s.chunkSize - s.overlap

	var units []string
	for start := 0; start < len(runes); start += step {
		end := start + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		units = append(units, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return units, nil
}

// SemanticSplitter groups sentences into topically coherent units: each
// sentence is embedded, adjacent-sentence cosine similarities are computed,
// and a unit boundary is cut wherever similarity falls below a percentile
// threshold of the distribution observed for this block.
type SemanticSplitter struct {
	embedder   Embedder
	percentile float64
	logger     *zap.Logger
}

// NewSemanticSplitter creates the quality-over-latency splitter.
func NewSemanticSplitter(embedder Embedder, percentile float64, logger *zap.Logger) *SemanticSplitter {
	if percentile <= 0 || percentile >= 100 {
		percentile = 25
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SemanticSplitter{
		embedder:   embedder,
		percentile: percentile,
		logger:     logger.With(zap.String("component", "semantic_splitter")),
	}
}

func (s *SemanticSplitter) Name() string { return "semantic" }

// Split cuts the block at low-similarity sentence boundaries.
func (s *SemanticSplitter) Split(ctx context.Context, text string) ([]string, error) {
	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return []string{strings.TrimSpace(text)}, nil
	}

	vectors, err := s.embedder.EmbedBatch(ctx, sentences)
	if err != nil {
		return nil, err
	}

	similarities := make([]float64, len(sentences)-1)
	for i := 0; i < len(sentences)-1; i++ {
		similarities[i] = cosineSimilarity(vectors[i], vectors[i+1])
	}

	threshold := percentileOf(similarities, s.percentile)

	var units []string
	current := []string{sentences[0]}
	for i := 1; i < len(sentences); i++ {
		if similarities[i-1] < threshold {
			units = append(units, strings.Join(current, " "))
			current = current[:0]
		}
		current = append(current, sentences[i])
	}
	units = append(units, strings.Join(current, " "))

	return units, nil
}

var sentenceEnders = map[rune]bool{'.': true, '!': true, '?': true, '\n': true}

// splitSentences breaks text on terminal punctuation and newlines,
// dropping whitespace-only fragments.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if sentenceEnders[r] {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// percentileOf returns the p-th percentile of values (nearest-rank).
func percentileOf(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)) * p / 100)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
