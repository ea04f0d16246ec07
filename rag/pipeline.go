package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/docqa/internal/cache"
	"github.com/BaSui01/docqa/internal/metrics"
	"github.com/BaSui01/docqa/types"
)

// Sentinel answers. Per-question failures surface as these strings in the
// answer slot; the pipeline never propagates an error past the per-question
// boundary.
const (
	TimeoutSentinel          = "Processing timed out for this question."
	GenerationFailedSentinel = "Answer generation failed for this question."
	IngestionFailedSentinel  = "The document could not be read, so this question cannot be answered."
)

// Answer-cache path discriminators.
const (
	pathRAG      = "rag"
	pathGK       = "gk"
	pathFallback = "fallback"
)

const contextSeparator = "\n\n---\n\n"

const ragPromptTemplate = `Answer the question using only the context below. If the context does not contain the answer, say so. Answer in one or two sentences.

Context:
%s

Question: %s`

const generalPromptTemplate = `Answer the question concisely in one or two sentences.

Question: %s`

// PipelineOptions holds the operational budgets and fan-out bounds.
type PipelineOptions struct {
	VectorizeTimeout   time.Duration // budget for segment + embed + index build
	TotalBudget        time.Duration // budget for the whole request
	RetrievalTopK      int           // hits per expansion query
	CandidateCap       int           // union cap before reranking
	RerankTopK         int           // final context size in units
	MaxExpansions      int           // expansion queries used for retrieval
	MaxConcurrent      int           // question fan-out bound
	ContextTokenBudget int           // assembled context cap, 0 disables
	AnswerTTL          time.Duration // answer cache expiry
}

// DefaultPipelineOptions returns the production budgets.
func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		VectorizeTimeout:   17 * time.Second,
		TotalBudget:        35 * time.Second,
		RetrievalTopK:      7,
		CandidateCap:       10,
		RerankTopK:         7,
		MaxExpansions:      3,
		MaxConcurrent:      8,
		ContextTokenBudget: 3000,
		AnswerTTL:          24 * time.Hour,
	}
}

// PipelineDeps are the pipeline's collaborators.
type PipelineDeps struct {
	Segmenter *Segmenter
	Embedder  *BatchEmbedder
	Expander  *Expander
	Reranker  *Reranker
	Router    *Router
	Generator Completer
	Answers   cache.Store     // answer cache; defaults to in-memory
	Blobs     cache.BlobStore // optional index persistence
	Tokens    TokenCounter    // optional context token bound
	Metrics   *metrics.Collector
	Logger    *zap.Logger
}

// Pipeline orchestrates answering a batch of questions against one
// document: index acquisition under the vectorization budget, then bounded
// concurrent per-question answering under the total budget.
type Pipeline struct {
	opts      PipelineOptions
	segmenter *Segmenter
	embedder  *BatchEmbedder
	expander  *Expander
	reranker  *Reranker
	router    *Router
	generator Completer
	answers   cache.Store
	blobs     cache.BlobStore
	tokens    TokenCounter
	metrics   *metrics.Collector
	logger    *zap.Logger

	mu      sync.RWMutex
	indices map[string]*VectorIndex
}

// NewPipeline creates the answering pipeline.
func NewPipeline(opts PipelineOptions, deps PipelineDeps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Answers == nil {
		deps.Answers = cache.NewMemoryStore()
	}
	if deps.Router == nil {
		deps.Router = NewRouter(DefaultRules())
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 8
	}
	return &Pipeline{
		opts:      opts,
		segmenter: deps.Segmenter,
		embedder:  deps.Embedder,
		expander:  deps.Expander,
		reranker:  deps.Reranker,
		router:    deps.Router,
		generator: deps.Generator,
		answers:   deps.Answers,
		blobs:     deps.Blobs,
		tokens:    deps.Tokens,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With(zap.String("component", "pipeline")),
	}
}

// Run answers every question against the extracted document blocks. The
// result is always positionally aligned with questions: exactly one answer
// per question, written by original index, for every combination of
// success, failure, and timeout.
func (p *Pipeline) Run(ctx context.Context, blocks []types.RawBlock, questions []string) []string {
	answers := make([]string, len(questions))
	if len(questions) == 0 {
		return answers
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.opts.TotalBudget)
	defer cancel()

	docFP := fingerprintBlocks(blocks)
	idx := p.acquireIndex(ctx, blocks)
	if idx == nil {
		p.logger.Warn("answering without an index",
			zap.String("document", docFP[:12]),
			zap.Duration("elapsed", time.Since(start)),
		)
	}

	g := new(errgroup.Group)
	g.SetLimit(p.opts.MaxConcurrent)
	for i := range questions {
		i := i
		g.Go(func() error {
			answers[i] = p.answerOne(ctx, idx, docFP, questions[i])
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("request answered",
		zap.String("document", docFP[:12]),
		zap.Int("questions", len(questions)),
		zap.Bool("indexed", idx != nil),
		zap.Duration("duration", time.Since(start)),
	)
	return answers
}

// acquireIndex returns the vector index for the document, from the
// in-memory cache, the blob store, or a fresh build — all under the
// vectorization budget. A nil return means degraded no-retrieval answering.
func (p *Pipeline) acquireIndex(ctx context.Context, blocks []types.RawBlock) *VectorIndex {
	buildCtx, cancel := context.WithTimeout(ctx, p.opts.VectorizeTimeout)
	defer cancel()

	start := time.Now()
	chunks := p.segmenter.Segment(buildCtx, blocks)
	if len(chunks) == 0 {
		return nil
	}
	fp := Fingerprint(chunks)

	p.mu.RLock()
	idx, ok := p.indices[fp]
	p.mu.RUnlock()
	if ok {
		p.metrics.IncIndexBuild("memory_cache")
		return idx
	}

	if p.blobs != nil {
		if data, err := p.blobs.GetBlob(buildCtx, fp); err == nil {
			if idx, err := DecodeIndex(data, p.embedder, p.logger); err == nil {
				p.storeIndex(fp, idx)
				p.metrics.IncIndexBuild("blob_cache")
				return idx
			}
			p.logger.Warn("discarding corrupt index blob", zap.String("fingerprint", fp[:12]))
		}
	}

	idx = NewVectorIndex(p.embedder, p.logger)
	idx.Build(buildCtx, chunks)
	if buildCtx.Err() != nil {
		// Budget exhausted mid-build; the index is zero-filled and useless.
		return nil
	}
	p.metrics.ObserveStage(metrics.StageIndex, time.Since(start))
	p.metrics.IncIndexBuild("built")
	p.storeIndex(fp, idx)

	if p.blobs != nil {
		if blob, err := idx.Encode(); err == nil {
			if err := p.blobs.PutBlob(context.WithoutCancel(ctx), fp, blob); err != nil {
				p.logger.Warn("failed to persist index", zap.Error(err))
			}
		}
	}
	return idx
}

// storeIndex inserts into the in-memory document cache. Duplicate builds
// from racing requests are equivalent, so last write wins.
func (p *Pipeline) storeIndex(fp string, idx *VectorIndex) {
	p.mu.Lock()
	if p.indices == nil {
		p.indices = make(map[string]*VectorIndex)
	}
	p.indices[fp] = idx
	p.mu.Unlock()
}

// answerOne runs the per-question state machine: route, cache check,
// retrieve, generate. Every failure maps to a sentinel string.
func (p *Pipeline) answerOne(ctx context.Context, idx *VectorIndex, docFP, question string) string {
	if ctx.Err() != nil {
		p.metrics.IncQuestion(metrics.OutcomeTimeout)
		return TimeoutSentinel
	}

	rule, routed := p.router.Route(question)
	if routed && rule.FixedAnswer != "" {
		p.metrics.IncQuestion(metrics.OutcomeOK)
		return rule.FixedAnswer
	}

	path := pathRAG
	fp := docFP
	switch {
	case idx == nil:
		path = pathFallback
	case routed:
		path = pathGK
	default:
		fp = idx.Fingerprint()
	}

	key := cache.Key(question, fp, path)
	if cached, err := p.answers.Get(ctx, key); err == nil {
		p.metrics.IncCacheHit("answer")
		p.metrics.IncQuestion(metrics.OutcomeOK)
		return cached
	}
	p.metrics.IncCacheMiss("answer")

	var contextText string
	if path == pathRAG {
		contextText = p.retrieveContext(ctx, idx, question)
	}

	answer, err := p.generate(ctx, contextText, question)
	if err != nil {
		if ctx.Err() != nil {
			p.metrics.IncQuestion(metrics.OutcomeTimeout)
			return TimeoutSentinel
		}
		p.logger.Warn("generation failed",
			zap.String("path", path),
			zap.Error(err),
		)
		p.metrics.IncQuestion(metrics.OutcomeGenerationFailure)
		return GenerationFailedSentinel
	}

	// Completed work stays cached even if the surrounding request is
	// cancelled moments later.
	if err := p.answers.Put(context.WithoutCancel(ctx), key, answer, p.opts.AnswerTTL); err != nil {
		p.logger.Warn("failed to cache answer", zap.Error(err))
	}
	p.metrics.IncQuestion(metrics.OutcomeOK)
	return answer
}

// retrieveContext runs expand → multi-query retrieve → dedup → rerank →
// assemble for one question.
func (p *Pipeline) retrieveContext(ctx context.Context, idx *VectorIndex, question string) string {
	expandStart := time.Now()
	expansions := p.expander.Expand(ctx, question)
	p.metrics.ObserveStage(metrics.StageExpand, time.Since(expandStart))
	if len(expansions) > p.opts.MaxExpansions {
		expansions = expansions[:p.opts.MaxExpansions]
	}

	retrieveStart := time.Now()
	seen := make(map[string]bool)
	var candidates []string
	for _, q := range expansions {
		hits, err := idx.Search(ctx, q, p.opts.RetrievalTopK)
		if err != nil {
			p.logger.Debug("retrieval query failed", zap.Error(err))
			continue
		}
		for _, h := range hits {
			if !seen[h] {
				seen[h] = true
				candidates = append(candidates, h)
			}
		}
	}
	if len(candidates) > p.opts.CandidateCap {
		candidates = candidates[:p.opts.CandidateCap]
	}
	p.metrics.ObserveStage(metrics.StageRetrieve, time.Since(retrieveStart))

	rerankStart := time.Now()
	top := p.reranker.Rerank(ctx, question, candidates, p.opts.RerankTopK)
	p.metrics.ObserveStage(metrics.StageRerank, time.Since(rerankStart))

	return p.assembleContext(top)
}

// assembleContext joins units in rerank order, stopping before the token
// budget is exceeded. The first unit is always included.
func (p *Pipeline) assembleContext(units []string) string {
	if len(units) == 0 {
		return ""
	}
	if p.tokens == nil || p.opts.ContextTokenBudget <= 0 {
		return strings.Join(units, contextSeparator)
	}

	var sb strings.Builder
	used := 0
	for i, unit := range units {
		cost := p.tokens.CountTokens(unit)
		if i > 0 && used+cost > p.opts.ContextTokenBudget {
			break
		}
		if i > 0 {
			sb.WriteString(contextSeparator)
		}
		sb.WriteString(unit)
		used += cost
	}
	return sb.String()
}

func (p *Pipeline) generate(ctx context.Context, contextText, question string) (string, error) {
	var prompt string
	if contextText == "" {
		prompt = fmt.Sprintf(generalPromptTemplate, question)
	} else {
		prompt = fmt.Sprintf(ragPromptTemplate, contextText, question)
	}

	start := time.Now()
	answer, err := p.generator.Complete(ctx, prompt)
	p.metrics.ObserveStage(metrics.StageGenerate, time.Since(start))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// fingerprintBlocks derives the document fingerprint used for cache keys on
// the no-index paths, where segmented chunks are unavailable.
func fingerprintBlocks(blocks []types.RawBlock) string {
	texts := make([]string, len(blocks))
	for i, b := range blocks {
		texts[i] = b.Text
	}
	return cache.Key(texts...)
}
