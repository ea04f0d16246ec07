package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/docqa/api/handlers"
	"github.com/BaSui01/docqa/config"
	"github.com/BaSui01/docqa/ingest"
	"github.com/BaSui01/docqa/internal/cache"
	"github.com/BaSui01/docqa/internal/metrics"
	"github.com/BaSui01/docqa/internal/server"
	"github.com/BaSui01/docqa/internal/telemetry"
	"github.com/BaSui01/docqa/llm"
	"github.com/BaSui01/docqa/llm/embedding"
	"github.com/BaSui01/docqa/llm/rerank"
	"github.com/BaSui01/docqa/rag"
)

// Server wires the answering pipeline behind the HTTP and metrics
// listeners.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler *handlers.HealthHandler
	runHandler    *handlers.RunHandler

	collector *metrics.Collector
	telemetry *telemetry.Providers
	redis     *redis.Client
}

// NewServer creates the server from configuration.
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		telemetry: otelProviders,
	}
}

// Start assembles the pipeline and starts the HTTP and metrics servers.
func (s *Server) Start() error {
	s.collector = metrics.NewCollector("docqa", nil)

	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

// initHandlers builds the answering pipeline and its HTTP handlers.
func (s *Server) initHandlers() error {
	s.healthHandler = handlers.NewHealthHandler(s.logger)

	answers, expansions := s.initCacheStores()

	var blobs cache.BlobStore
	if s.cfg.Cache.IndexDir != "" {
		store, err := cache.NewFSBlobStore(s.cfg.Cache.IndexDir, s.cfg.Cache.MaxIndexEntries, s.logger)
		if err != nil {
			s.logger.Warn("index persistence disabled", zap.Error(err))
		} else {
			blobs = store
		}
	}

	embedProvider := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		BaseURL:    s.cfg.Embedding.BaseURL,
		APIKey:     s.cfg.Embedding.APIKey,
		Model:      s.cfg.Embedding.Model,
		Dimensions: s.cfg.Embedding.Dimensions,
		Timeout:    s.cfg.Embedding.Timeout,
	})
	providerEmbedder := rag.NewProviderEmbedder(embedProvider)
	embedder := rag.NewBatchEmbedder(providerEmbedder, s.cfg.Embedding.BatchSize, s.logger)

	var strategy rag.SplitStrategy
	if s.cfg.Chunking.Strategy == "semantic" {
		strategy = rag.NewSemanticSplitter(providerEmbedder, s.cfg.Chunking.BreakpointPercentile, s.logger)
	}
	segmenter := rag.NewSegmenter(rag.SegmenterConfig{
		ChunkSize:            s.cfg.Chunking.ChunkSize,
		Overlap:              s.cfg.Chunking.Overlap,
		BreakpointPercentile: s.cfg.Chunking.BreakpointPercentile,
	}, strategy, s.logger)

	llmClient := llm.NewClient(llm.ClientConfig{
		BaseURL:           s.cfg.LLM.BaseURL,
		APIKey:            s.cfg.LLM.APIKey,
		Model:             s.cfg.LLM.Model,
		Temperature:       s.cfg.LLM.Temperature,
		MaxTokens:         s.cfg.LLM.MaxTokens,
		Timeout:           s.cfg.LLM.Timeout,
		MaxRetries:        s.cfg.LLM.MaxRetries,
		RequestsPerSecond: s.cfg.LLM.RequestsPerSecond,
	}, s.logger)

	expander := rag.NewExpander(llmClient, expansions, s.cfg.Pipeline.MaxExpansions,
		s.cfg.Cache.ExpansionTTL, s.logger)

	scorer := rag.NewProviderScorer(rerank.NewVoyageProvider(rerank.VoyageConfig{
		BaseURL: s.cfg.Rerank.BaseURL,
		APIKey:  s.cfg.Rerank.APIKey,
		Model:   s.cfg.Rerank.Model,
		Timeout: s.cfg.Rerank.Timeout,
	}))
	reranker := rag.NewReranker(scorer, s.logger)

	pipeline := rag.NewPipeline(rag.PipelineOptions{
		VectorizeTimeout:   s.cfg.Pipeline.VectorizeTimeout,
		TotalBudget:        s.cfg.Pipeline.TotalBudget,
		RetrievalTopK:      s.cfg.Pipeline.RetrievalTopK,
		CandidateCap:       s.cfg.Pipeline.CandidateCap,
		RerankTopK:         s.cfg.Pipeline.RerankTopK,
		MaxExpansions:      s.cfg.Pipeline.MaxExpansions,
		MaxConcurrent:      s.cfg.Pipeline.MaxConcurrent,
		ContextTokenBudget: s.cfg.Pipeline.ContextTokenBudget,
		AnswerTTL:          s.cfg.Cache.AnswerTTL,
	}, rag.PipelineDeps{
		Segmenter: segmenter,
		Embedder:  embedder,
		Expander:  expander,
		Reranker:  reranker,
		Generator: llmClient,
		Answers:   answers,
		Blobs:     blobs,
		Tokens:    rag.NewTokenCounter(s.cfg.LLM.Model),
		Metrics:   s.collector,
		Logger:    s.logger,
	})

	fetcher := ingest.NewFetcher(ingest.FetcherConfig{
		Timeout: s.cfg.Pipeline.VectorizeTimeout,
	}, s.logger)

	s.runHandler = handlers.NewRunHandler(fetcher, ingest.TextExtractor{}, pipeline, s.logger)

	s.logger.Info("handlers initialized")
	return nil
}

// initCacheStores returns the answer and expansion stores, redis-backed
// when available, in-memory otherwise.
func (s *Server) initCacheStores() (cache.Store, cache.Store) {
	if s.cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(cache.RedisOptions{
			Addr:         s.cfg.Redis.Addr,
			Password:     s.cfg.Redis.Password,
			DB:           s.cfg.Redis.DB,
			PoolSize:     s.cfg.Redis.PoolSize,
			MinIdleConns: s.cfg.Redis.MinIdleConns,
		}, s.logger)
		if err != nil {
			s.logger.Warn("redis unavailable, falling back to in-memory caches", zap.Error(err))
		} else {
			s.redis = client
			s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			}))
			return cache.NewRedisStore(client, "answers", s.logger),
				cache.NewRedisStore(client, "expansions", s.logger)
		}
	}
	return cache.NewMemoryStore(), cache.NewMemoryStore()
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))
	mux.HandleFunc("/v1/run", s.runHandler.HandleRun)

	skipAuthPaths := []string{"/health", "/ready", "/version"}
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		BearerAuth(s.cfg.Auth.BearerToken, skipAuthPaths, s.logger),
	)

	s.httpManager = server.NewManager(handler, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	return s.metricsManager.Start()
}

// WaitForShutdown blocks until a shutdown signal, then closes everything.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown closes the servers and external connections gracefully.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")
	ctx := context.Background()

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Warn("telemetry shutdown error", zap.Error(err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("redis close error", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown completed")
}
