package config

import "time"

// DefaultConfig returns the default docqa configuration.
// Budgets mirror the production service: 17s to build an index, 35s total.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			BearerToken: "",
		},
		Pipeline: PipelineConfig{
			VectorizeTimeout:   17 * time.Second,
			TotalBudget:        35 * time.Second,
			RetrievalTopK:      7,
			CandidateCap:       10,
			RerankTopK:         7,
			MaxExpansions:      3,
			MaxConcurrent:      8,
			ContextTokenBudget: 3000,
		},
		Chunking: ChunkingConfig{
			Strategy:             "fixed",
			ChunkSize:            2000,
			Overlap:              200,
			BreakpointPercentile: 25,
		},
		Embedding: EmbeddingConfig{
			BaseURL:    "https://api.openai.com",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			BatchSize:  100,
			Timeout:    30 * time.Second,
		},
		Rerank: RerankConfig{
			BaseURL: "https://api.voyageai.com",
			Model:   "rerank-2",
			Timeout: 15 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL:           "https://api.openai.com",
			Model:             "gpt-4.1",
			Temperature:       0.0,
			MaxTokens:         150,
			Timeout:           30 * time.Second,
			MaxRetries:        5,
			RequestsPerSecond: 10,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
		},
		Cache: CacheConfig{
			AnswerTTL:       24 * time.Hour,
			ExpansionTTL:    24 * time.Hour,
			IndexDir:        "index_cache",
			MaxIndexEntries: 256,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stdout"},
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "docqa",
			SampleRate:   0.1,
		},
	}
}
