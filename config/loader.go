// =============================================================================
// docqa configuration loader
// =============================================================================
// Unified configuration loading: YAML file + environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("DOCQA").
//	    Load()
//
// Precedence: defaults → YAML file → environment variables
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete docqa configuration.
type Config struct {
	// Server holds HTTP server settings.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Auth holds the inbound authentication settings.
	Auth AuthConfig `yaml:"auth" env:"AUTH"`

	// Pipeline holds the retrieval pipeline settings.
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`

	// Chunking holds the document segmentation settings.
	Chunking ChunkingConfig `yaml:"chunking" env:"CHUNKING"`

	// Embedding holds the embedding provider settings.
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`

	// Rerank holds the reranking provider settings.
	Rerank RerankConfig `yaml:"rerank" env:"RERANK"`

	// LLM holds the answer generation settings.
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Redis holds the cache backend settings.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Cache holds cache lifecycle settings.
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Log holds logging settings.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry holds OpenTelemetry settings.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// HTTP listen port
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Prometheus metrics port
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// Read timeout
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// Write timeout
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// AuthConfig holds inbound authentication settings.
type AuthConfig struct {
	// Static bearer token expected on /v1/run. Empty disables auth.
	BearerToken string `yaml:"bearer_token" env:"BEARER_TOKEN"`
}

// PipelineConfig holds the retrieval pipeline budgets and fan-out limits.
type PipelineConfig struct {
	// Wall-clock budget for download + segment + embed + index build
	VectorizeTimeout time.Duration `yaml:"vectorize_timeout" env:"VECTORIZE_TIMEOUT"`
	// Total budget for one /v1/run request
	TotalBudget time.Duration `yaml:"total_budget" env:"TOTAL_BUDGET"`
	// Top-k per expanded-query search
	RetrievalTopK int `yaml:"retrieval_top_k" env:"RETRIEVAL_TOP_K"`
	// Union cap before reranking
	CandidateCap int `yaml:"candidate_cap" env:"CANDIDATE_CAP"`
	// Final top-k after reranking
	RerankTopK int `yaml:"rerank_top_k" env:"RERANK_TOP_K"`
	// Expansions used for retrieval (beyond this, extras are ignored)
	MaxExpansions int `yaml:"max_expansions" env:"MAX_EXPANSIONS"`
	// Concurrent question tasks per request
	MaxConcurrent int `yaml:"max_concurrent" env:"MAX_CONCURRENT"`
	// Token budget for the assembled context window
	ContextTokenBudget int `yaml:"context_token_budget" env:"CONTEXT_TOKEN_BUDGET"`
}

// ChunkingConfig holds document segmentation settings.
type ChunkingConfig struct {
	// Strategy: fixed or semantic
	Strategy string `yaml:"strategy" env:"STRATEGY"`
	// Maximum chunk size in characters
	ChunkSize int `yaml:"chunk_size" env:"CHUNK_SIZE"`
	// Overlap between consecutive windows in characters
	Overlap int `yaml:"overlap" env:"OVERLAP"`
	// Percentile of the adjacent-sentence similarity distribution used as the
	// semantic breakpoint threshold (0-100)
	BreakpointPercentile float64 `yaml:"breakpoint_percentile" env:"BREAKPOINT_PERCENTILE"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	Model      string        `yaml:"model" env:"MODEL"`
	Dimensions int           `yaml:"dimensions" env:"DIMENSIONS"`
	BatchSize  int           `yaml:"batch_size" env:"BATCH_SIZE"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RerankConfig holds reranking provider settings.
type RerankConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	Model   string        `yaml:"model" env:"MODEL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LLMConfig holds answer generation settings.
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	Model       string        `yaml:"model" env:"MODEL"`
	Temperature float64       `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens   int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Max retry attempts for generation calls
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// Outbound requests per second (0 disables rate limiting)
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
}

// RedisConfig holds cache backend settings.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// CacheConfig holds cache lifecycle settings.
type CacheConfig struct {
	// TTL for cached answers
	AnswerTTL time.Duration `yaml:"answer_ttl" env:"ANSWER_TTL"`
	// TTL for cached query expansions
	ExpansionTTL time.Duration `yaml:"expansion_ttl" env:"EXPANSION_TTL"`
	// Directory for persisted vector index blobs ("" disables persistence)
	IndexDir string `yaml:"index_dir" env:"INDEX_DIR"`
	// Maximum persisted index blobs before the oldest are swept
	MaxIndexEntries int `yaml:"max_index_entries" env:"MAX_INDEX_ENTRIES"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// Output paths
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// Loader
// =============================================================================

// Loader loads configuration (builder pattern).
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "DOCQA",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the configuration file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends a configuration validator.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load loads the configuration.
// Precedence: defaults → YAML file → environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Missing file keeps the defaults.
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv overrides configuration from environment variables.
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv recursively sets struct fields from the environment.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue parses and assigns an environment value to a field.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration gets duration syntax ("17s", "500ms")
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// Comma-separated string slices
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads configuration and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Chunking.ChunkSize <= 0 {
		errs = append(errs, "chunk_size must be positive")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.ChunkSize {
		errs = append(errs, "overlap must be in [0, chunk_size)")
	}
	if c.Chunking.Strategy != "fixed" && c.Chunking.Strategy != "semantic" {
		errs = append(errs, "chunking strategy must be fixed or semantic")
	}
	if c.Chunking.BreakpointPercentile < 0 || c.Chunking.BreakpointPercentile > 100 {
		errs = append(errs, "breakpoint_percentile must be in [0, 100]")
	}
	if c.Pipeline.TotalBudget <= 0 {
		errs = append(errs, "total_budget must be positive")
	}
	if c.Pipeline.VectorizeTimeout <= 0 || c.Pipeline.VectorizeTimeout >= c.Pipeline.TotalBudget {
		errs = append(errs, "vectorize_timeout must be positive and below total_budget")
	}
	if c.Pipeline.RetrievalTopK <= 0 || c.Pipeline.RerankTopK <= 0 {
		errs = append(errs, "retrieval_top_k and rerank_top_k must be positive")
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, "embedding dimensions must be positive")
	}
	if c.Embedding.BatchSize <= 0 {
		errs = append(errs, "embedding batch_size must be positive")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "temperature must be between 0 and 2")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
