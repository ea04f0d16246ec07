// Package metrics provides the Prometheus collectors for the docqa service.
// All Collector methods are nil-receiver safe so metrics stay optional in
// tests and library use.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Question outcomes, one per answer slot.
const (
	OutcomeOK                = "ok"
	OutcomeTimeout           = "timeout"
	OutcomeGenerationFailure = "generation_failure"
	OutcomeIngestionFailure  = "ingestion_failure"
)

// Pipeline stages measured per question or per document.
const (
	StageSegment  = "segment"
	StageIndex    = "index_build"
	StageExpand   = "expand"
	StageRetrieve = "retrieve"
	StageRerank   = "rerank"
	StageGenerate = "generate"
)

// Collector holds the service's Prometheus metrics.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	questionsTotal *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	indexBuilds *prometheus.CounterVec
}

// NewCollector registers the docqa metrics with reg. A nil reg uses the
// default registerer.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		questionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "questions_total",
				Help:      "Answered questions by outcome; timeouts and generation failures are distinct",
			},
			[]string{"outcome"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_stage_duration_seconds",
				Help:      "Pipeline stage duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 20, 35},
			},
			[]string{"stage"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Cache hits by cache kind",
			},
			[]string{"kind"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Cache misses by cache kind",
			},
			[]string{"kind"},
		),
		indexBuilds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_builds_total",
				Help:      "Vector index acquisitions by source",
			},
			[]string{"source"},
		),
	}
}

// ObserveHTTPRequest records one completed HTTP request.
func (c *Collector) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncQuestion counts one answered question slot by outcome.
func (c *Collector) IncQuestion(outcome string) {
	if c == nil {
		return
	}
	c.questionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records the duration of one pipeline stage.
func (c *Collector) ObserveStage(stage string, duration time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// IncCacheHit counts a hit on the given cache kind.
func (c *Collector) IncCacheHit(kind string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(kind).Inc()
}

// IncCacheMiss counts a miss on the given cache kind.
func (c *Collector) IncCacheMiss(kind string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(kind).Inc()
}

// IncIndexBuild counts an index acquisition: "built", "memory_cache",
// or "blob_cache".
func (c *Collector) IncIndexBuild(source string) {
	if c == nil {
		return
	}
	c.indexBuilds.WithLabelValues(source).Inc()
}
