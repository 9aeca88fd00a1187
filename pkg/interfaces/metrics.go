// Package interfaces declares the observability hooks the analyses report
// through. Implementations live in pkg/defaults and pkg/telemetry.
package interfaces

import "time"

// MetricsExporter exports metrics to a monitoring backend.
type MetricsExporter interface {
	// Counter increments a counter metric.
	Counter(name string, value int64, tags map[string]string)

	// Gauge sets a gauge metric to the specified value.
	Gauge(name string, value float64, tags map[string]string)

	// Histogram records a value in a histogram.
	Histogram(name string, value float64, tags map[string]string)

	// Timer records a duration.
	Timer(name string, duration time.Duration, tags map[string]string)

	// Flush sends any buffered metrics to the backend.
	Flush() error

	// Close releases resources.
	Close() error
}

// Metric names.
const (
	// Ingestion
	MetricParseTraces   = "pmcore.parse.traces"
	MetricParseEvents   = "pmcore.parse.events"
	MetricParseDuration = "pmcore.parse.duration"

	// Discovery
	MetricDiscoveryDuration = "pmcore.discovery.duration"
	MetricModelTransitions  = "pmcore.model.transitions"
	MetricModelPlaces       = "pmcore.model.places"

	// Token replay
	MetricReplayTraces   = "pmcore.replay.traces"
	MetricReplayFitness  = "pmcore.replay.fitness"
	MetricReplayDuration = "pmcore.replay.duration"

	// Alignments
	MetricAlignTraces   = "pmcore.align.traces"
	MetricAlignFailed   = "pmcore.align.failed"
	MetricAlignVisited  = "pmcore.align.visited_states"
	MetricAlignLPSolves = "pmcore.align.lp_solves"
	MetricAlignCost     = "pmcore.align.cost"
	MetricAlignDuration = "pmcore.align.duration"

	// Evaluation
	MetricEvalFitness        = "pmcore.eval.fitness"
	MetricEvalPrecision      = "pmcore.eval.precision"
	MetricEvalGeneralization = "pmcore.eval.generalization"
	MetricEvalDuration       = "pmcore.eval.duration"

	// Caches
	MetricCacheHits   = "pmcore.cache.hits"
	MetricCacheMisses = "pmcore.cache.misses"
)

// Tag names.
const (
	TagFormat    = "format"
	TagOperation = "operation"
	TagAlgorithm = "algorithm"
	TagVariant   = "variant"
	TagStatus    = "status"
	TagRunID     = "run_id"
)
