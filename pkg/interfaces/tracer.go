package interfaces

import (
	"context"
	"time"
)

// Tracer starts spans around analysis stages.
type Tracer interface {
	// StartSpan creates a new span with the given name. The span must be
	// ended by calling Span.End().
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span)

	// Close flushes pending spans and releases resources.
	Close() error
}

// Span represents a unit of work in a trace.
type Span interface {
	// End completes the span and records its duration.
	End()

	SetStatus(code SpanStatus, message string)
	SetAttribute(key string, value interface{})
	SetAttributes(attrs map[string]interface{})
	AddEvent(name string, attrs map[string]interface{})
	RecordError(err error)

	// SpanContext returns the span identifiers.
	SpanContext() SpanContext
}

// SpanContext contains the identifiers for a span.
type SpanContext struct {
	TraceID string
	SpanID  string
}

// IsValid reports whether both identifiers are set.
func (sc SpanContext) IsValid() bool {
	return sc.TraceID != "" && sc.SpanID != ""
}

// SpanStatus represents the status of a span.
type SpanStatus int

const (
	SpanStatusUnset SpanStatus = iota
	SpanStatusOK
	SpanStatusError
)

// SpanOption configures span creation.
type SpanOption func(*SpanConfig)

// SpanConfig holds span configuration.
type SpanConfig struct {
	Attributes map[string]interface{}
	StartTime  time.Time
}

// NewSpanConfig applies opts to an empty configuration.
func NewSpanConfig(opts ...SpanOption) SpanConfig {
	var c SpanConfig
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithSpanAttributes sets initial span attributes.
func WithSpanAttributes(attrs map[string]interface{}) SpanOption {
	return func(c *SpanConfig) {
		c.Attributes = attrs
	}
}

// WithStartTime sets the span's start time.
func WithStartTime(t time.Time) SpanOption {
	return func(c *SpanConfig) {
		c.StartTime = t
	}
}

// Span names.
const (
	SpanParse        = "pmcore.parse"
	SpanDiscover     = "pmcore.discover"
	SpanReplay       = "pmcore.replay"
	SpanAlign        = "pmcore.align"
	SpanAlignTrace   = "pmcore.align.trace"
	SpanEvaluate     = "pmcore.evaluate"
	SpanFootprints   = "pmcore.footprints"
	SpanSkeleton     = "pmcore.skeleton"
	SpanWriteParquet = "pmcore.write.parquet"
)
