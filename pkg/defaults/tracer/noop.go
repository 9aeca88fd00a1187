// Package tracer provides the tracers used when no telemetry backend is
// configured.
package tracer

import (
	"context"

	"github.com/logflow/pmcore/pkg/interfaces"
)

// NoopTracer discards all spans.
type NoopTracer struct{}

// NewNoopTracer creates a new noop tracer.
func NewNoopTracer() *NoopTracer {
	return &NoopTracer{}
}

// StartSpan returns ctx unchanged with a span that does nothing.
func (t *NoopTracer) StartSpan(ctx context.Context, _ string, _ ...interfaces.SpanOption) (context.Context, interfaces.Span) {
	return ctx, noopSpan{}
}

// Close does nothing.
func (t *NoopTracer) Close() error {
	return nil
}

type noopSpan struct{}

func (noopSpan) End() {}
func (noopSpan) SetStatus(interfaces.SpanStatus, string) {}
func (noopSpan) SetAttribute(string, interface{}) {}
func (noopSpan) SetAttributes(map[string]interface{}) {}
func (noopSpan) AddEvent(string, map[string]interface{}) {}
func (noopSpan) RecordError(error) {}
func (noopSpan) SpanContext() interfaces.SpanContext { return interfaces.SpanContext{} }

var (
	_ interfaces.Tracer = (*NoopTracer)(nil)
	_ interfaces.Span   = noopSpan{}
)
