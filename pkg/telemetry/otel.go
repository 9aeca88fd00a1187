// Package telemetry exports analysis spans over OpenTelemetry OTLP gRPC.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/logflow/pmcore/pkg/config"
	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/interfaces"
)

// OTLPConfig configures the OTLP gRPC exporter.
type OTLPConfig struct {
	// Endpoint is the collector address, e.g. "localhost:4317".
	Endpoint string

	ServiceName    string
	ServiceVersion string

	// Insecure disables TLS on the gRPC connection.
	Insecure bool

	// Headers are sent with every export request.
	Headers map[string]string

	BatchTimeout  time.Duration
	ExportTimeout time.Duration
	MaxBatchSize  int

	// SamplingRatio is the fraction of traces kept, in [0, 1].
	SamplingRatio float64
}

// DefaultOTLPConfig returns the configuration for a local collector.
func DefaultOTLPConfig() OTLPConfig {
	return OTLPConfig{
		Endpoint:       "localhost:4317",
		ServiceName:    "pmcore",
		ServiceVersion: "0.1.0",
		Insecure:       true,
		BatchTimeout:   5 * time.Second,
		ExportTimeout:  30 * time.Second,
		MaxBatchSize:   512,
		SamplingRatio:  1.0,
	}
}

// OTLPConfigFrom maps the telemetry section of the configuration.
func OTLPConfigFrom(tc config.TelemetryConfig) OTLPConfig {
	cfg := DefaultOTLPConfig()
	if tc.Endpoint != "" {
		cfg.Endpoint = tc.Endpoint
	}
	return cfg
}

// Tracer implements interfaces.Tracer on an OpenTelemetry tracer provider.
type Tracer struct {
	provider trace.TracerProvider
	tracer   trace.Tracer
	shutdown func(context.Context) error

	closeOnce sync.Once
	closeErr  error
}

// NewOTLPTracer dials the collector and returns a tracer exporting in
// batches. The provider is private to the tracer; no global state is set.
func NewOTLPTracer(ctx context.Context, cfg OTLPConfig) (*Tracer, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(cfg.ExportTimeout),
	}
	if cfg.Insecure {
		opts = append(opts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParameter, "create otlp exporter").
			WithContext("endpoint", cfg.Endpoint)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParameter, "create otel resource")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(cfg.BatchTimeout),
			sdktrace.WithMaxExportBatchSize(cfg.MaxBatchSize),
			sdktrace.WithExportTimeout(cfg.ExportTimeout),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SamplingRatio)),
	)
	t := NewTracer(tp, cfg.ServiceName)
	t.shutdown = tp.Shutdown
	return t, nil
}

// NewTracer wraps an existing provider. Close does not shut it down.
func NewTracer(tp trace.TracerProvider, name string) *Tracer {
	return &Tracer{provider: tp, tracer: tp.Tracer(name)}
}

func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	case ratio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(ratio)
	}
}

// StartSpan starts an OpenTelemetry span as a child of any span in ctx.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...interfaces.SpanOption) (context.Context, interfaces.Span) {
	sc := interfaces.NewSpanConfig(opts...)
	var startOpts []trace.SpanStartOption
	if !sc.StartTime.IsZero() {
		startOpts = append(startOpts, trace.WithTimestamp(sc.StartTime))
	}
	if len(sc.Attributes) > 0 {
		startOpts = append(startOpts, trace.WithAttributes(attributes(sc.Attributes)...))
	}
	ctx, span := t.tracer.Start(ctx, name, startOpts...)
	return ctx, otelSpan{span}
}

// Close flushes and shuts down a provider created by NewOTLPTracer.
func (t *Tracer) Close() error {
	t.closeOnce.Do(func() {
		if t.shutdown == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		t.closeErr = t.shutdown(ctx)
	})
	return t.closeErr
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End() {
	s.span.End()
}

func (s otelSpan) SetStatus(code interfaces.SpanStatus, message string) {
	switch code {
	case interfaces.SpanStatusOK:
		s.span.SetStatus(codes.Ok, message)
	case interfaces.SpanStatusError:
		s.span.SetStatus(codes.Error, message)
	}
}

func (s otelSpan) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(attributeOf(key, value))
}

func (s otelSpan) SetAttributes(attrs map[string]interface{}) {
	s.span.SetAttributes(attributes(attrs)...)
}

func (s otelSpan) AddEvent(name string, attrs map[string]interface{}) {
	s.span.AddEvent(name, trace.WithAttributes(attributes(attrs)...))
}

func (s otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s otelSpan) SpanContext() interfaces.SpanContext {
	sc := s.span.SpanContext()
	if !sc.IsValid() {
		return interfaces.SpanContext{}
	}
	return interfaces.SpanContext{TraceID: sc.TraceID().String(), SpanID: sc.SpanID().String()}
}

func attributes(m map[string]interface{}) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(m))
	for k, v := range m {
		out = append(out, attributeOf(k, v))
	}
	return out
}

func attributeOf(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case time.Duration:
		return attribute.Float64(key, v.Seconds())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}

var _ interfaces.Tracer = (*Tracer)(nil)
