package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/logflow/pmcore/pkg/interfaces"
)

func TestTracer(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tr := NewTracer(tp, "test")

	ctx, parent := tr.StartSpan(context.Background(), interfaces.SpanAlign,
		interfaces.WithSpanAttributes(map[string]interface{}{"traces": 3}))
	_, child := tr.StartSpan(ctx, interfaces.SpanAlignTrace)
	child.SetAttribute("cost", 2.0)
	child.RecordError(errors.New("state limit"))
	child.End()
	if !parent.SpanContext().IsValid() {
		t.Error("parent span context is invalid")
	}
	parent.End()

	ended := rec.Ended()
	if len(ended) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(ended))
	}
	c, p := ended[0], ended[1]
	if c.Parent().SpanID() != p.SpanContext().SpanID() {
		t.Error("child span is not parented to the enclosing span")
	}
	if c.Status().Code != codes.Error {
		t.Errorf("child status = %v, want Error", c.Status().Code)
	}
	found := false
	for _, kv := range p.Attributes() {
		if kv.Key == "traces" && kv.Value.AsInt64() == 3 {
			found = true
		}
	}
	if !found {
		t.Errorf("parent attributes = %v, want traces=3", p.Attributes())
	}
	if err := tr.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{1, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
	}
	for _, tt := range tests {
		if got := sampler(tt.ratio).Description(); got != tt.want {
			t.Errorf("sampler(%v) = %q, want %q", tt.ratio, got, tt.want)
		}
	}
}
