package analysis

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/logflow/pmcore/pkg/config"
	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/eventlog"
	"github.com/logflow/pmcore/pkg/interfaces"
)

type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
	gauges   map[string]float64
	timers   map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		counters: map[string]int64{},
		gauges:   map[string]float64{},
		timers:   map[string]int{},
	}
}

func (r *recordingMetrics) Counter(name string, v int64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += v
}

func (r *recordingMetrics) Gauge(name string, v float64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[name] = v
}

func (r *recordingMetrics) Histogram(string, float64, map[string]string) {}

func (r *recordingMetrics) Timer(name string, _ time.Duration, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timers[name]++
}

func (r *recordingMetrics) Flush() error { return nil }
func (r *recordingMetrics) Close() error { return nil }

var _ interfaces.MetricsExporter = (*recordingMetrics)(nil)

func runningLog() *eventlog.EventLog {
	return eventlog.FromSequences([][]string{
		{"a", "b", "c", "d"},
		{"a", "c", "b", "d"},
		{"a", "b", "c", "d"},
		{"a", "e", "d"},
	})
}

func newTestContext() (*Context, *recordingMetrics, *bytes.Buffer) {
	m := newRecordingMetrics()
	var buf bytes.Buffer
	c := New(nil, WithMetrics(m), WithLogger(log.New(&buf, "", 0)))
	return c, m, &buf
}

func TestNew(t *testing.T) {
	a, b := New(nil), New(config.Default())
	if a.RunID == "" || a.RunID == b.RunID {
		t.Errorf("run ids = %q, %q, want distinct non-empty", a.RunID, b.RunID)
	}
	if a.Keys.Activity != eventlog.KeyActivity {
		t.Errorf("activity key = %q, want %q", a.Keys.Activity, eventlog.KeyActivity)
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestCachedDerivations(t *testing.T) {
	c, m, _ := newTestContext()
	l := runningLog()

	v1 := c.Variants(l)
	v2 := c.Variants(l)
	if v1 != v2 {
		t.Error("Variants() not cached")
	}
	if v1.Len() != 3 {
		t.Errorf("variants = %d, want 3", v1.Len())
	}
	if g := c.DFG(l); g.Follows("a", "b") != 2 {
		t.Errorf("DFG follows(a,b) = %d, want 2", g.Follows("a", "b"))
	}
	if fp := c.Footprints(l); fp == nil {
		t.Error("Footprints() = nil")
	}
	if tree := c.PrefixTree(l); !tree.HasPath([]string{"a", "e", "d"}) {
		t.Error("prefix tree misses a,e,d")
	}
	// variants: miss then hits from the second call and each derivation
	if got := m.counters[interfaces.MetricCacheMisses]; got != 4 {
		t.Errorf("cache misses = %d, want 4", got)
	}
	if got := m.counters[interfaces.MetricCacheHits]; got != 4 {
		t.Errorf("cache hits = %d, want 4", got)
	}

	c.Forget(l)
	if c.Variants(l) == v1 {
		t.Error("Variants() after Forget returned the stale value")
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in   string
		want Algorithm
	}{
		{"inductive", Inductive},
		{"IMF", InductiveInfrequent},
		{"imd", InductiveDFG},
		{" alpha_plus ", AlphaPlus},
		{"heuristics_plus", HeuristicsPlus},
	}
	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseAlgorithm(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseAlgorithm("genetic"); !errors.IsCode(err, errors.CodeInvalidParameter) {
		t.Errorf("ParseAlgorithm(genetic) error = %v, want %s", err, errors.CodeInvalidParameter)
	}
	if got := len(Algorithms()); got != 7 {
		t.Errorf("Algorithms() = %d names, want 7", got)
	}
}

func TestDiscoverAll(t *testing.T) {
	c, m, buf := newTestContext()
	l := runningLog()
	for _, algo := range []Algorithm{Inductive, InductiveInfrequent, InductiveDFG, Alpha, AlphaPlus, Heuristics, HeuristicsPlus} {
		model, err := c.Discover(context.Background(), l, algo)
		if err != nil {
			t.Errorf("Discover(%s) error: %v", algo, err)
			continue
		}
		if model.Net == nil || model.Net.Net.NumTransitions() == 0 {
			t.Errorf("Discover(%s) returned an empty net", algo)
		}
		isInductive := algo == Inductive || algo == InductiveInfrequent || algo == InductiveDFG
		if (model.Tree != nil) != isInductive {
			t.Errorf("Discover(%s) tree set = %v", algo, model.Tree != nil)
		}
		if (model.Heuristics != nil) != (algo == Heuristics || algo == HeuristicsPlus) {
			t.Errorf("Discover(%s) heuristics net set = %v", algo, model.Heuristics != nil)
		}
	}
	if got := m.timers[interfaces.MetricDiscoveryDuration]; got != 7 {
		t.Errorf("discovery timers = %d, want 7", got)
	}
	if !bytes.Contains(buf.Bytes(), []byte("discovered alpha model")) {
		t.Errorf("log output missing discovery line: %q", buf.String())
	}
	if _, err := c.Discover(context.Background(), l, Algorithm(42)); err == nil {
		t.Error("Discover(unknown) succeeded")
	}
}

func TestConformance(t *testing.T) {
	c, m, _ := newTestContext()
	ctx := context.Background()
	l := runningLog()
	model, err := c.Discover(ctx, l, Inductive)
	if err != nil {
		t.Fatal(err)
	}

	rep, err := c.Replay(ctx, model.Net, l)
	if err != nil {
		t.Fatal(err)
	}
	if got := rep.Fitness(); got != 1 {
		t.Errorf("replay fitness = %v, want 1", got)
	}

	al, err := c.Align(ctx, model.Net, l)
	if err != nil {
		t.Fatal(err)
	}
	if al.Failed() != 0 {
		t.Errorf("failed alignments = %d, want 0", al.Failed())
	}
	for i, tr := range al.Traces {
		if tr.Alignment.Cost != 0 {
			t.Errorf("trace %d alignment cost = %v, want 0", i, tr.Alignment.Cost)
		}
	}

	report, err := c.Evaluate(ctx, model.Net, l)
	if err != nil {
		t.Fatal(err)
	}
	if report.Fitness.Log != 1 {
		t.Errorf("evaluated fitness = %v, want 1", report.Fitness.Log)
	}
	if report.Precision <= 0 || report.Precision > 1 {
		t.Errorf("precision = %v, want in (0,1]", report.Precision)
	}

	dev, err := c.CompareFootprints(ctx, model.Net, l)
	if err != nil {
		t.Fatal(err)
	}
	if !dev.FootprintsFit() {
		t.Errorf("footprint deviations = %v, want none", dev.Relations)
	}

	sk, res, err := c.Skeleton(ctx, l)
	if err != nil {
		t.Fatal(err)
	}
	if sk == nil || res.Fitness() != 1 {
		t.Errorf("skeleton fitness = %v, want 1", res.Fitness())
	}

	if got := m.counters[interfaces.MetricReplayTraces]; got != 4 {
		t.Errorf("replayed traces = %d, want 4", got)
	}
	if got := m.counters[interfaces.MetricAlignTraces]; got != 4 {
		t.Errorf("aligned traces = %d, want 4", got)
	}
	if got := m.gauges[interfaces.MetricEvalFitness]; got != 1 {
		t.Errorf("fitness gauge = %v, want 1", got)
	}
}

func TestCanceled(t *testing.T) {
	c, m, _ := newTestContext()
	l := runningLog()
	model, err := c.Discover(context.Background(), l, Inductive)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Replay(ctx, model.Net, l); err == nil {
		t.Error("Replay with canceled context succeeded")
	}
	if got := m.timers[interfaces.MetricReplayDuration]; got != 1 {
		t.Errorf("replay timers = %d, want 1", got)
	}
}

func TestReadLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	data := "case:concept:name,concept:name,time:timestamp\n" +
		"c1,a,2024-01-01T09:00:00Z\n" +
		"c1,b,2024-01-01T09:05:00Z\n" +
		"c2,a,2024-01-01T10:00:00Z\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	c, m, _ := newTestContext()
	l, err := c.ReadLog(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 2 || l.EventCount() != 3 {
		t.Errorf("log = %d traces, %d events, want 2 and 3", l.Len(), l.EventCount())
	}
	if got := m.counters[interfaces.MetricParseEvents]; got != 3 {
		t.Errorf("parsed events = %d, want 3", got)
	}
	if _, err := c.ReadLog(context.Background(), filepath.Join(t.TempDir(), "log.txt")); err == nil {
		t.Error("ReadLog(.txt) succeeded")
	}
}
