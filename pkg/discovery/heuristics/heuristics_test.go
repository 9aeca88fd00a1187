package heuristics

import (
	"math"
	"testing"

	"github.com/logflow/pmcore/pkg/config"
	"github.com/logflow/pmcore/pkg/dfg"
	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/eventlog"
	"github.com/logflow/pmcore/pkg/eventlog/eventlogtest"
	"github.com/logflow/pmcore/pkg/petri"
)

func mine(t *testing.T, seqs [][]string, p Parameters) *Net {
	t.Helper()
	h, err := Discover(eventlog.FromSequences(seqs), p)
	if err != nil {
		t.Fatalf("Discover() = %v", err)
	}
	return h
}

func TestDependencyMeasure(t *testing.T) {
	seqs := eventlogtest.RepeatSequences([][]string{{"a", "b", "c"}, {"a", "c", "b"}, {"a", "a"}}, []int{100, 1, 3})
	h := mine(t, seqs, DefaultParameters())
	tests := []struct {
		edge dfg.Edge
		want float64
	}{
		{dfg.Edge{From: "a", To: "b"}, 100.0 / 101},
		{dfg.Edge{From: "b", To: "c"}, 99.0 / 102},
		{dfg.Edge{From: "c", To: "b"}, -99.0 / 102},
		{dfg.Edge{From: "a", To: "a"}, 3.0 / 4},
	}
	for _, tt := range tests {
		if got := h.Dependency[tt.edge]; math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("dependency(%s,%s) = %v, want %v", tt.edge.From, tt.edge.To, got, tt.want)
		}
	}
}

func TestInfrequentReversalPruned(t *testing.T) {
	seqs := eventlogtest.RepeatSequences([][]string{{"a", "b", "c"}, {"a", "c", "b"}}, []int{100, 1})
	p := DefaultParameters()
	p.DependencyThreshold = 0.99
	h := mine(t, seqs, p)

	if h.HasEdge("c", "b") {
		t.Error("edge c->b retained")
	}
	if !h.HasEdge("a", "b") {
		t.Error("edge a->b missing")
	}
	// b->c scores below the threshold but c needs an input
	if !h.HasEdge("b", "c") {
		t.Error("edge b->c missing")
	}

	an := h.ToPetriNet()
	for _, tr := range an.Net.Transitions() {
		if tr.Name == "c->b" {
			t.Errorf("net has arc transition %s", tr.Name)
		}
	}

	p.AllConnected = false
	if h := mine(t, seqs, p); h.HasEdge("b", "c") {
		t.Error("edge b->c retained without all-connected")
	}
}

func TestParallelSplitAndJoin(t *testing.T) {
	seqs := eventlogtest.RepeatSequences([][]string{{"a", "b", "c", "d"}, {"a", "c", "b", "d"}}, []int{10, 10})
	h := mine(t, seqs, DefaultParameters())

	if h.HasEdge("b", "c") || h.HasEdge("c", "b") {
		t.Error("concurrent activities connected")
	}
	if got := h.Splits["a"]; len(got) != 2 {
		t.Errorf("splits(a) = %v, want two concurrent groups", got)
	}
	if got := h.Joins["d"]; len(got) != 2 {
		t.Errorf("joins(d) = %v, want two concurrent groups", got)
	}
	an := h.ToPetriNet()
	if !petri.IsEasySound(an, 0) {
		t.Errorf("net is not easy sound: %s", an)
	}
}

func TestExclusiveChoice(t *testing.T) {
	seqs := eventlogtest.RepeatSequences([][]string{{"a", "b", "d"}, {"a", "c", "d"}}, []int{10, 10})
	h := mine(t, seqs, DefaultParameters())
	if got := h.Splits["a"]; len(got) != 1 || len(got[0]) != 2 {
		t.Errorf("splits(a) = %v, want one exclusive group", got)
	}
	an := h.ToPetriNet()
	if !petri.IsEasySound(an, 0) {
		t.Errorf("net is not easy sound: %s", an)
	}
	if got := len(an.Net.TransitionsWithLabel("b")); got != 1 {
		t.Errorf("transitions labelled b = %d, want 1", got)
	}
}

func TestLengthTwoLoop(t *testing.T) {
	seqs := eventlogtest.RepeatSequences([][]string{{"a", "b", "c", "b", "d"}, {"a", "b", "d"}}, []int{5, 5})
	h := mine(t, seqs, DefaultParameters())

	if len(h.LoopsTwo) != 1 || h.LoopsTwo[0] != (dfg.Edge{From: "b", To: "c"}) {
		t.Errorf("loops of two = %v, want [b c]", h.LoopsTwo)
	}
	if !h.HasEdge("b", "c") || !h.HasEdge("c", "b") {
		t.Error("loop arcs missing")
	}
	if !petri.IsEasySound(h.ToPetriNet(), 0) {
		t.Error("net is not easy sound")
	}

	p := DefaultParameters()
	p.LoopTwoThreshold = 0.9
	if h := mine(t, seqs, p); len(h.LoopsTwo) != 0 {
		t.Errorf("loops of two = %v, want none above 0.9", h.LoopsTwo)
	}
}

func TestDiscoverPlusOverlap(t *testing.T) {
	l := eventlog.New()
	for i := 0; i < 5; i++ {
		base := i * 100
		l.Append(&eventlog.Trace{
			Attributes: eventlog.Attributes{eventlog.KeyCaseID: "c" + string(rune('1'+i))},
			Events: []eventlog.Event{
				eventlogtest.Interval("a", eventlogtest.At(base), eventlogtest.At(base+10)),
				eventlogtest.Interval("c", eventlogtest.At(base+15), eventlogtest.At(base+25)),
				eventlogtest.Interval("b", eventlogtest.At(base+10), eventlogtest.At(base+30)),
				eventlogtest.Interval("d", eventlogtest.At(base+30), eventlogtest.At(base+40)),
			},
		})
	}
	h, err := DiscoverPlus(l, DefaultParameters())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range []dfg.Edge{{From: "a", To: "b"}, {From: "a", To: "c"}, {From: "b", To: "d"}, {From: "c", To: "d"}} {
		if !h.HasEdge(e.From, e.To) {
			t.Errorf("edge %s->%s missing", e.From, e.To)
		}
	}
	if h.HasEdge("c", "b") || h.HasEdge("b", "c") {
		t.Error("overlapping activities connected")
	}
	if got := h.Splits["a"]; len(got) != 2 {
		t.Errorf("splits(a) = %v, want two concurrent groups", got)
	}
	if !petri.IsEasySound(h.ToPetriNet(), 0) {
		t.Error("net is not easy sound")
	}

	// ordered by completion the same log reads a c b d
	seq, err := Discover(l, DefaultParameters())
	if err != nil {
		t.Fatal(err)
	}
	if !seq.HasEdge("c", "b") {
		t.Error("sequence miner should connect c->b")
	}
}

func TestParameters(t *testing.T) {
	p := DefaultParameters()
	p.DependencyThreshold = 2
	if _, err := Discover(eventlog.New(), p); !errors.IsCode(err, errors.CodeInvalidParameter) {
		t.Errorf("error = %v, want %s", err, errors.CodeInvalidParameter)
	}
	if _, err := Discover(eventlog.New(), DefaultParameters()); !errors.IsCode(err, errors.CodeNoActivities) {
		t.Errorf("error = %v, want %s", err, errors.CodeNoActivities)
	}

	cfg := config.Default()
	cfg.Discovery.AndThreshold = 0.8
	if got := ParametersFromConfig(cfg).AndThreshold; got != 0.8 {
		t.Errorf("AndThreshold = %v, want 0.8", got)
	}
}
