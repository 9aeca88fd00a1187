package replay

import (
	"context"
	"math"
	"testing"

	"github.com/logflow/pmcore/pkg/discovery/alpha"
	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/eventlog"
	"github.com/logflow/pmcore/pkg/eventlog/eventlogtest"
	"github.com/logflow/pmcore/pkg/petri"
	"github.com/logflow/pmcore/pkg/ptree"
)

// sequenceNet builds source -a-> p1 -b-> p2 -c-> sink, optionally with a
// silent transition skipping b.
func sequenceNet(skip bool) *petri.AcceptingNet {
	n := petri.NewNet("seq")
	src := n.AddPlace("source")
	p1 := n.AddPlace("p1")
	p2 := n.AddPlace("p2")
	sink := n.AddPlace("sink")
	a := n.AddTransition("a", "a")
	b := n.AddTransition("b", "b")
	c := n.AddTransition("c", "c")
	n.AddInputArc(src, a, 1)
	n.AddOutputArc(a, p1, 1)
	n.AddInputArc(p1, b, 1)
	n.AddOutputArc(b, p2, 1)
	n.AddInputArc(p2, c, 1)
	n.AddOutputArc(c, sink, 1)
	if skip {
		tau := n.AddTransition("skip", "")
		n.AddInputArc(p1, tau, 1)
		n.AddOutputArc(tau, p2, 1)
	}
	return &petri.AcceptingNet{Net: n, Initial: petri.NewMarking(src), Final: petri.NewMarking(sink)}
}

func replayer(t *testing.T, an *petri.AcceptingNet, p Parameters) *Replayer {
	t.Helper()
	r, err := NewReplayer(an, p)
	if err != nil {
		t.Fatalf("NewReplayer() = %v", err)
	}
	return r
}

func TestTraceCounters(t *testing.T) {
	r := replayer(t, sequenceNet(false), DefaultParameters())
	tests := []struct {
		name                                   string
		trace                                  []string
		missing, remaining, consumed, produced int
		fit                                    bool
	}{
		{"fitting", []string{"a", "b", "c"}, 0, 0, 4, 4, true},
		{"skipped b", []string{"a", "c"}, 1, 1, 3, 3, false},
		{"empty trace", nil, 1, 1, 1, 1, false},
	}
	for _, tt := range tests {
		res := r.Trace(tt.trace)
		if res.Missing != tt.missing || res.Remaining != tt.remaining || res.Consumed != tt.consumed || res.Produced != tt.produced {
			t.Errorf("%s: m=%d r=%d c=%d p=%d, want m=%d r=%d c=%d p=%d", tt.name,
				res.Missing, res.Remaining, res.Consumed, res.Produced,
				tt.missing, tt.remaining, tt.consumed, tt.produced)
		}
		if res.Fit != tt.fit {
			t.Errorf("%s: Fit = %v, want %v", tt.name, res.Fit, tt.fit)
		}
	}

	res := r.Trace([]string{"a", "c"})
	if want := 2.0 / 3; math.Abs(res.Fitness-want) > 1e-9 {
		t.Errorf("Fitness = %v, want %v", res.Fitness, want)
	}
	if len(res.Problems) != 1 || res.Problems[0] != "c" {
		t.Errorf("Problems = %v, want [c]", res.Problems)
	}
	p1, _ := r.Net().Net.PlaceByName("p1")
	p2, _ := r.Net().Net.PlaceByName("p2")
	if res.MissingTokens[p2] != 1 || res.RemainingTokens[p1] != 1 {
		t.Errorf("missing = %v, remaining = %v", res.MissingTokens, res.RemainingTokens)
	}
}

func TestSilentPath(t *testing.T) {
	r := replayer(t, sequenceNet(true), DefaultParameters())
	res := r.Trace([]string{"a", "c"})
	if !res.Fit || !res.ReachedFinal {
		t.Fatalf("result = %+v, want a fitting trace", res)
	}
	if len(res.Activated) != 3 || !r.Net().Net.Transition(res.Activated[1]).IsSilent() {
		t.Errorf("Activated = %v, want a, skip, c", res.Activated)
	}

	bounded := replayer(t, sequenceNet(true), Parameters{MaxSilentSteps: 1, MaxSilentStates: 1})
	if res := bounded.Trace([]string{"a", "c"}); res.Fit {
		t.Error("silent search ignored the state bound")
	}
}

func TestUnknownActivity(t *testing.T) {
	r := replayer(t, sequenceNet(false), DefaultParameters())
	res := r.Trace([]string{"a", "x", "b", "c"})
	if res.Fit {
		t.Error("trace with unknown activity is fit")
	}
	if res.Fitness != 1 {
		t.Errorf("Fitness = %v, want 1", res.Fitness)
	}
	if len(res.Unknown) != 1 || res.Unknown[0] != "x" {
		t.Errorf("Unknown = %v, want [x]", res.Unknown)
	}
}

func TestBackward(t *testing.T) {
	p := DefaultParameters()
	p.Backward = true
	r := replayer(t, sequenceNet(false), p)
	if res := r.Trace([]string{"a", "b", "c"}); !res.Fit {
		t.Errorf("backward replay of a fitting trace: %+v", res)
	}
	if res := r.Trace([]string{"c", "b", "a"}); res.Fit {
		t.Error("backward replay accepted the reversed trace")
	}
}

func TestRunningExampleAlpha(t *testing.T) {
	l := eventlogtest.RunningExample()
	an, err := alpha.Discover(l, alpha.Parameters{})
	if err != nil {
		t.Fatal(err)
	}
	res, err := Log(context.Background(), an, l, DefaultParameters())
	if err != nil {
		t.Fatal(err)
	}
	if got := res.PercFitTraces(); got != 1 {
		t.Errorf("PercFitTraces() = %v, want 1", got)
	}
	if got := res.Fitness(); got != 1 {
		t.Errorf("Fitness() = %v, want 1", got)
	}
	decide := an.Net.TransitionsWithLabel(eventlogtest.Decide)[0]
	if got := res.Diagnostics.Fired[decide]; got != 9 {
		t.Errorf("decide fired %d times, want 9", got)
	}
}

func TestMinimalXor(t *testing.T) {
	an, err := ptree.ToPetriNet(ptree.Xor(ptree.Leaf("a"), ptree.Leaf("b")))
	if err != nil {
		t.Fatal(err)
	}
	l := eventlog.FromSequences([][]string{{"a"}, {"b"}})
	res, err := Log(context.Background(), an, l, DefaultParameters())
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Fitness(); got != 1 {
		t.Errorf("Fitness() = %v, want 1", got)
	}
	r := replayer(t, an, DefaultParameters())
	got := r.EnabledLabels(an.Initial)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("EnabledLabels(initial) = %v, want [a b]", got)
	}
}

func TestLogOrderWithWorkers(t *testing.T) {
	seqs := [][]string{{"a", "b", "c"}, {"a", "c"}, {"a", "b", "c"}, {"b"}, {"a", "b", "c"}}
	p := DefaultParameters()
	p.Workers = 4
	res, err := Log(context.Background(), sequenceNet(false), eventlog.FromSequences(seqs), p)
	if err != nil {
		t.Fatal(err)
	}
	want := []bool{true, false, true, false, true}
	for i, w := range want {
		if res.Traces[i].Fit != w {
			t.Errorf("trace %d Fit = %v, want %v", i, res.Traces[i].Fit, w)
		}
	}
	if got := res.PercFitTraces(); got != 0.6 {
		t.Errorf("PercFitTraces() = %v, want 0.6", got)
	}
	if got := res.Diagnostics.Problems["c"]; got != 1 {
		t.Errorf("problems(c) = %d, want 1", got)
	}
}

func TestErrors(t *testing.T) {
	if _, err := NewReplayer(sequenceNet(false), Parameters{Workers: -1}); !errors.IsCode(err, errors.CodeInvalidParameter) {
		t.Errorf("error = %v, want %s", err, errors.CodeInvalidParameter)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Log(ctx, sequenceNet(false), eventlogtest.RunningExample(), DefaultParameters())
	if !errors.IsCode(err, errors.CodeContextCanceled) {
		t.Errorf("error = %v, want %s", err, errors.CodeContextCanceled)
	}
	if got := (&Result{}).Fitness(); got != 0 {
		t.Errorf("empty Fitness() = %v, want 0", got)
	}
}
