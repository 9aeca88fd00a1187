package align

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/logflow/pmcore/pkg/config"
	"github.com/logflow/pmcore/pkg/discovery/alpha"
	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/eventlog"
	"github.com/logflow/pmcore/pkg/eventlog/eventlogtest"
	"github.com/logflow/pmcore/pkg/petri"
	"github.com/logflow/pmcore/pkg/ptree"
)

// sequenceNet builds source -a-> p1 -b-> p2 -c-> sink.
func sequenceNet() *petri.AcceptingNet {
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
	return &petri.AcceptingNet{Net: n, Initial: petri.NewMarking(src), Final: petri.NewMarking(sink)}
}

func treeNet(t *testing.T, tree *ptree.Tree) *petri.AcceptingNet {
	t.Helper()
	an, err := ptree.ToPetriNet(tree)
	if err != nil {
		t.Fatal(err)
	}
	return an
}

func TestSingleDeviation(t *testing.T) {
	al, err := Trace(context.Background(), sequenceNet(), []string{"a", "c"}, DefaultParameters())
	if err != nil {
		t.Fatal(err)
	}
	if al.Cost != 1 {
		t.Errorf("Cost = %v, want 1", al.Cost)
	}
	want := []string{"(a,a)", "(>>,b)", "(c,c)"}
	if len(al.Moves) != len(want) {
		t.Fatalf("Moves = %v, want %v", al.Moves, want)
	}
	for i, m := range al.Moves {
		if m.String() != want[i] {
			t.Errorf("move %d = %s, want %s", i, m, want[i])
		}
	}
	if al.WorstCost != 5 {
		t.Errorf("WorstCost = %v, want 5", al.WorstCost)
	}
	if math.Abs(al.Fitness-0.8) > 1e-9 {
		t.Errorf("Fitness = %v, want 0.8", al.Fitness)
	}
	if want := 1 - 1.0/3; math.Abs(al.MoveFitness()-want) > 1e-9 {
		t.Errorf("MoveFitness() = %v, want %v", al.MoveFitness(), want)
	}
	if dev := al.Deviations(); len(dev) != 1 || dev[0].Kind != ModelMove || dev[0].Label != "b" {
		t.Errorf("Deviations() = %v, want [(>>,b)]", dev)
	}
	if al.Stats.LPSolves == 0 {
		t.Error("A* solved no relaxation")
	}
}

func TestMoveKinds(t *testing.T) {
	al, err := Trace(context.Background(), sequenceNet(), []string{"a", "x", "b", "c"}, DefaultParameters())
	if err != nil {
		t.Fatal(err)
	}
	if al.Cost != 1 {
		t.Errorf("Cost = %v, want 1", al.Cost)
	}
	if m := al.Moves[1]; m.Kind != LogMove || m.Event != 1 || m.String() != "(x,>>)" {
		t.Errorf("move 1 = %+v, want log move on x", m)
	}
}

func TestVariantsAgree(t *testing.T) {
	l := eventlogtest.RunningExample()
	an, err := alpha.Discover(l, alpha.Parameters{})
	if err != nil {
		t.Fatal(err)
	}
	traces := append(eventlogtest.RunningExampleSequences(),
		[]string{eventlogtest.Register, eventlogtest.Decide, eventlogtest.Pay},
		[]string{eventlogtest.Pay},
		nil,
		[]string{eventlogtest.Register, eventlogtest.ExamineCas, eventlogtest.ExamineCas,
			eventlogtest.CheckTicket, eventlogtest.Decide, eventlogtest.Reject},
	)

	variants := []Variant{AStar, Dijkstra, DijkstraLowMemory}
	for i, tr := range traces {
		var costs []float64
		for _, v := range variants {
			p := DefaultParameters()
			p.Variant = v
			al, err := Trace(context.Background(), an, tr, p)
			if err != nil {
				t.Fatalf("trace %d, %s: %v", i, v, err)
			}
			costs = append(costs, al.Cost)
			if al.Cost > al.WorstCost {
				t.Errorf("trace %d, %s: Cost %v above WorstCost %v", i, v, al.Cost, al.WorstCost)
			}
		}
		for j := 1; j < len(costs); j++ {
			if costs[j] != costs[0] {
				t.Errorf("trace %d: %s cost %v, %s cost %v", i, variants[j], costs[j], variants[0], costs[0])
			}
		}
		if i < 6 && costs[0] != 0 {
			t.Errorf("trace %d of the log has cost %v, want 0", i, costs[0])
		}
	}
}

func TestDiscounted(t *testing.T) {
	al, err := Trace(context.Background(), sequenceNet(), []string{"a", "c"}, DiscountedParameters())
	if err != nil {
		t.Fatal(err)
	}
	if al.Cost != 1 {
		t.Errorf("Cost = %v, want 1", al.Cost)
	}
	if want := 1 / 1.1; math.Abs(al.SearchCost-want) > 1e-9 {
		t.Errorf("SearchCost = %v, want %v", al.SearchCost, want)
	}
}

func TestSilentModelMoves(t *testing.T) {
	an := treeNet(t, ptree.Seq(ptree.Leaf("a"), ptree.Xor(ptree.Leaf("b"), ptree.Tau()), ptree.Leaf("c")))
	al, err := Trace(context.Background(), an, []string{"a", "c"}, DefaultParameters())
	if err != nil {
		t.Fatal(err)
	}
	if al.Cost != 0 || al.Fitness != 1 {
		t.Errorf("Cost = %v, Fitness = %v, want 0 and 1", al.Cost, al.Fitness)
	}
	silent := 0
	for _, m := range al.Moves {
		if m.Silent() {
			silent++
		}
	}
	if silent != 1 {
		t.Errorf("silent moves = %d, want 1", silent)
	}
}

func TestSearchFailures(t *testing.T) {
	n := petri.NewNet("broken")
	src := n.AddPlace("source")
	p1 := n.AddPlace("p1")
	sink := n.AddPlace("sink")
	a := n.AddTransition("a", "a")
	n.AddInputArc(src, a, 1)
	n.AddOutputArc(a, p1, 1)
	broken := &petri.AcceptingNet{Net: n, Initial: petri.NewMarking(src), Final: petri.NewMarking(sink)}

	for _, v := range []Variant{AStar, Dijkstra} {
		p := DefaultParameters()
		p.Variant = v
		if _, err := Trace(context.Background(), broken, []string{"a"}, p); !errors.IsCode(err, errors.CodeUnreachableFinal) {
			t.Errorf("%s: error = %v, want %s", v, err, errors.CodeUnreachableFinal)
		}
	}

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	if _, err := Trace(ctx, sequenceNet(), []string{"a", "c"}, DefaultParameters()); !errors.IsCode(err, errors.CodeSearchTimeout) {
		t.Errorf("error = %v, want %s", err, errors.CodeSearchTimeout)
	}

	p := DefaultParameters()
	p.Variant = Dijkstra
	p.MaxStates = 1
	if _, err := Trace(context.Background(), sequenceNet(), []string{"a", "c"}, p); !errors.IsCode(err, errors.CodeStateLimit) {
		t.Errorf("error = %v, want %s", err, errors.CodeStateLimit)
	}
}

func TestLog(t *testing.T) {
	seqs := [][]string{{"a", "b", "c"}, {"a", "c"}, {"a", "b", "c"}}
	p := DefaultParameters()
	p.Workers = 3
	res, err := Log(context.Background(), sequenceNet(), eventlog.FromSequences(seqs), p)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Traces) != 3 || res.Failed() != 0 {
		t.Fatalf("traces = %d, failed = %d", len(res.Traces), res.Failed())
	}
	if !res.Traces[0].Fit() || res.Traces[1].Fit() || !res.Traces[2].Fit() {
		t.Error("fit flags do not follow the log order")
	}
	if got := res.PercFitTraces(); math.Abs(got-2.0/3) > 1e-9 {
		t.Errorf("PercFitTraces() = %v, want 2/3", got)
	}
	// worst costs: 3+3, 3+2, 3+3; cost 1
	if want := 1 - 1.0/17; math.Abs(res.Fitness()-want) > 1e-9 {
		t.Errorf("Fitness() = %v, want %v", res.Fitness(), want)
	}
	if want := (1 + 0.8 + 1) / 3; math.Abs(res.AverageFitness()-want) > 1e-9 {
		t.Errorf("AverageFitness() = %v, want %v", res.AverageFitness(), want)
	}
}

func TestMulti(t *testing.T) {
	an := treeNet(t, ptree.Seq(ptree.Leaf("a"), ptree.Xor(ptree.Leaf("b"), ptree.Leaf("c")), ptree.Leaf("d")))
	ma, err := Multi(context.Background(), an, [][]string{{"a", "b", "d"}, {"a", "c", "d"}}, DefaultParameters())
	if err != nil {
		t.Fatal(err)
	}
	if ma.MaxDistance != 1 || len(ma.Distances) != 2 {
		t.Errorf("MaxDistance = %d, Distances = %v, want 1 over two traces", ma.MaxDistance, ma.Distances)
	}

	ma, err = Multi(context.Background(), an, [][]string{{"a", "c", "d"}, {"a", "c"}}, DefaultParameters())
	if err != nil {
		t.Fatal(err)
	}
	if got := ma.Run; len(got) != 3 || got[1] != "c" || ma.MaxDistance != 1 {
		t.Errorf("Run = %v, MaxDistance = %d, want [a c d] and 1", got, ma.MaxDistance)
	}

	if _, err := Multi(context.Background(), an, nil, DefaultParameters()); !errors.IsCode(err, errors.CodeInvalidParameter) {
		t.Errorf("error = %v, want %s", err, errors.CodeInvalidParameter)
	}
}

func TestAnti(t *testing.T) {
	an := treeNet(t, ptree.Xor(ptree.Seq(ptree.Leaf("a"), ptree.Leaf("b")), ptree.Seq(ptree.Leaf("c"), ptree.Leaf("d"))))
	tests := []struct {
		name      string
		traces    [][]string
		distance  int
		precision float64
	}{
		{"unseen branch", [][]string{{"a", "b"}}, 2, 0},
		{"all behavior seen", [][]string{{"a", "b"}, {"c", "d"}}, 0, 1},
	}
	for _, tt := range tests {
		aa, err := Anti(context.Background(), an, tt.traces, DefaultParameters())
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if aa.Distance != tt.distance || aa.Precision != tt.precision {
			t.Errorf("%s: Distance = %d, Precision = %v, want %d and %v", tt.name, aa.Distance, aa.Precision, tt.distance, tt.precision)
		}
	}
}

func TestDecomposedMatchesMonolithic(t *testing.T) {
	traces := [][]string{{"a", "b", "c"}, {"a", "c"}, {"a", "x", "c"}, {"b"}, nil}
	for _, tr := range traces {
		mono, err := Trace(context.Background(), sequenceNet(), tr, DefaultParameters())
		if err != nil {
			t.Fatal(err)
		}
		dec, err := Decomposed(context.Background(), sequenceNet(), tr, DefaultParameters())
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(dec.Cost-mono.Cost) > 1e-9 {
			t.Errorf("trace %v: decomposed cost %v, monolithic %v", tr, dec.Cost, mono.Cost)
		}
		if dec.Disagreements != 0 {
			t.Errorf("trace %v: %d disagreements left", tr, dec.Disagreements)
		}
		events := 0
		for _, m := range dec.Moves {
			if m.Event >= 0 {
				events++
			}
		}
		if events != len(tr) {
			t.Errorf("trace %v: stitched %d events", tr, events)
		}
	}
}

// replayMoves fires the model side of an alignment on an.
func replayMoves(an *petri.AcceptingNet, moves []Move) bool {
	m := an.Initial
	for _, mv := range moves {
		if mv.Kind == LogMove {
			continue
		}
		next, err := an.Net.Fire(mv.Transition, m)
		if err != nil {
			return false
		}
		m = next
	}
	return m.Equal(an.Final)
}

func TestDecomposedInterleavedBorder(t *testing.T) {
	tree, err := ptree.Parse("*( ->( *( 'a', 'b' ), 'd', +( 'e', 'f' ) ), *( 'g', +( 'h', 'i' ) ) )")
	if err != nil {
		t.Fatal(err)
	}
	an := treeNet(t, tree)
	tr := []string{"f", "d", "e", "a"}
	mono, err := Trace(context.Background(), an, tr, DefaultParameters())
	if err != nil {
		t.Fatal(err)
	}
	dec, err := Decomposed(context.Background(), an, tr, DefaultParameters())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(dec.Cost-mono.Cost) > 1e-9 {
		t.Errorf("decomposed cost %v, monolithic %v", dec.Cost, mono.Cost)
	}
	if !replayMoves(an, dec.Moves) {
		t.Errorf("stitched moves %v do not replay", dec.Moves)
	}
}

// randomTree builds a tree over fresh single-letter labels.
func randomTree(rng *rand.Rand, depth int, next *int) *ptree.Tree {
	if depth == 0 || rng.Intn(3) == 0 {
		l := string(rune('a' + *next))
		*next++
		return ptree.Leaf(l)
	}
	left := randomTree(rng, depth-1, next)
	right := randomTree(rng, depth-1, next)
	switch rng.Intn(4) {
	case 0:
		return ptree.Seq(left, right)
	case 1:
		return ptree.Xor(left, right)
	case 2:
		return ptree.Parallel(left, right)
	default:
		return ptree.Loop(left, right)
	}
}

// perturb swaps, drops or duplicates one event.
func perturb(rng *rand.Rand, tr []string) []string {
	out := append([]string(nil), tr...)
	if len(out) == 0 {
		return out
	}
	i := rng.Intn(len(out))
	switch rng.Intn(3) {
	case 0:
		j := rng.Intn(len(out))
		out[i], out[j] = out[j], out[i]
	case 1:
		out = append(out[:i], out[i+1:]...)
	default:
		out = append(out[:i+1], out[i:]...)
	}
	return out
}

func TestDecomposedRandomTrees(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 40; i++ {
		next := 0
		tree := randomTree(rng, 3, &next)
		an := treeNet(t, tree)
		traces := ptree.Playout(tree, 4, ptree.PlayoutOptions{MaxLoopRounds: 2, Seed: int64(i)})
		for _, tr := range traces {
			tr = perturb(rng, perturb(rng, tr))
			mono, err := Trace(context.Background(), an, tr, DefaultParameters())
			if err != nil {
				t.Fatal(err)
			}
			dec, err := Decomposed(context.Background(), an, tr, DefaultParameters())
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(dec.Cost-mono.Cost) > 1e-9 {
				t.Errorf("%s on %v: decomposed cost %v (%d components), monolithic %v", tree, tr, dec.Cost, dec.Components, mono.Cost)
			}
			if dec.Disagreements != 0 || !replayMoves(an, dec.Moves) {
				t.Errorf("%s on %v: stitched alignment invalid (%d disagreements)", tree, tr, dec.Disagreements)
			}
		}
	}
}

func TestParameters(t *testing.T) {
	p := DefaultParameters()
	p.Exponent = 1.5
	if err := p.Validate(); !errors.IsCode(err, errors.CodeInapplicableParameter) {
		t.Errorf("exponent on astar: error = %v, want %s", err, errors.CodeInapplicableParameter)
	}
	p = DiscountedParameters()
	p.Exponent = 0.5
	if err := p.Validate(); !errors.IsCode(err, errors.CodeInvalidParameter) {
		t.Errorf("exponent 0.5: error = %v, want %s", err, errors.CodeInvalidParameter)
	}
	p = DefaultParameters()
	p.LogMoveCost = -1
	if err := p.Validate(); !errors.IsCode(err, errors.CodeInvalidParameter) {
		t.Errorf("negative cost: error = %v, want %s", err, errors.CodeInvalidParameter)
	}

	if v, err := ParseVariant("Dijkstra_Low_Memory"); err != nil || v != DijkstraLowMemory {
		t.Errorf("ParseVariant() = %v, %v", v, err)
	}
	if _, err := ParseVariant("bfs"); !errors.IsCode(err, errors.CodeInvalidParameter) {
		t.Errorf("error = %v, want %s", err, errors.CodeInvalidParameter)
	}

	cfg := config.Default()
	p, err := ParametersFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if p.Variant != AStar || p.Exponent != 0 || p.LogMoveCost != 1 {
		t.Errorf("ParametersFromConfig() = %+v", p)
	}
	cfg.Alignment.Variant = "discounted"
	if p, err = ParametersFromConfig(cfg); err != nil || p.Exponent != 1.1 || p.MarkingLimit != 1 {
		t.Errorf("discounted ParametersFromConfig() = %+v, %v", p, err)
	}
}

func TestAlphabetEncoding(t *testing.T) {
	if got := alphabetRune(0xD800 - 0x100); got != 0xE000 {
		t.Errorf("rune after the surrogate gap = %U, want U+E000", got)
	}
	if got := alphabetRune(alphabetSize - 1); got != utf8.MaxRune {
		t.Errorf("last rune = %U, want %U", got, utf8.MaxRune)
	}

	seq := make([]string, 60000)
	for i := range seq {
		seq[i] = strconv.Itoa(i)
	}
	s, err := make(alphabet).encode(seq)
	if err != nil {
		t.Fatal(err)
	}
	rs := []rune(s)
	if len(rs) != len(seq) {
		t.Fatalf("encoded %d runes, want %d", len(rs), len(seq))
	}
	seen := make(map[rune]bool)
	for _, r := range rs {
		if r == utf8.RuneError || seen[r] {
			t.Fatalf("rune %U invalid or repeated", r)
		}
		seen[r] = true
	}

	d, err := distances(seq[:3], [][]string{seq[:3], seq[len(seq)-3:]})
	if err != nil {
		t.Fatal(err)
	}
	if d[0] != 0 || d[1] != 3 {
		t.Errorf("distances = %v, want [0 3]", d)
	}
}
