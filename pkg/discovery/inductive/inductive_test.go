package inductive

import (
	"testing"

	"github.com/logflow/pmcore/pkg/dfg"
	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/eventlog"
	"github.com/logflow/pmcore/pkg/eventlog/eventlogtest"
	"github.com/logflow/pmcore/pkg/petri"
	"github.com/logflow/pmcore/pkg/ptree"
)

func mine(t *testing.T, seqs [][]string, p Parameters) *ptree.Tree {
	t.Helper()
	tree, err := Discover(eventlog.FromSequences(seqs), p)
	if err != nil {
		t.Fatalf("Discover() = %v", err)
	}
	return tree
}

func assertTree(t *testing.T, got, want *ptree.Tree) {
	t.Helper()
	if !ptree.Equal(ptree.Sort(got), ptree.Sort(want)) {
		t.Errorf("tree = %s, want %s", ptree.Sort(got), ptree.Sort(want))
	}
}

func TestMinimalXor(t *testing.T) {
	tree := mine(t, [][]string{{"a"}, {"b"}}, DefaultParameters())
	if got := tree.String(); got != "X( 'a', 'b' )" {
		t.Errorf("tree = %s, want X( 'a', 'b' )", got)
	}
	an, err := ptree.ToPetriNet(tree)
	if err != nil {
		t.Fatal(err)
	}
	if an.Net.NumPlaces() != 2 || len(an.Net.Labels()) != 2 {
		t.Errorf("net = %s", an)
	}
}

func TestBaseCases(t *testing.T) {
	a := ptree.Leaf("a")
	tests := []struct {
		name string
		seqs [][]string
		want *ptree.Tree
	}{
		{"empty log", nil, ptree.Tau()},
		{"only empty traces", [][]string{{}, {}}, ptree.Tau()},
		{"single activity", [][]string{{"a"}, {"a"}}, a},
		{"repeated activity", [][]string{{"a"}, {"a", "a"}}, ptree.Loop(a, ptree.Tau())},
		{"optional activity", [][]string{{"a"}, {}}, ptree.Xor(ptree.Tau(), a)},
	}
	for _, tt := range tests {
		got := mine(t, tt.seqs, DefaultParameters())
		if !ptree.Equal(got, tt.want) {
			t.Errorf("%s: tree = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestRunningExample(t *testing.T) {
	l := eventlogtest.RunningExample()
	tree, err := Discover(l, DefaultParameters())
	if err != nil {
		t.Fatal(err)
	}
	want := ptree.Seq(
		ptree.Leaf(eventlogtest.Register),
		ptree.Loop(
			ptree.Seq(
				ptree.Parallel(
					ptree.Leaf(eventlogtest.CheckTicket),
					ptree.Xor(ptree.Leaf(eventlogtest.ExamineCas), ptree.Leaf(eventlogtest.ExamineThor)),
				),
				ptree.Leaf(eventlogtest.Decide),
			),
			ptree.Leaf(eventlogtest.Reinitiate),
		),
		ptree.Xor(ptree.Leaf(eventlogtest.Pay), ptree.Leaf(eventlogtest.Reject)),
	)
	assertTree(t, tree, want)
}

func TestSequenceWithOptionalParts(t *testing.T) {
	seqs := eventlogtest.RepeatSequences([][]string{{"a", "b"}, {"a", "c"}, {"a", "b", "c"}}, []int{20, 20, 1})
	got := mine(t, seqs, DefaultParameters())
	want := ptree.Seq(ptree.Leaf("a"), ptree.Xor(ptree.Tau(), ptree.Leaf("b")), ptree.Xor(ptree.Tau(), ptree.Leaf("c")))
	assertTree(t, got, want)
}

func TestIMfDropsInfrequentEmptyTraces(t *testing.T) {
	seqs := eventlogtest.RepeatSequences([][]string{{"a", "b"}, {"a"}}, []int{20, 1})

	im := mine(t, seqs, DefaultParameters())
	assertTree(t, im, ptree.Seq(ptree.Leaf("a"), ptree.Xor(ptree.Tau(), ptree.Leaf("b"))))

	imf := mine(t, seqs, Parameters{Variant: IMf, NoiseThreshold: 0.2})
	assertTree(t, imf, ptree.Seq(ptree.Leaf("a"), ptree.Leaf("b")))
}

func TestIMfFiltersInfrequentEdges(t *testing.T) {
	seqs := eventlogtest.RepeatSequences([][]string{{"a", "b", "c"}, {"a", "c", "b", "a"}}, []int{20, 1})

	im := mine(t, seqs, DefaultParameters())
	if im.Operator != ptree.OpParallel {
		t.Errorf("IM tree = %s, want a parallel fall-through", im)
	}

	imf := mine(t, seqs, Parameters{Variant: IMf, NoiseThreshold: 0.2})
	assertTree(t, imf, ptree.Seq(ptree.Leaf("a"), ptree.Parallel(ptree.Leaf("b"), ptree.Leaf("c"))))
}

func TestIMdRediscoversPlayout(t *testing.T) {
	trees := []*ptree.Tree{
		ptree.Seq(ptree.Leaf("a"), ptree.Xor(ptree.Leaf("b"), ptree.Leaf("c")), ptree.Parallel(ptree.Leaf("d"), ptree.Leaf("e"))),
		ptree.Seq(ptree.Leaf("a"), ptree.Xor(ptree.Leaf("b"), ptree.Tau()), ptree.Leaf("c")),
		ptree.Seq(ptree.Leaf("a"), ptree.Loop(ptree.Leaf("b"), ptree.Leaf("c")), ptree.Leaf("d")),
	}
	for _, want := range trees {
		traces := ptree.Playout(want, 300, ptree.PlayoutOptions{Seed: 11})
		got, err := DiscoverDFG(dfg.FromSequences(traces), Parameters{Variant: IMd})
		if err != nil {
			t.Fatal(err)
		}
		assertTree(t, got, want)
	}
}

func TestIMdFlower(t *testing.T) {
	g := dfg.FromSequences([][]string{{"a", "b", "c", "a", "b", "c"}})
	got, err := DiscoverDFG(g, Parameters{Variant: IMd})
	if err != nil {
		t.Fatal(err)
	}
	want := ptree.Loop(ptree.Xor(ptree.Leaf("a"), ptree.Leaf("b"), ptree.Leaf("c")), ptree.Tau())
	if !ptree.Equal(got, want) {
		t.Errorf("tree = %s, want %s", got, want)
	}
}

func TestParameters(t *testing.T) {
	tests := []struct {
		name string
		p    Parameters
		code errors.Code
	}{
		{"noise for plain IM", Parameters{Variant: IM, NoiseThreshold: 0.2}, errors.CodeInapplicableParameter},
		{"noise out of range", Parameters{Variant: IMf, NoiseThreshold: 1.5}, errors.CodeInvalidParameter},
		{"unknown variant", Parameters{Variant: Variant(9)}, errors.CodeInvalidParameter},
	}
	for _, tt := range tests {
		if _, err := Discover(eventlog.New(), tt.p); !errors.IsCode(err, tt.code) {
			t.Errorf("%s: error = %v, want %s", tt.name, err, tt.code)
		}
	}
	if _, err := DiscoverDFG(dfg.New(), Parameters{Variant: IM}); !errors.IsCode(err, errors.CodeInvalidParameter) {
		t.Errorf("DiscoverDFG(IM) error = %v, want %s", err, errors.CodeInvalidParameter)
	}
	if v, err := ParseVariant("imf"); err != nil || v != IMf {
		t.Errorf("ParseVariant(imf) = %v, %v", v, err)
	}
}

func TestDiscoveredTreesAreEasySound(t *testing.T) {
	logs := [][][]string{
		eventlogtest.RunningExampleSequences(),
		{{"a", "b", "c", "d"}, {"a", "c", "b", "d"}, {"a", "e", "d"}, {"a", "b", "c", "b", "c", "d"}},
		{{"x", "y"}, {"y", "x", "x"}, {"z"}, {}},
	}
	for _, variant := range []Variant{IM, IMf, IMd} {
		p := Parameters{Variant: variant}
		if variant != IM {
			p.NoiseThreshold = 0.1
		}
		for _, seqs := range logs {
			an, tree, err := DiscoverNet(eventlog.FromSequences(seqs), p)
			if err != nil {
				t.Fatalf("%s: DiscoverNet() = %v", variant, err)
			}
			if !petri.IsEasySound(an, 0) {
				t.Errorf("%s: net of %s is not easy sound", variant, tree)
			}
		}
	}
}
