package footprints

import (
	"reflect"
	"testing"

	"github.com/logflow/pmcore/pkg/dfg"
	"github.com/logflow/pmcore/pkg/eventlog/eventlogtest"
	"github.com/logflow/pmcore/pkg/ptree"
)

func pairs(ps ...string) map[Pair]bool {
	out := make(map[Pair]bool)
	for i := 0; i+1 < len(ps); i += 2 {
		out[Pair{ps[i], ps[i+1]}] = true
	}
	return out
}

func set(xs ...string) map[string]bool {
	out := make(map[string]bool)
	for _, x := range xs {
		out[x] = true
	}
	return out
}

func TestFromSequences(t *testing.T) {
	fp := FromSequences([][]string{{"a", "b", "c"}, {"a", "c", "b"}, {"a", "d"}})

	if want := pairs("a", "b", "a", "c", "a", "d"); !reflect.DeepEqual(fp.Sequence, want) {
		t.Errorf("Sequence = %v, want %v", fp.Sequence, want)
	}
	if want := pairs("b", "c", "c", "b"); !reflect.DeepEqual(fp.Parallel, want) {
		t.Errorf("Parallel = %v, want %v", fp.Parallel, want)
	}
	if !reflect.DeepEqual(fp.Start, set("a")) || !reflect.DeepEqual(fp.End, set("b", "c", "d")) {
		t.Errorf("Start = %v End = %v", fp.Start, fp.End)
	}
	if fp.MinTraceLength != 2 {
		t.Errorf("MinTraceLength = %d, want 2", fp.MinTraceLength)
	}
	if !reflect.DeepEqual(fp.AlwaysHappening, set("a")) {
		t.Errorf("AlwaysHappening = %v, want [a]", fp.AlwaysHappening)
	}
	if !fp.Choice("b", "d") || fp.Choice("b", "c") {
		t.Error("Choice() misclassified pairs")
	}
}

func TestVariantSelfConsistency(t *testing.T) {
	v := []string{"a", "b", "a", "c"}
	single := FromSequences([][]string{v})
	repeated := FromSequences(eventlogtest.RepeatSequences([][]string{v}, []int{5}))
	if !reflect.DeepEqual(single, repeated) {
		t.Errorf("FromSequences(repeated) = %+v, want %+v", repeated, single)
	}
}

func TestFromLogRunningExample(t *testing.T) {
	fp := FromLog(eventlogtest.RunningExample(), "concept:name")
	if !reflect.DeepEqual(fp.Start, set(eventlogtest.Register)) {
		t.Errorf("Start = %v", fp.Start)
	}
	if !reflect.DeepEqual(fp.End, set(eventlogtest.Pay, eventlogtest.Reject)) {
		t.Errorf("End = %v", fp.End)
	}
	if !fp.Parallel[Pair{eventlogtest.ExamineCas, eventlogtest.CheckTicket}] {
		t.Error("examine casually and check ticket not parallel")
	}
	if !fp.Choice(eventlogtest.Pay, eventlogtest.Reject) {
		t.Error("pay and reject not in choice")
	}
	if fp.MinTraceLength != 5 {
		t.Errorf("MinTraceLength = %d, want 5", fp.MinTraceLength)
	}
}

func TestFromTree(t *testing.T) {
	tests := []struct {
		name     string
		tree     *ptree.Tree
		sequence map[Pair]bool
		parallel map[Pair]bool
		start    map[string]bool
		end      map[string]bool
		minLen   int
		always   map[string]bool
	}{
		{
			name:     "parallel",
			tree:     ptree.Seq(ptree.Leaf("a"), ptree.Parallel(ptree.Leaf("b"), ptree.Leaf("c"))),
			sequence: pairs("a", "b", "a", "c"),
			parallel: pairs("b", "c", "c", "b"),
			start:    set("a"),
			end:      set("b", "c"),
			minLen:   3,
			always:   set("a", "b", "c"),
		},
		{
			name:     "optional",
			tree:     ptree.Seq(ptree.Leaf("x"), ptree.Xor(ptree.Leaf("a"), ptree.Tau()), ptree.Leaf("y")),
			sequence: pairs("x", "a", "a", "y", "x", "y"),
			parallel: pairs(),
			start:    set("x"),
			end:      set("y"),
			minLen:   2,
			always:   set("x", "y"),
		},
		{
			name:     "loop",
			tree:     ptree.Loop(ptree.Leaf("a"), ptree.Leaf("b")),
			sequence: pairs(),
			parallel: pairs("a", "b", "b", "a"),
			start:    set("a"),
			end:      set("a"),
			minLen:   1,
			always:   set("a"),
		},
	}
	for _, tt := range tests {
		fp, err := FromTree(tt.tree, 0)
		if err != nil {
			t.Fatalf("%s: FromTree() = %v", tt.name, err)
		}
		if !reflect.DeepEqual(fp.Sequence, tt.sequence) {
			t.Errorf("%s: Sequence = %v, want %v", tt.name, fp.Sequence, tt.sequence)
		}
		if !reflect.DeepEqual(fp.Parallel, tt.parallel) {
			t.Errorf("%s: Parallel = %v, want %v", tt.name, fp.Parallel, tt.parallel)
		}
		if !reflect.DeepEqual(fp.Start, tt.start) || !reflect.DeepEqual(fp.End, tt.end) {
			t.Errorf("%s: Start = %v End = %v", tt.name, fp.Start, fp.End)
		}
		if fp.MinTraceLength != tt.minLen {
			t.Errorf("%s: MinTraceLength = %d, want %d", tt.name, fp.MinTraceLength, tt.minLen)
		}
		if !reflect.DeepEqual(fp.AlwaysHappening, tt.always) {
			t.Errorf("%s: AlwaysHappening = %v, want %v", tt.name, fp.AlwaysHappening, tt.always)
		}
	}
}

func TestCompareMissingParallel(t *testing.T) {
	seqs := [][]string{{"a", "b", "c"}, {"a", "c", "b"}}
	model, err := FromTree(ptree.Seq(ptree.Leaf("a"), ptree.Leaf("b"), ptree.Leaf("c")), 0)
	if err != nil {
		t.Fatal(err)
	}

	d := Compare(FromSequences(seqs), model)
	if want := []Pair{{"a", "c"}, {"c", "b"}}; !reflect.DeepEqual(d.Relations, want) {
		t.Errorf("Relations = %v, want %v", d.Relations, want)
	}
	if !reflect.DeepEqual(d.End, []string{"b"}) {
		t.Errorf("End = %v, want [b]", d.End)
	}
	if d.FootprintsFit() {
		t.Error("FootprintsFit() = true, want false")
	}

	perTrace := CompareTraces(TraceExtensive(seqs), model)
	if !perTrace[0].FootprintsFit() || !perTrace[0].Conforms() {
		t.Errorf("trace 0 deviations = %+v, want none", perTrace[0])
	}
	if perTrace[1].FootprintsFit() {
		t.Error("trace 1 FootprintsFit() = true, want false")
	}
}

func TestCompareTracesAbsentAndLength(t *testing.T) {
	model, err := FromTree(ptree.Seq(ptree.Leaf("a"), ptree.Leaf("b")), 0)
	if err != nil {
		t.Fatal(err)
	}
	d := CompareTraces(TraceExtensive([][]string{{"a"}}), model)[0]
	if !reflect.DeepEqual(d.Absent, []string{"b"}) {
		t.Errorf("Absent = %v, want [b]", d.Absent)
	}
	if d.MinLengthFit {
		t.Error("MinLengthFit = true, want false")
	}
	if !d.FootprintsFit() || d.Conforms() {
		t.Errorf("deviations = %+v", d)
	}
}

func TestFitnessAndPrecision(t *testing.T) {
	model, err := FromTree(ptree.Seq(ptree.Leaf("a"), ptree.Leaf("b"), ptree.Leaf("c")), 0)
	if err != nil {
		t.Fatal(err)
	}
	seqs := eventlogtest.RepeatSequences([][]string{{"a", "b", "c"}, {"a", "c", "b"}}, []int{3, 1})
	if got := Fitness(dfg.FromSequences(seqs), model); got != 0.75 {
		t.Errorf("Fitness() = %v, want 0.75", got)
	}
	if got := Precision(FromSequences(seqs), model); got != 1 {
		t.Errorf("Precision() = %v, want 1", got)
	}
	if got := Fitness(dfg.New(), model); got != 1 {
		t.Errorf("Fitness(empty) = %v, want 1", got)
	}
}

func TestTable(t *testing.T) {
	fp := FromSequences([][]string{{"a", "b"}, {"c"}})
	alphabet, rows := fp.Table()
	if !reflect.DeepEqual(alphabet, []string{"a", "b", "c"}) {
		t.Fatalf("alphabet = %v", alphabet)
	}
	tests := []struct {
		i, j int
		want string
	}{
		{0, 1, "->"},
		{1, 0, "<-"},
		{0, 2, "#"},
		{2, 2, "#"},
	}
	for _, tt := range tests {
		if rows[tt.i][tt.j] != tt.want {
			t.Errorf("rows[%d][%d] = %s, want %s", tt.i, tt.j, rows[tt.i][tt.j], tt.want)
		}
	}
}
