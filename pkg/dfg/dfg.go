// Package dfg computes directly-follows graphs with start and end activity
// counts.
package dfg

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"

	"github.com/logflow/pmcore/pkg/eventlog"
)

// Edge is an ordered activity pair.
type Edge struct {
	From string
	To   string
}

// Graph is a directly-follows graph. Edge weights count adjacent
// occurrences across all traces.
type Graph struct {
	Edges      map[Edge]int
	Start      map[string]int
	End        map[string]int
	Activities map[string]int
	// Traces counts the sequences the graph was built from, empty ones included.
	Traces int
	// EmptyTraces counts empty sequences.
	EmptyTraces int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		Edges:      make(map[Edge]int),
		Start:      make(map[string]int),
		End:        make(map[string]int),
		Activities: make(map[string]int),
	}
}

// Discover builds the DFG of a log.
func Discover(l *eventlog.EventLog, activityKey string) *Graph {
	g := New()
	for _, t := range l.Traces {
		g.AddSequence(t.Activities(activityKey), 1)
	}
	return g
}

// FromSequences builds the DFG of activity sequences.
func FromSequences(seqs [][]string) *Graph {
	g := New()
	for _, s := range seqs {
		g.AddSequence(s, 1)
	}
	return g
}

// FromVariants builds the DFG from variant groups, weighting each variant by
// its frequency.
func FromVariants(v *eventlog.Variants) *Graph {
	g := New()
	for _, grp := range v.Groups() {
		g.AddSequence(grp.Activities, grp.Count())
	}
	return g
}

// AddSequence adds count occurrences of one sequence.
func (g *Graph) AddSequence(seq []string, count int) {
	g.Traces += count
	if len(seq) == 0 {
		g.EmptyTraces += count
		return
	}
	g.Start[seq[0]] += count
	g.End[seq[len(seq)-1]] += count
	for i, a := range seq {
		g.Activities[a] += count
		if i > 0 {
			g.Edges[Edge{seq[i-1], a}] += count
		}
	}
}

// Alphabet returns the sorted activity set.
func (g *Graph) Alphabet() []string {
	out := make([]string, 0, len(g.Activities))
	for a := range g.Activities {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// SortedEdges returns the edges ordered by source then target.
func (g *Graph) SortedEdges() []Edge {
	out := make([]Edge, 0, len(g.Edges))
	for e := range g.Edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Follows returns the weight of a->b.
func (g *Graph) Follows(a, b string) int {
	return g.Edges[Edge{a, b}]
}

// Successors returns the targets of a's outgoing edges.
func (g *Graph) Successors(a string) []string {
	var out []string
	for e := range g.Edges {
		if e.From == a {
			out = append(out, e.To)
		}
	}
	sort.Strings(out)
	return out
}

// Predecessors returns the sources of a's incoming edges.
func (g *Graph) Predecessors(a string) []string {
	var out []string
	for e := range g.Edges {
		if e.To == a {
			out = append(out, e.From)
		}
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy.
func (g *Graph) Clone() *Graph {
	out := New()
	for e, c := range g.Edges {
		out.Edges[e] = c
	}
	for a, c := range g.Start {
		out.Start[a] = c
	}
	for a, c := range g.End {
		out.End[a] = c
	}
	for a, c := range g.Activities {
		out.Activities[a] = c
	}
	out.Traces = g.Traces
	out.EmptyTraces = g.EmptyTraces
	return out
}

// Project restricts the graph to an activity subset. Edges leaving or
// entering the subset are dropped; start and end counts are kept only for
// retained activities.
func (g *Graph) Project(keep map[string]bool) *Graph {
	out := New()
	out.Traces = g.Traces
	out.EmptyTraces = g.EmptyTraces
	for e, c := range g.Edges {
		if keep[e.From] && keep[e.To] {
			out.Edges[e] = c
		}
	}
	for a, c := range g.Activities {
		if keep[a] {
			out.Activities[a] = c
		}
	}
	for a, c := range g.Start {
		if keep[a] {
			out.Start[a] = c
		}
	}
	for a, c := range g.End {
		if keep[a] {
			out.End[a] = c
		}
	}
	return out
}

// FilterNoise removes infrequent behavior: an edge a->b is dropped when its
// weight is below threshold times the strongest outgoing edge of a, and a
// start or end activity is dropped when its count is below threshold times
// the largest start or end count. Threshold 0 keeps everything.
func (g *Graph) FilterNoise(threshold float64) *Graph {
	out := g.Clone()
	if threshold <= 0 {
		return out
	}
	maxOut := make(map[string]int)
	for e, c := range g.Edges {
		if c > maxOut[e.From] {
			maxOut[e.From] = c
		}
	}
	for e, c := range g.Edges {
		if float64(c) < threshold*float64(maxOut[e.From]) {
			delete(out.Edges, e)
		}
	}
	filterCounts(out.Start, threshold)
	filterCounts(out.End, threshold)
	return out
}

func filterCounts(m map[string]int, threshold float64) {
	top := 0
	for _, c := range m {
		if c > top {
			top = c
		}
	}
	for a, c := range m {
		if float64(c) < threshold*float64(top) {
			delete(m, a)
		}
	}
}

// FilterMinOccurrences drops edges seen fewer than n times.
func (g *Graph) FilterMinOccurrences(n int) *Graph {
	out := g.Clone()
	for e, c := range g.Edges {
		if c < n {
			delete(out.Edges, e)
		}
	}
	return out
}

// Directed returns the graph as a gonum directed graph with node IDs indexing
// the returned alphabet. Self-loops are omitted.
func (g *Graph) Directed() (*simple.DirectedGraph, []string) {
	alphabet := g.Alphabet()
	index := make(map[string]int64, len(alphabet))
	dg := simple.NewDirectedGraph()
	for i, a := range alphabet {
		index[a] = int64(i)
		dg.AddNode(simple.Node(i))
	}
	for e := range g.Edges {
		if e.From == e.To {
			continue
		}
		from, ok1 := index[e.From]
		to, ok2 := index[e.To]
		if !ok1 || !ok2 {
			continue
		}
		dg.SetEdge(dg.NewEdge(simple.Node(from), simple.Node(to)))
	}
	return dg, alphabet
}
