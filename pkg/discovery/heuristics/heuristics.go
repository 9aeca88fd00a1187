package heuristics

import (
	"sort"

	"github.com/logflow/pmcore/pkg/dfg"
	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/eventlog"
)

// Net is a heuristics net: a dependency graph whose activities carry
// split and join bindings.
type Net struct {
	Activities map[string]int
	Start      map[string]int
	End        map[string]int
	// Dependency holds the dependency measure of every observed pair.
	Dependency map[dfg.Edge]float64
	// Edges holds the retained arcs with their directly-follows frequency.
	Edges map[dfg.Edge]int
	// LoopsTwo lists the accepted length-two loops, smaller activity first.
	LoopsTwo []dfg.Edge
	// Splits partitions the outputs of each activity into exclusive groups;
	// different groups are activated together.
	Splits map[string][][]string
	// Joins partitions the inputs the same way.
	Joins map[string][][]string
}

// HasEdge reports whether a -> b was retained.
func (h *Net) HasEdge(a, b string) bool {
	_, ok := h.Edges[dfg.Edge{From: a, To: b}]
	return ok
}

// Alphabet returns the activities in sorted order.
func (h *Net) Alphabet() []string {
	out := make([]string, 0, len(h.Activities))
	for a := range h.Activities {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Outputs returns the retained successors of a, self-loops excluded.
func (h *Net) Outputs(a string) []string {
	var out []string
	for e := range h.Edges {
		if e.From == a && e.To != a {
			out = append(out, e.To)
		}
	}
	sort.Strings(out)
	return out
}

// Inputs returns the retained predecessors of a, self-loops excluded.
func (h *Net) Inputs(a string) []string {
	var out []string
	for e := range h.Edges {
		if e.To == a && e.From != a {
			out = append(out, e.From)
		}
	}
	sort.Strings(out)
	return out
}

// Discover mines a heuristics net from the activity sequences of a log.
func Discover(l *eventlog.EventLog, p Parameters) (*Net, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	v := eventlog.GetVariants(l, p.keys().Activity)
	c := newCounts()
	for _, g := range v.Groups() {
		c.addSequence(g.Activities, g.Count())
	}
	return c.mine(p)
}

// DiscoverSequences mines a heuristics net from activity sequences.
func DiscoverSequences(seqs [][]string, p Parameters) (*Net, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	c := newCounts()
	for _, s := range seqs {
		c.addSequence(s, 1)
	}
	return c.mine(p)
}

// counts gathers the frequencies the measures are computed from.
type counts struct {
	g       *dfg.Graph
	twoLoop map[dfg.Edge]int
	// overlap is symmetric; both directions are stored.
	overlap map[dfg.Edge]float64
}

func newCounts() *counts {
	return &counts{
		g:       dfg.New(),
		twoLoop: make(map[dfg.Edge]int),
		overlap: make(map[dfg.Edge]float64),
	}
}

func (c *counts) addSequence(seq []string, n int) {
	c.g.AddSequence(seq, n)
	for i := 2; i < len(seq); i++ {
		if seq[i-2] == seq[i] && seq[i-1] != seq[i] {
			c.twoLoop[dfg.Edge{From: seq[i-2], To: seq[i-1]}] += n
		}
	}
}

func (c *counts) follows(a, b string) float64 {
	return float64(c.g.Follows(a, b))
}

func (c *counts) ov(a, b string) float64 {
	return c.overlap[dfg.Edge{From: a, To: b}]
}

// dependency is (|a>b| - |b>a|) / (|a>b| + |b>a| + 1), with overlapping
// executions added to the denominator; a self-loop scores |a>a| / (|a>a| + 1).
func (c *counts) dependency(a, b string) float64 {
	ab := c.follows(a, b)
	if a == b {
		return ab / (ab + 1)
	}
	ba := c.follows(b, a)
	return (ab - ba) / (ab + ba + c.ov(a, b) + 1)
}

func (c *counts) loopTwo(a, b string) float64 {
	n := float64(c.twoLoop[dfg.Edge{From: a, To: b}] + c.twoLoop[dfg.Edge{From: b, To: a}])
	return n / (n + 1)
}

// splitAnd scores b and c as concurrent outputs of a.
func (c *counts) splitAnd(a, b, d string) float64 {
	return (c.follows(b, d) + c.follows(d, b) + 2*c.ov(b, d)) / (c.follows(a, b) + c.follows(a, d) + 1)
}

// joinAnd scores b and c as concurrent inputs of a.
func (c *counts) joinAnd(a, b, d string) float64 {
	return (c.follows(b, d) + c.follows(d, b) + 2*c.ov(b, d)) / (c.follows(b, a) + c.follows(d, a) + 1)
}

func (c *counts) mine(p Parameters) (*Net, error) {
	acts := c.g.Alphabet()
	if len(acts) == 0 {
		return nil, errors.New(errors.CodeNoActivities, "log has no activities")
	}
	h := &Net{
		Activities: c.g.Activities,
		Start:      c.g.Start,
		End:        c.g.End,
		Dependency: make(map[dfg.Edge]float64),
		Edges:      make(map[dfg.Edge]int),
		Splits:     make(map[string][][]string),
		Joins:      make(map[string][][]string),
	}

	for _, e := range c.g.SortedEdges() {
		d := c.dependency(e.From, e.To)
		h.Dependency[e] = d
		if d >= p.DependencyThreshold && c.g.Edges[e] >= p.MinDFGOccurrences {
			h.Edges[e] = c.g.Edges[e]
		}
	}

	selfLoop := func(a string) bool { return h.HasEdge(a, a) }
	var pairs []dfg.Edge
	for e := range c.twoLoop {
		if e.From > e.To {
			e = dfg.Edge{From: e.To, To: e.From}
		}
		pairs = append(pairs, e)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].From != pairs[j].From {
			return pairs[i].From < pairs[j].From
		}
		return pairs[i].To < pairs[j].To
	})
	for i, e := range pairs {
		if i > 0 && pairs[i-1] == e {
			continue
		}
		if selfLoop(e.From) || selfLoop(e.To) || c.loopTwo(e.From, e.To) < p.LoopTwoThreshold {
			continue
		}
		back := dfg.Edge{From: e.To, To: e.From}
		h.Edges[e] = c.g.Edges[e]
		h.Edges[back] = c.g.Edges[back]
		h.LoopsTwo = append(h.LoopsTwo, e)
	}

	if p.AllConnected {
		for _, a := range acts {
			if _, ok := h.Start[a]; !ok && len(h.Inputs(a)) == 0 {
				if best, ok := bestBy(c.g.Predecessors(a), a, func(x string) float64 { return c.dependency(x, a) }); ok {
					h.Edges[dfg.Edge{From: best, To: a}] = c.g.Edges[dfg.Edge{From: best, To: a}]
				}
			}
			if _, ok := h.End[a]; !ok && len(h.Outputs(a)) == 0 {
				if best, ok := bestBy(c.g.Successors(a), a, func(x string) float64 { return c.dependency(a, x) }); ok {
					h.Edges[dfg.Edge{From: a, To: best}] = c.g.Edges[dfg.Edge{From: a, To: best}]
				}
			}
		}
	}

	for _, a := range acts {
		outs := h.Outputs(a)
		h.Splits[a] = group(outs, func(x, y string) bool { return c.splitAnd(a, x, y) >= p.AndThreshold })
		ins := h.Inputs(a)
		h.Joins[a] = group(ins, func(x, y string) bool { return c.joinAnd(a, x, y) >= p.AndThreshold })
	}
	return h, nil
}

// bestBy returns the candidate other than self with the highest score,
// the first one on ties.
func bestBy(candidates []string, self string, score func(string) float64) (string, bool) {
	best, found := "", false
	var top float64
	for _, x := range candidates {
		if x == self {
			continue
		}
		if s := score(x); !found || s > top {
			best, top, found = x, s, true
		}
	}
	return best, found
}

// group partitions activities into exclusive groups: two activities share
// a group when they are linked through a chain of pairs that are not
// concurrent.
func group(acts []string, and func(x, y string) bool) [][]string {
	if len(acts) == 0 {
		return nil
	}
	parent := make([]int, len(acts))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i := range acts {
		for j := i + 1; j < len(acts); j++ {
			if !and(acts[i], acts[j]) {
				if ri, rj := find(i), find(j); ri != rj {
					parent[rj] = ri
				}
			}
		}
	}
	byRoot := make(map[int]int)
	var out [][]string
	for i, a := range acts {
		r := find(i)
		k, ok := byRoot[r]
		if !ok {
			k = len(out)
			byRoot[r] = k
			out = append(out, nil)
		}
		out[k] = append(out[k], a)
	}
	return out
}
