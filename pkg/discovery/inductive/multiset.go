package inductive

import (
	"sort"

	"github.com/logflow/pmcore/pkg/dfg"
	"github.com/logflow/pmcore/pkg/eventlog"
	"github.com/logflow/pmcore/pkg/ptree"
)

// trace is an activity sequence with its multiplicity.
type trace struct {
	acts  []string
	count int
}

// multiset is a log as a bag of activity sequences, one entry per
// distinct sequence in first-occurrence order.
type multiset []trace

func fromVariants(v *eventlog.Variants) multiset {
	out := make(multiset, 0, v.Len())
	for _, g := range v.Groups() {
		out = append(out, trace{acts: g.Activities, count: g.Count()})
	}
	return out
}

// compact merges entries with identical sequences.
func compact(traces []trace) multiset {
	index := make(map[string]int)
	var out multiset
	for _, t := range traces {
		if t.count <= 0 {
			continue
		}
		key := eventlog.VariantKey(t.acts)
		if i, ok := index[key]; ok {
			out[i].count += t.count
			continue
		}
		index[key] = len(out)
		out = append(out, t)
	}
	return out
}

func (m multiset) total() int {
	n := 0
	for _, t := range m {
		n += t.count
	}
	return n
}

func (m multiset) emptyCount() int {
	n := 0
	for _, t := range m {
		if len(t.acts) == 0 {
			n += t.count
		}
	}
	return n
}

func (m multiset) withoutEmpty() multiset {
	out := make(multiset, 0, len(m))
	for _, t := range m {
		if len(t.acts) > 0 {
			out = append(out, t)
		}
	}
	return out
}

func (m multiset) alphabet() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range m {
		for _, a := range t.acts {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	sort.Strings(out)
	return out
}

func (m multiset) dfg() *dfg.Graph {
	g := dfg.New()
	for _, t := range m {
		g.AddSequence(t.acts, t.count)
	}
	return g
}

// project keeps only the activities in keep; traces may become empty.
func (m multiset) project(keep map[string]bool) multiset {
	out := make([]trace, 0, len(m))
	for _, t := range m {
		var acts []string
		for _, a := range t.acts {
			if keep[a] {
				acts = append(acts, a)
			}
		}
		out = append(out, trace{acts: acts, count: t.count})
	}
	return compact(out)
}

func (m multiset) without(activity string) multiset {
	keep := make(map[string]bool)
	for _, a := range m.alphabet() {
		if a != activity {
			keep[a] = true
		}
	}
	return m.project(keep)
}

func (m multiset) split(c *cut) []multiset {
	partOf := c.partOf()
	subs := make([][]trace, len(c.parts))
	for _, t := range m {
		if c.op == ptree.OpLoop {
			for _, lt := range splitLoop(t.acts, partOf) {
				subs[lt.part] = append(subs[lt.part], trace{acts: lt.acts, count: t.count})
			}
			continue
		}
		var pieces [][]string
		switch c.op {
		case ptree.OpXor:
			pieces = splitXor(t.acts, partOf, len(c.parts))
		case ptree.OpSequence:
			pieces = splitSequence(t.acts, partOf, len(c.parts))
		case ptree.OpParallel:
			pieces = splitParallel(t.acts, partOf, len(c.parts))
		}
		for i, p := range pieces {
			if p != nil {
				subs[i] = append(subs[i], trace{acts: p, count: t.count})
			}
		}
	}
	out := make([]multiset, len(subs))
	for i, s := range subs {
		out[i] = compact(s)
	}
	return out
}

// splitXor assigns the trace to the part holding most of its events and
// drops the other events. Other parts get no trace (nil).
func splitXor(acts []string, partOf map[string]int, n int) [][]string {
	counts := make([]int, n)
	for _, a := range acts {
		counts[partOf[a]]++
	}
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	out := make([][]string, n)
	out[best] = []string{}
	for _, a := range acts {
		if partOf[a] == best {
			out[best] = append(out[best], a)
		}
	}
	return out
}

// splitSequence cuts the trace into one segment per part. Each split point
// minimizes the events on the wrong side of it; segments are then projected
// onto their part.
func splitSequence(acts []string, partOf map[string]int, n int) [][]string {
	out := make([][]string, n)
	pos := 0
	for i := 0; i < n; i++ {
		end := len(acts)
		if i < n-1 {
			end = splitPoint(acts, pos, i, partOf)
		}
		seg := []string{}
		for _, a := range acts[pos:end] {
			if partOf[a] == i {
				seg = append(seg, a)
			}
		}
		out[i] = seg
		pos = end
	}
	return out
}

func splitPoint(acts []string, from, part int, partOf map[string]int) int {
	// cost(p) = later-part events before p + part events after p
	cost := 0
	for _, a := range acts[from:] {
		if partOf[a] == part {
			cost++
		}
	}
	best, bestCost := from, cost
	for p := from; p < len(acts); p++ {
		switch q := partOf[acts[p]]; {
		case q == part:
			cost--
		case q > part:
			cost++
		}
		if cost < bestCost {
			best, bestCost = p+1, cost
		}
	}
	return best
}

func splitParallel(acts []string, partOf map[string]int, n int) [][]string {
	out := make([][]string, n)
	for i := range out {
		out[i] = []string{}
	}
	for _, a := range acts {
		out[partOf[a]] = append(out[partOf[a]], a)
	}
	return out
}

type loopTrace struct {
	part int
	acts []string
}

// splitLoop cuts the trace into maximal same-part segments. An empty do
// execution is inserted where the trace starts or ends in a redo part or
// two redo segments touch.
func splitLoop(acts []string, partOf map[string]int) []loopTrace {
	var out []loopTrace
	if len(acts) == 0 {
		return out
	}
	emptyDo := loopTrace{part: 0, acts: []string{}}
	cur := partOf[acts[0]]
	if cur != 0 {
		out = append(out, emptyDo)
	}
	seg := []string{acts[0]}
	for _, a := range acts[1:] {
		p := partOf[a]
		if p == cur {
			seg = append(seg, a)
			continue
		}
		out = append(out, loopTrace{part: cur, acts: seg})
		if cur != 0 && p != 0 {
			out = append(out, emptyDo)
		}
		cur, seg = p, []string{a}
	}
	out = append(out, loopTrace{part: cur, acts: seg})
	if cur != 0 {
		out = append(out, emptyDo)
	}
	return out
}
