package inductive

import (
	"github.com/logflow/pmcore/pkg/dfg"
	"github.com/logflow/pmcore/pkg/eventlog"
	"github.com/logflow/pmcore/pkg/petri"
	"github.com/logflow/pmcore/pkg/ptree"
)

// Discover mines a process tree from a log. IMd mines the log's
// directly-follows graph.
func Discover(l *eventlog.EventLog, p Parameters) (*ptree.Tree, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	variants := eventlog.GetVariants(l, p.activityKey())
	if p.Variant == IMd {
		return DiscoverDFG(dfg.FromVariants(variants), p)
	}
	m := &logMiner{noise: p.NoiseThreshold}
	return m.mine(fromVariants(variants)), nil
}

// DiscoverNet mines a tree and translates it into a workflow net.
func DiscoverNet(l *eventlog.EventLog, p Parameters) (*petri.AcceptingNet, *ptree.Tree, error) {
	tree, err := Discover(l, p)
	if err != nil {
		return nil, nil, err
	}
	an, err := ptree.ToPetriNet(tree)
	if err != nil {
		return nil, nil, err
	}
	return an, tree, nil
}

type logMiner struct {
	noise float64
}

func (lm *logMiner) infrequent(count, total int) bool {
	return lm.noise > 0 && float64(count) < lm.noise*float64(total)
}

func (lm *logMiner) mine(m multiset) *ptree.Tree {
	alphabet := m.alphabet()
	if len(alphabet) == 0 {
		return ptree.Tau()
	}
	if empty := m.emptyCount(); empty > 0 {
		if !lm.infrequent(empty, m.total()) {
			return ptree.Xor(ptree.Tau(), lm.mine(m.withoutEmpty()))
		}
		m = m.withoutEmpty()
	}
	if len(alphabet) == 1 {
		return lm.singleActivity(m, alphabet[0])
	}

	g := m.dfg()
	c := findCut(g)
	if c == nil && lm.noise > 0 {
		c = findCut(g.FilterNoise(lm.noise))
	}
	if c != nil {
		subs := m.split(c)
		children := make([]*ptree.Tree, len(subs))
		for i, sub := range subs {
			children[i] = lm.mine(sub)
		}
		return build(c.op, children)
	}
	return lm.fallThrough(m, g, alphabet)
}

// singleActivity handles logs over one activity: a leaf when every trace
// holds it once, otherwise a loop. IMf ignores infrequent repetitions.
func (lm *logMiner) singleActivity(m multiset, a string) *ptree.Tree {
	repeated := 0
	for _, t := range m {
		if len(t.acts) != 1 {
			repeated += t.count
		}
	}
	if repeated == 0 || lm.infrequent(repeated, m.total()) {
		return ptree.Leaf(a)
	}
	return ptree.Loop(ptree.Leaf(a), ptree.Tau())
}

// fallThrough applies, in order: activity once per trace, activity
// concurrent, strict tau loop, tau loop and finally the flower model.
func (lm *logMiner) fallThrough(m multiset, g *dfg.Graph, alphabet []string) *ptree.Tree {
	for _, a := range alphabet {
		if onceEveryTrace(m, a) {
			return ptree.Parallel(ptree.Leaf(a), lm.mine(m.without(a)))
		}
	}
	for _, a := range alphabet {
		rest := m.without(a)
		if findCut(rest.dfg()) != nil {
			return ptree.Parallel(lm.mine(m.project(map[string]bool{a: true})), lm.mine(rest))
		}
	}
	if split, ok := splitTraces(m, func(prev, next string) bool {
		return g.End[prev] > 0 && g.Start[next] > 0
	}); ok {
		return ptree.Loop(lm.mine(split), ptree.Tau())
	}
	if split, ok := splitTraces(m, func(_, next string) bool {
		return g.Start[next] > 0
	}); ok {
		return ptree.Loop(lm.mine(split), ptree.Tau())
	}
	return flower(alphabet)
}

func onceEveryTrace(m multiset, a string) bool {
	for _, t := range m {
		n := 0
		for _, x := range t.acts {
			if x == a {
				n++
			}
		}
		if n != 1 {
			return false
		}
	}
	return true
}

// splitTraces cuts traces between adjacent events where at(prev, next)
// holds. ok is false when no trace was cut.
func splitTraces(m multiset, at func(prev, next string) bool) (multiset, bool) {
	var out []trace
	cut := false
	for _, t := range m {
		start := 0
		for i := 1; i < len(t.acts); i++ {
			if at(t.acts[i-1], t.acts[i]) {
				out = append(out, trace{acts: t.acts[start:i], count: t.count})
				start = i
				cut = true
			}
		}
		out = append(out, trace{acts: t.acts[start:], count: t.count})
	}
	return compact(out), cut
}

func build(op ptree.Operator, children []*ptree.Tree) *ptree.Tree {
	if op == ptree.OpLoop {
		if len(children) == 2 {
			return ptree.Loop(children[0], children[1])
		}
		return ptree.Loop(children[0], ptree.Xor(children[1:]...))
	}
	return &ptree.Tree{Operator: op, Children: children}
}

// flower accepts every non-empty sequence over the alphabet.
func flower(alphabet []string) *ptree.Tree {
	if len(alphabet) == 1 {
		return ptree.Loop(ptree.Leaf(alphabet[0]), ptree.Tau())
	}
	leaves := make([]*ptree.Tree, len(alphabet))
	for i, a := range alphabet {
		leaves[i] = ptree.Leaf(a)
	}
	return ptree.Loop(ptree.Xor(leaves...), ptree.Tau())
}
