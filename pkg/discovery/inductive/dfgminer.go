package inductive

import (
	"github.com/logflow/pmcore/pkg/dfg"
	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/ptree"
)

// DiscoverDFG runs IMd on a directly-follows graph with start and end
// counts. A positive noise threshold filters the graph once up front.
// Empty traces recorded on the graph make the whole model optional.
func DiscoverDFG(g *dfg.Graph, p Parameters) (*ptree.Tree, error) {
	if p.Variant != IMd {
		return nil, errors.InvalidParameter("variant", p.Variant.String(), "graph input requires imd")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.NoiseThreshold > 0 {
		g = g.FilterNoise(p.NoiseThreshold)
	}
	tree := mineDFG(g)
	if g.EmptyTraces > 0 && !tree.IsTau() {
		tree = ptree.Xor(ptree.Tau(), tree)
	}
	return tree, nil
}

func mineDFG(g *dfg.Graph) *ptree.Tree {
	alphabet := g.Alphabet()
	switch len(alphabet) {
	case 0:
		return ptree.Tau()
	case 1:
		a := alphabet[0]
		if g.Follows(a, a) > 0 {
			return ptree.Loop(ptree.Leaf(a), ptree.Tau())
		}
		return ptree.Leaf(a)
	}

	c := findCut(g)
	if c == nil {
		return flower(alphabet)
	}
	children := make([]*ptree.Tree, len(c.parts))
	for i, part := range c.parts {
		sub := subgraph(g, c.op, part)
		child := mineDFG(sub)
		if c.op == ptree.OpSequence && skippable(g, c.parts, i) {
			child = ptree.Xor(child, ptree.Tau())
		}
		children[i] = child
	}
	return build(c.op, children)
}

// subgraph projects g onto a part. Under XOR and PARALLEL the part keeps
// the original start and end activities; under SEQUENCE and LOOP activities
// entered from (left towards) other parts also become start (end) activities.
func subgraph(g *dfg.Graph, op ptree.Operator, part []string) *dfg.Graph {
	keep := toSet(part)
	sub := g.Project(keep)
	if op != ptree.OpSequence && op != ptree.OpLoop {
		return sub
	}
	for e, w := range g.Edges {
		switch {
		case !keep[e.From] && keep[e.To]:
			sub.Start[e.To] += w
		case keep[e.From] && !keep[e.To]:
			sub.End[e.From] += w
		}
	}
	return sub
}

// skippable reports whether parts[i] of a sequence cut can be bypassed: a
// start activity lies after it, an end activity before it, or an edge jumps
// over it.
func skippable(g *dfg.Graph, parts [][]string, i int) bool {
	index := make(map[string]int)
	for k, p := range parts {
		for _, a := range p {
			index[a] = k
		}
	}
	for a := range g.Start {
		if k, ok := index[a]; ok && k > i {
			return true
		}
	}
	for a := range g.End {
		if k, ok := index[a]; ok && k < i {
			return true
		}
	}
	for e := range g.Edges {
		from, ok1 := index[e.From]
		to, ok2 := index[e.To]
		if ok1 && ok2 && from < i && to > i {
			return true
		}
	}
	return false
}
