package footprints

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/logflow/pmcore/pkg/dfg"
	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/petri"
	"github.com/logflow/pmcore/pkg/ptree"
)

// FromTree computes the footprints of the language of a process tree.
func FromTree(t *ptree.Tree, maxStates int) (*Footprints, error) {
	an, err := ptree.ToPetriNet(t)
	if err != nil {
		return nil, err
	}
	return FromNet(an, maxStates)
}

// FromNet computes the footprints of the language of an accepting net: the
// visible label sequences of firing sequences from the initial to the final
// marking. Silent transitions are skipped over, so a -> tau -> b yields the
// pair (a, b). Only states that can still reach the final marking count.
func FromNet(an *petri.AcceptingNet, maxStates int) (*Footprints, error) {
	rg, err := petri.BuildReachabilityGraph(an, maxStates)
	if err != nil {
		return nil, err
	}
	final, ok := rg.StateOf(an.Final)
	if !ok {
		return nil, errors.New(errors.CodeNotEasySound, "final marking not reachable").
			WithContext("final", an.Final.Format(an.Net))
	}
	targets := roaring.New()
	targets.Add(uint32(final))
	w := &stateWalker{
		an:      an,
		rg:      rg,
		good:    rg.CanReach(targets),
		final:   final,
		closure: make(map[int][]int),
	}

	g := dfg.New()
	for s, edges := range rg.Edges {
		if !w.good.Contains(uint32(s)) {
			continue
		}
		for _, e := range edges {
			label, visible := w.label(e)
			if !visible || !w.good.Contains(uint32(e.Target)) {
				continue
			}
			g.Activities[label] = 1
			for next := range w.visibleAfter(e.Target) {
				g.Edges[dfg.Edge{From: label, To: next}] = 1
			}
			if w.silentlyReachesFinal(e.Target) {
				g.End[label] = 1
			}
		}
	}
	for a := range w.visibleAfter(0) {
		g.Start[a] = 1
	}

	fp := FromDFG(g)
	fp.MinTraceLength = w.minVisibleLength()
	for a := range fp.Activities {
		if !w.finalReachableWithout(a) {
			fp.AlwaysHappening[a] = true
		}
	}
	return fp, nil
}

type stateWalker struct {
	an      *petri.AcceptingNet
	rg      *petri.ReachabilityGraph
	good    *roaring.Bitmap
	final   int
	closure map[int][]int
}

func (w *stateWalker) label(e petri.Edge) (string, bool) {
	tr := w.an.Net.Transition(e.Transition)
	return tr.Label, !tr.IsSilent()
}

// silentClosure returns the good states reachable from s through silent
// transitions only, s included.
func (w *stateWalker) silentClosure(s int) []int {
	if c, ok := w.closure[s]; ok {
		return c
	}
	seen := map[int]bool{s: true}
	out := []int{s}
	for i := 0; i < len(out); i++ {
		for _, e := range w.rg.Edges[out[i]] {
			if _, visible := w.label(e); visible || seen[e.Target] || !w.good.Contains(uint32(e.Target)) {
				continue
			}
			seen[e.Target] = true
			out = append(out, e.Target)
		}
	}
	w.closure[s] = out
	return out
}

func (w *stateWalker) visibleAfter(s int) map[string]bool {
	out := make(map[string]bool)
	for _, u := range w.silentClosure(s) {
		for _, e := range w.rg.Edges[u] {
			if label, visible := w.label(e); visible && w.good.Contains(uint32(e.Target)) {
				out[label] = true
			}
		}
	}
	return out
}

func (w *stateWalker) silentlyReachesFinal(s int) bool {
	for _, u := range w.silentClosure(s) {
		if u == w.final {
			return true
		}
	}
	return false
}

// minVisibleLength runs a 0-1 BFS where visible edges cost 1.
func (w *stateWalker) minVisibleLength() int {
	dist := make([]int, len(w.rg.States))
	for i := range dist {
		dist[i] = -1
	}
	dist[0] = 0
	deque := []int{0}
	for len(deque) > 0 {
		s := deque[0]
		deque = deque[1:]
		for _, e := range w.rg.Edges[s] {
			_, visible := w.label(e)
			d := dist[s]
			if visible {
				d++
			}
			if dist[e.Target] >= 0 && dist[e.Target] <= d {
				continue
			}
			dist[e.Target] = d
			if visible {
				deque = append(deque, e.Target)
			} else {
				deque = append([]int{e.Target}, deque...)
			}
		}
	}
	return dist[w.final]
}

func (w *stateWalker) finalReachableWithout(activity string) bool {
	seen := make([]bool, len(w.rg.States))
	seen[0] = true
	queue := []int{0}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		if s == w.final {
			return true
		}
		for _, e := range w.rg.Edges[s] {
			if label, visible := w.label(e); visible && label == activity {
				continue
			}
			if !seen[e.Target] {
				seen[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
	return false
}
