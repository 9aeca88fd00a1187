package heuristics

import (
	"strconv"

	"github.com/logflow/pmcore/pkg/dfg"
	"github.com/logflow/pmcore/pkg/petri"
)

const (
	startMarker = "\x00start"
	endMarker   = "\x00end"
)

// bindings returns the groups of a with the exclusive extras (process start
// or end, self-loop) placed in the first group.
func bindings(groups [][]string, extras ...string) [][]string {
	var ex []string
	for _, e := range extras {
		if e != "" {
			ex = append(ex, e)
		}
	}
	if len(ex) == 0 {
		return groups
	}
	out := make([][]string, 0, len(groups)+1)
	if len(groups) == 0 {
		return append(out, ex)
	}
	first := append(append([]string(nil), groups[0]...), ex...)
	out = append(out, first)
	return append(out, groups[1:]...)
}

// ToPetriNet converts the heuristics net into an accepting Petri net. Every
// binding group of an activity becomes a place, and every retained arc a
// silent transition moving a token from the output group of its source to
// the input group of its target. Start activities are fed from the source
// place and end activities drain into the sink place.
func (h *Net) ToPetriNet() *petri.AcceptingNet {
	n := petri.NewNet("heuristics")
	source := n.AddPlace("source")
	sink := n.AddPlace("sink")

	type slot struct {
		activity string
		other    string
	}
	inPlace := make(map[slot]petri.PlaceID)
	outPlace := make(map[slot]petri.PlaceID)

	for _, a := range h.Alphabet() {
		t := n.AddTransition(a, a)
		self := ""
		if h.HasEdge(a, a) {
			self = a
		}
		start, end := "", ""
		if _, ok := h.Start[a]; ok {
			start = startMarker
		}
		if _, ok := h.End[a]; ok {
			end = endMarker
		}
		for i, grp := range bindings(h.Joins[a], start, self) {
			p := n.AddPlace("in_" + a + "_" + strconv.Itoa(i))
			n.AddInputArc(p, t, 1)
			for _, x := range grp {
				inPlace[slot{a, x}] = p
			}
		}
		for i, grp := range bindings(h.Splits[a], end, self) {
			p := n.AddPlace("out_" + a + "_" + strconv.Itoa(i))
			n.AddOutputArc(t, p, 1)
			for _, x := range grp {
				outPlace[slot{a, x}] = p
			}
		}
	}

	silent := func(name string, from, to petri.PlaceID) {
		t := n.AddTransition(name, "")
		n.AddInputArc(from, t, 1)
		n.AddOutputArc(t, to, 1)
	}
	for _, a := range h.Alphabet() {
		if _, ok := h.Start[a]; ok {
			silent("start->"+a, source, inPlace[slot{a, startMarker}])
		}
	}
	for _, e := range sortedEdges(h.Edges) {
		silent(e.From+"->"+e.To, outPlace[slot{e.From, e.To}], inPlace[slot{e.To, e.From}])
	}
	for _, a := range h.Alphabet() {
		if _, ok := h.End[a]; ok {
			silent(a+"->end", outPlace[slot{a, endMarker}], sink)
		}
	}

	return &petri.AcceptingNet{
		Net:     n,
		Initial: petri.NewMarking(source),
		Final:   petri.NewMarking(sink),
	}
}

func sortedEdges(m map[dfg.Edge]int) []dfg.Edge {
	g := dfg.New()
	for e, w := range m {
		g.Edges[e] = w
	}
	return g.SortedEdges()
}
