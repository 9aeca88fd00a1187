package petri

import (
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/logflow/pmcore/pkg/errors"
)

// PlaceNode and TransitionNode map net nodes to graph node IDs: places keep
// their handle, transitions are offset by the number of places.
func (n *Net) PlaceNode(p PlaceID) int64 { return int64(p) }

// TransitionNode returns the graph node ID of t.
func (n *Net) TransitionNode(t TransitionID) int64 { return int64(len(n.places)) + int64(t) }

// Graph returns the flow relation as a directed graph over places and
// transitions. With reverse set, every edge is flipped.
func (n *Net) Graph(reverse bool) *simple.DirectedGraph {
	g := simple.NewDirectedGraph()
	for i := range n.places {
		g.AddNode(simple.Node(n.PlaceNode(PlaceID(i))))
	}
	for i := range n.transitions {
		g.AddNode(simple.Node(n.TransitionNode(TransitionID(i))))
	}
	for _, a := range n.arcs {
		from, to := n.PlaceNode(a.Place), n.TransitionNode(a.Transition)
		if !a.Input {
			from, to = to, from
		}
		if reverse {
			from, to = to, from
		}
		g.SetEdge(g.NewEdge(g.Node(from), g.Node(to)))
	}
	return g
}

// StronglyConnectedComponents returns the number of SCCs of the flow graph.
func (n *Net) StronglyConnectedComponents() int {
	return len(topo.TarjanSCC(n.Graph(false)))
}

func reachableFrom(g graph.Directed, from int64) map[int64]bool {
	seen := make(map[int64]bool)
	bf := traverse.BreadthFirst{
		Visit: func(v graph.Node) { seen[v.ID()] = true },
	}
	bf.Walk(g, g.Node(from), nil)
	return seen
}

// CheckWorkflowNet verifies the workflow-net structure: exactly one source
// place without producers, exactly one sink place without consumers, and
// every node on a path from source to sink.
func (n *Net) CheckWorkflowNet() (source, sink PlaceID, err error) {
	source, sink = -1, -1
	for _, p := range n.places {
		if len(n.producers[p.ID]) == 0 {
			if source >= 0 {
				return -1, -1, errors.New(errors.CodeNotWorkflowNet, "more than one source place").
					WithContext("places", []string{n.places[source].Name, p.Name})
			}
			source = p.ID
		}
		if len(n.consumers[p.ID]) == 0 {
			if sink >= 0 {
				return -1, -1, errors.New(errors.CodeNotWorkflowNet, "more than one sink place").
					WithContext("places", []string{n.places[sink].Name, p.Name})
			}
			sink = p.ID
		}
	}
	if source < 0 || sink < 0 {
		return -1, -1, errors.New(errors.CodeNotWorkflowNet, "no source or no sink place")
	}

	fwd := reachableFrom(n.Graph(false), n.PlaceNode(source))
	bwd := reachableFrom(n.Graph(true), n.PlaceNode(sink))
	for _, p := range n.places {
		if id := n.PlaceNode(p.ID); !fwd[id] || !bwd[id] {
			return -1, -1, errors.New(errors.CodeNotWorkflowNet, "place not on a source-sink path").
				WithContext("place", p.Name)
		}
	}
	for _, t := range n.transitions {
		if id := n.TransitionNode(t.ID); !fwd[id] || !bwd[id] {
			return -1, -1, errors.New(errors.CodeNotWorkflowNet, "transition not on a source-sink path").
				WithContext("transition", t.Name)
		}
	}
	return source, sink, nil
}

// CheckWorkflow verifies the net is a workflow net whose initial marking is
// one token on the source and whose final marking is one token on the sink.
func (an *AcceptingNet) CheckWorkflow() error {
	source, sink, err := an.Net.CheckWorkflowNet()
	if err != nil {
		return err
	}
	if !an.Initial.Equal(NewMarking(source)) {
		return errors.New(errors.CodeNotWorkflowNet, "initial marking is not the source place").
			WithContext("initial", an.Initial.Format(an.Net))
	}
	if !an.Final.Equal(NewMarking(sink)) {
		return errors.New(errors.CodeNotWorkflowNet, "final marking is not the sink place").
			WithContext("final", an.Final.Format(an.Net))
	}
	return nil
}

// Validate checks that both markings reference existing places.
func (an *AcceptingNet) Validate() error {
	if an.Net == nil {
		return errors.New(errors.CodeMalformedNet, "nil net")
	}
	for _, m := range []Marking{an.Initial, an.Final} {
		for p := range m {
			if int(p) < 0 || int(p) >= an.Net.NumPlaces() {
				return errors.New(errors.CodeMalformedNet, "marking references unknown place").
					WithContext("place", int(p))
			}
		}
	}
	return nil
}

// Reverse returns the net with every arc flipped. Handles are preserved.
func (n *Net) Reverse() *Net {
	out := NewNet(n.Name + "_reversed")
	for _, p := range n.places {
		out.AddPlace(p.Name)
	}
	for _, t := range n.transitions {
		out.AddTransition(t.Name, t.Label)
	}
	for _, a := range n.arcs {
		out.addArc(a.Place, a.Transition, !a.Input, a.Weight)
	}
	return out
}

// Reverse returns the reversed net with initial and final markings swapped.
func (an *AcceptingNet) Reverse() *AcceptingNet {
	return &AcceptingNet{
		Net:     an.Net.Reverse(),
		Initial: an.Final.Clone(),
		Final:   an.Initial.Clone(),
	}
}

// Incidence returns the incidence matrix C with one row per place and one
// column per transition: C[p][t] = post(t,p) - pre(t,p).
func (n *Net) Incidence() [][]int {
	c := make([][]int, len(n.places))
	for i := range c {
		c[i] = make([]int, len(n.transitions))
	}
	for _, a := range n.arcs {
		if a.Input {
			c[a.Place][a.Transition] -= a.Weight
		} else {
			c[a.Place][a.Transition] += a.Weight
		}
	}
	return c
}
