package evaluation

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/logflow/pmcore/pkg/petri"
)

// Simplicity holds the structural simplicity metrics of a net.
type Simplicity struct {
	ArcDegree          float64
	ExtendedCardoso    float64
	ExtendedCyclomatic int
}

// SimplicityOf computes all simplicity metrics of an.
func SimplicityOf(an *petri.AcceptingNet) Simplicity {
	return Simplicity{
		ArcDegree:          ArcDegree(an.Net),
		ExtendedCardoso:    ExtendedCardoso(an.Net),
		ExtendedCyclomatic: ExtendedCyclomatic(an.Net),
	}
}

// ArcDegree returns 1 / (1 + mean |degree - 2|) over places and
// transitions. A net of simple sequences scores close to 1.
func ArcDegree(n *petri.Net) float64 {
	nodes := n.NumPlaces() + n.NumTransitions()
	if nodes == 0 {
		return 0
	}
	dev := 0.0
	for _, p := range n.Places() {
		deg := len(n.Producers(p.ID)) + len(n.Consumers(p.ID))
		dev += math.Abs(float64(deg - 2))
	}
	for _, t := range n.Transitions() {
		deg := len(n.Preset(t.ID)) + len(n.Postset(t.ID))
		dev += math.Abs(float64(deg - 2))
	}
	return 1 / (1 + dev/float64(nodes))
}

// ExtendedCardoso sums over places the number of distinct output place
// sets among the transitions consuming from the place, normalized by the
// number of places.
func ExtendedCardoso(n *petri.Net) float64 {
	if n.NumPlaces() == 0 {
		return 0
	}
	total := 0
	for _, p := range n.Places() {
		targets := make(map[string]bool)
		for _, t := range n.Consumers(p.ID) {
			targets[postsetKey(n, t)] = true
		}
		total += len(targets)
	}
	return float64(total) / float64(n.NumPlaces())
}

func postsetKey(n *petri.Net, t petri.TransitionID) string {
	post := n.Postset(t)
	ids := make([]int, len(post))
	for i, f := range post {
		ids[i] = int(f.Place)
	}
	sort.Ints(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// ExtendedCyclomatic returns |arcs| - |nodes| + 2 * |strongly connected
// components| of the flow graph.
func ExtendedCyclomatic(n *petri.Net) int {
	nodes := n.NumPlaces() + n.NumTransitions()
	return n.NumArcs() - nodes + 2*n.StronglyConnectedComponents()
}
