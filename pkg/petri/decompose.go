package petri

import (
	"sort"
	"strconv"
)

// Component is a fragment of a maximal decomposition. It keeps the handles
// of the originating net so fragments can be merged and their results
// mapped back.
type Component struct {
	*AcceptingNet
	// Places and Transitions are handles into the decomposed net, indexed
	// by the component's own handles.
	Places      []PlaceID
	Transitions []TransitionID
}

// Labels returns the sorted visible labels of the component.
func (c *Component) Labels() []string {
	return c.Net.Labels()
}

// Decompose splits an accepting net into its maximal decomposition. Places
// and silent or duplicate-labeled transitions are internal to exactly one
// component; a transition with a unique visible label is shared by every
// component it touches. Components are ordered by their smallest place
// handle, followed by isolated visible transitions.
func Decompose(an *AcceptingNet) []*Component {
	n := an.Net
	labelCount := make(map[string]int)
	for _, t := range n.Transitions() {
		if !t.IsSilent() {
			labelCount[t.Label]++
		}
	}
	shared := func(t TransitionID) bool {
		tr := n.Transition(t)
		return !tr.IsSilent() && labelCount[tr.Label] == 1
	}

	// union-find over places; internal transitions glue their places together
	parent := make([]int, n.NumPlaces())
	for i := range parent {
		parent[i] = i
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}

	for _, t := range n.Transitions() {
		if shared(t.ID) {
			continue
		}
		var places []PlaceID
		for _, f := range n.Preset(t.ID) {
			places = append(places, f.Place)
		}
		for _, f := range n.Postset(t.ID) {
			places = append(places, f.Place)
		}
		if len(places) == 0 {
			continue
		}
		for _, p := range places[1:] {
			union(int(places[0]), int(p))
		}
	}

	groups := make(map[int][]PlaceID)
	var roots []int
	for i := 0; i < n.NumPlaces(); i++ {
		r := find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], PlaceID(i))
	}
	sort.Ints(roots)

	var out []*Component
	covered := make([]bool, n.NumTransitions())
	for _, r := range roots {
		places := groups[r]
		inGroup := make(map[PlaceID]bool, len(places))
		for _, p := range places {
			inGroup[p] = true
		}
		var trans []TransitionID
		for _, t := range n.Transitions() {
			if touches(n, t.ID, inGroup) {
				trans = append(trans, t.ID)
				covered[t.ID] = true
			}
		}
		out = append(out, buildComponent(an, places, trans))
	}
	for _, t := range n.Transitions() {
		if !covered[t.ID] {
			out = append(out, buildComponent(an, nil, []TransitionID{t.ID}))
		}
	}
	return out
}

func touches(n *Net, t TransitionID, places map[PlaceID]bool) bool {
	for _, f := range n.Preset(t) {
		if places[f.Place] {
			return true
		}
	}
	for _, f := range n.Postset(t) {
		if places[f.Place] {
			return true
		}
	}
	return false
}

// buildComponent projects the net onto the given nodes. Arcs to places
// outside the component are dropped.
func buildComponent(an *AcceptingNet, places []PlaceID, trans []TransitionID) *Component {
	n := an.Net
	c := &Component{
		AcceptingNet: &AcceptingNet{
			Net:     NewNet(n.Name + "_" + strconv.Itoa(len(places)) + "_" + strconv.Itoa(len(trans))),
			Initial: Marking{},
			Final:   Marking{},
		},
		Places:      append([]PlaceID(nil), places...),
		Transitions: append([]TransitionID(nil), trans...),
	}
	placeMap := make(map[PlaceID]PlaceID, len(places))
	for _, p := range places {
		np := c.Net.AddPlace(n.Place(p).Name)
		placeMap[p] = np
		if k := an.Initial[p]; k > 0 {
			c.Initial[np] = k
		}
		if k := an.Final[p]; k > 0 {
			c.Final[np] = k
		}
	}
	for _, t := range trans {
		tr := n.Transition(t)
		nt := c.Net.AddTransition(tr.Name, tr.Label)
		for _, f := range n.Preset(t) {
			if np, ok := placeMap[f.Place]; ok {
				c.Net.AddInputArc(np, nt, f.Weight)
			}
		}
		for _, f := range n.Postset(t) {
			if np, ok := placeMap[f.Place]; ok {
				c.Net.AddOutputArc(nt, np, f.Weight)
			}
		}
	}
	return c
}

// MergeComponents builds the component covering the nodes of a and b.
func MergeComponents(an *AcceptingNet, a, b *Component) *Component {
	places := unionPlaces(a.Places, b.Places)
	trans := unionTransitions(a.Transitions, b.Transitions)
	return buildComponent(an, places, trans)
}

func unionPlaces(a, b []PlaceID) []PlaceID {
	seen := make(map[PlaceID]bool)
	var out []PlaceID
	for _, p := range append(append([]PlaceID(nil), a...), b...) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func unionTransitions(a, b []TransitionID) []TransitionID {
	seen := make(map[TransitionID]bool)
	var out []TransitionID
	for _, t := range append(append([]TransitionID(nil), a...), b...) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
