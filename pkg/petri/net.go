// Package petri implements labeled place/transition nets.
//
// A Net is an arena: places, transitions and arcs live in slices owned by the
// net and are addressed by integer handles. Nodes never point back at the
// net, and a Marking only references place handles.
package petri

import (
	"fmt"
	"sort"
)

// PlaceID is a handle to a place of a Net.
type PlaceID int

// TransitionID is a handle to a transition of a Net.
type TransitionID int

// Place is a net place.
type Place struct {
	ID   PlaceID
	Name string
}

// Transition is a net transition. An empty Label marks a silent transition.
type Transition struct {
	ID    TransitionID
	Name  string
	Label string
}

// IsSilent reports whether the transition is a tau transition.
func (t Transition) IsSilent() bool {
	return t.Label == ""
}

// Arc connects a place and a transition. Input arcs run from the place to
// the transition; output arcs run from the transition to the place.
type Arc struct {
	Place      PlaceID
	Transition TransitionID
	Input      bool
	Weight     int
}

// Flow is one entry of a transition preset or postset.
type Flow struct {
	Place  PlaceID
	Weight int
}

// Net is a labeled Petri net.
type Net struct {
	Name string

	places      []Place
	transitions []Transition
	arcs        []Arc

	pre       [][]Flow
	post      [][]Flow
	producers [][]TransitionID
	consumers [][]TransitionID
}

// NewNet creates an empty net.
func NewNet(name string) *Net {
	return &Net{Name: name}
}

// AddPlace adds a place and returns its handle.
func (n *Net) AddPlace(name string) PlaceID {
	id := PlaceID(len(n.places))
	n.places = append(n.places, Place{ID: id, Name: name})
	n.producers = append(n.producers, nil)
	n.consumers = append(n.consumers, nil)
	return id
}

// AddTransition adds a transition; label "" creates a silent transition.
func (n *Net) AddTransition(name, label string) TransitionID {
	id := TransitionID(len(n.transitions))
	n.transitions = append(n.transitions, Transition{ID: id, Name: name, Label: label})
	n.pre = append(n.pre, nil)
	n.post = append(n.post, nil)
	return id
}

// AddInputArc adds an arc from p to t. Parallel arcs are merged by summing
// their weights. It panics on invalid handles or a weight below one.
func (n *Net) AddInputArc(p PlaceID, t TransitionID, weight int) {
	n.addArc(p, t, true, weight)
}

// AddOutputArc adds an arc from t to p.
func (n *Net) AddOutputArc(t TransitionID, p PlaceID, weight int) {
	n.addArc(p, t, false, weight)
}

func (n *Net) addArc(p PlaceID, t TransitionID, input bool, weight int) {
	if int(p) < 0 || int(p) >= len(n.places) || int(t) < 0 || int(t) >= len(n.transitions) {
		panic(fmt.Sprintf("petri: arc between unknown nodes p%d/t%d", p, t))
	}
	if weight < 1 {
		panic(fmt.Sprintf("petri: arc weight %d < 1", weight))
	}
	for i := range n.arcs {
		a := &n.arcs[i]
		if a.Place == p && a.Transition == t && a.Input == input {
			a.Weight += weight
			flows := n.post[t]
			if input {
				flows = n.pre[t]
			}
			for j := range flows {
				if flows[j].Place == p {
					flows[j].Weight += weight
				}
			}
			return
		}
	}
	n.arcs = append(n.arcs, Arc{Place: p, Transition: t, Input: input, Weight: weight})
	if input {
		n.pre[t] = append(n.pre[t], Flow{Place: p, Weight: weight})
		n.consumers[p] = append(n.consumers[p], t)
	} else {
		n.post[t] = append(n.post[t], Flow{Place: p, Weight: weight})
		n.producers[p] = append(n.producers[p], t)
	}
}

// NumPlaces returns the number of places.
func (n *Net) NumPlaces() int { return len(n.places) }

// NumTransitions returns the number of transitions.
func (n *Net) NumTransitions() int { return len(n.transitions) }

// NumArcs returns the number of arcs.
func (n *Net) NumArcs() int { return len(n.arcs) }

// Place returns the place with the given handle.
func (n *Net) Place(id PlaceID) Place { return n.places[id] }

// Transition returns the transition with the given handle.
func (n *Net) Transition(id TransitionID) Transition { return n.transitions[id] }

// Places returns all places in handle order. The slice must not be modified.
func (n *Net) Places() []Place { return n.places }

// Transitions returns all transitions in handle order. The slice must not be modified.
func (n *Net) Transitions() []Transition { return n.transitions }

// Arcs returns all arcs in insertion order. The slice must not be modified.
func (n *Net) Arcs() []Arc { return n.arcs }

// Preset returns the input places of t with their weights.
func (n *Net) Preset(t TransitionID) []Flow { return n.pre[t] }

// Postset returns the output places of t with their weights.
func (n *Net) Postset(t TransitionID) []Flow { return n.post[t] }

// Producers returns the transitions with an arc into p.
func (n *Net) Producers(p PlaceID) []TransitionID { return n.producers[p] }

// Consumers returns the transitions with an arc out of p.
func (n *Net) Consumers(p PlaceID) []TransitionID { return n.consumers[p] }

// PlaceByName returns the first place with the given name.
func (n *Net) PlaceByName(name string) (PlaceID, bool) {
	for _, p := range n.places {
		if p.Name == name {
			return p.ID, true
		}
	}
	return -1, false
}

// TransitionsWithLabel returns the visible transitions carrying label.
func (n *Net) TransitionsWithLabel(label string) []TransitionID {
	var out []TransitionID
	for _, t := range n.transitions {
		if !t.IsSilent() && t.Label == label {
			out = append(out, t.ID)
		}
	}
	return out
}

// Labels returns the sorted set of visible labels.
func (n *Net) Labels() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range n.transitions {
		if !t.IsSilent() && !seen[t.Label] {
			seen[t.Label] = true
			out = append(out, t.Label)
		}
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy; handles are preserved.
func (n *Net) Clone() *Net {
	out := NewNet(n.Name)
	for _, p := range n.places {
		out.AddPlace(p.Name)
	}
	for _, t := range n.transitions {
		out.AddTransition(t.Name, t.Label)
	}
	for _, a := range n.arcs {
		out.addArc(a.Place, a.Transition, a.Input, a.Weight)
	}
	return out
}

// AcceptingNet is a net with an initial and a final marking.
type AcceptingNet struct {
	Net     *Net
	Initial Marking
	Final   Marking
}

// Clone returns a deep copy of the net and both markings.
func (an *AcceptingNet) Clone() *AcceptingNet {
	return &AcceptingNet{
		Net:     an.Net.Clone(),
		Initial: an.Initial.Clone(),
		Final:   an.Final.Clone(),
	}
}

// String summarizes the net size.
func (an *AcceptingNet) String() string {
	return fmt.Sprintf("%s: %d places, %d transitions, %d arcs",
		an.Net.Name, an.Net.NumPlaces(), an.Net.NumTransitions(), an.Net.NumArcs())
}
