package align

import (
	"strconv"

	"github.com/logflow/pmcore/pkg/petri"
)

// MoveKind tells which sides of an alignment step are present.
type MoveKind int

const (
	SyncMove MoveKind = iota
	LogMove
	ModelMove
)

func (k MoveKind) String() string {
	switch k {
	case SyncMove:
		return "sync"
	case LogMove:
		return "log"
	case ModelMove:
		return "model"
	}
	return "unknown"
}

// Skip marks the empty side of a log or model move.
const Skip = ">>"

// Move is one step of an alignment.
type Move struct {
	Kind MoveKind
	// Event is the trace position of sync and log moves, -1 otherwise.
	Event int
	// Activity is the event's activity, empty for model moves.
	Activity string
	// Transition is the model transition, -1 for log moves.
	Transition petri.TransitionID
	// Label is the model transition's label, empty when it is silent or
	// for log moves.
	Label string
	Cost  float64
}

// Silent reports whether the move is a model move on a silent transition.
func (m Move) Silent() bool {
	return m.Kind == ModelMove && m.Label == ""
}

// LogSide returns the trace side of the move.
func (m Move) LogSide() string {
	if m.Kind == ModelMove {
		return Skip
	}
	return m.Activity
}

// ModelSide returns the model side of the move; silent transitions read
// "tau".
func (m Move) ModelSide() string {
	switch {
	case m.Kind == LogMove:
		return Skip
	case m.Label == "":
		return "tau"
	}
	return m.Label
}

func (m Move) String() string {
	return "(" + m.LogSide() + "," + m.ModelSide() + ")"
}

// step describes a transition of the synchronous product.
type step struct {
	kind  MoveKind
	event int
	model petri.TransitionID
	cost  float64
}

// syncProduct composes the straight-line net of a trace with the model.
// Model places keep their handles; trace place i sits at handle
// modelPlaces+i.
type syncProduct struct {
	*petri.AcceptingNet
	model       *petri.Net
	trace       []string
	modelPlaces int
	steps       []step
}

func buildSyncProduct(an *petri.AcceptingNet, trace []string, labels map[string][]petri.TransitionID, p Parameters) *syncProduct {
	model := an.Net
	n := petri.NewNet(model.Name + "_sync")
	for _, pl := range model.Places() {
		n.AddPlace(pl.Name)
	}
	tp := make([]petri.PlaceID, len(trace)+1)
	for i := range tp {
		tp[i] = n.AddPlace("trace_" + strconv.Itoa(i))
	}

	sp := &syncProduct{model: model, trace: trace, modelPlaces: model.NumPlaces()}
	copyArcs := func(st petri.TransitionID, t petri.TransitionID) {
		for _, f := range model.Preset(t) {
			n.AddInputArc(f.Place, st, f.Weight)
		}
		for _, f := range model.Postset(t) {
			n.AddOutputArc(st, f.Place, f.Weight)
		}
	}

	for _, t := range model.Transitions() {
		st := n.AddTransition("(>>,"+t.Name+")", "")
		copyArcs(st, t.ID)
		sp.steps = append(sp.steps, step{kind: ModelMove, event: -1, model: t.ID, cost: p.modelCost(model, t.ID)})
	}
	for i, a := range trace {
		st := n.AddTransition("("+a+",>>)", "")
		n.AddInputArc(tp[i], st, 1)
		n.AddOutputArc(st, tp[i+1], 1)
		sp.steps = append(sp.steps, step{kind: LogMove, event: i, model: -1, cost: p.logCost(a)})

		for _, t := range labels[a] {
			st := n.AddTransition("("+a+","+model.Transition(t).Name+")", "")
			n.AddInputArc(tp[i], st, 1)
			n.AddOutputArc(st, tp[i+1], 1)
			copyArcs(st, t)
			sp.steps = append(sp.steps, step{kind: SyncMove, event: i, model: t, cost: p.SyncCost})
		}
	}

	initial := an.Initial.Clone()
	initial.Add(tp[0], 1)
	final := an.Final.Clone()
	final.Add(tp[len(trace)], 1)
	sp.AcceptingNet = &petri.AcceptingNet{Net: n, Initial: initial, Final: final}
	return sp
}

// move converts a product transition into an alignment move.
func (sp *syncProduct) move(t petri.TransitionID) Move {
	s := sp.steps[t]
	m := Move{Kind: s.kind, Event: s.event, Transition: s.model, Cost: s.cost}
	if s.event >= 0 {
		m.Activity = sp.trace[s.event]
	}
	if s.model >= 0 {
		m.Label = sp.model.Transition(s.model).Label
	}
	return m
}

// exceedsLimit reports whether any model place holds more than limit
// tokens.
func (sp *syncProduct) exceedsLimit(m petri.Marking, limit int) bool {
	for p, c := range m {
		if int(p) < sp.modelPlaces && c > limit {
			return true
		}
	}
	return false
}
