package petri

import (
	"github.com/logflow/pmcore/pkg/errors"
)

// IsEnabled reports whether every input place of t holds at least the arc
// weight in tokens.
func (n *Net) IsEnabled(t TransitionID, m Marking) bool {
	for _, f := range n.pre[t] {
		if m[f.Place] < f.Weight {
			return false
		}
	}
	return true
}

// Enabled returns the transitions enabled in m, in handle order.
func (n *Net) Enabled(m Marking) []TransitionID {
	var out []TransitionID
	for i := range n.transitions {
		if n.IsEnabled(TransitionID(i), m) {
			out = append(out, TransitionID(i))
		}
	}
	return out
}

// Fire returns the marking reached by firing t in m. The input marking is
// left untouched.
func (n *Net) Fire(t TransitionID, m Marking) (Marking, error) {
	if !n.IsEnabled(t, m) {
		return nil, errors.New(errors.CodeNotEnabled, "transition not enabled").
			WithContext("transition", n.transitions[t].Name).
			WithContext("marking", m.Format(n))
	}
	out := m.Clone()
	for _, f := range n.pre[t] {
		out.Add(f.Place, -f.Weight)
	}
	for _, f := range n.post[t] {
		out.Add(f.Place, f.Weight)
	}
	return out, nil
}

// WeakExecute fires t regardless of enablement. Consumption is clamped at
// zero per place; the tokens that had to be fabricated are returned as
// missing.
func (n *Net) WeakExecute(t TransitionID, m Marking) (Marking, int) {
	out := m.Clone()
	missing := 0
	for _, f := range n.pre[t] {
		have := out[f.Place]
		if have < f.Weight {
			missing += f.Weight - have
		}
		out.Add(f.Place, -f.Weight)
	}
	for _, f := range n.post[t] {
		out.Add(f.Place, f.Weight)
	}
	return out, missing
}

// Consumed returns the total input weight of t.
func (n *Net) Consumed(t TransitionID) int {
	c := 0
	for _, f := range n.pre[t] {
		c += f.Weight
	}
	return c
}

// Produced returns the total output weight of t.
func (n *Net) Produced(t TransitionID) int {
	c := 0
	for _, f := range n.post[t] {
		c += f.Weight
	}
	return c
}
