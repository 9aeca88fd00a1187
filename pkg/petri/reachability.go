package petri

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/logflow/pmcore/pkg/errors"
)

// DefaultMaxStates bounds state-space exploration.
const DefaultMaxStates = 100000

// Edge is a labeled edge of the reachability graph.
type Edge struct {
	Transition TransitionID
	Target     int
}

// ReachabilityGraph is the explored state space of an accepting net.
// State 0 is the initial marking.
type ReachabilityGraph struct {
	States []Marking
	Edges  [][]Edge
	// Complete is false when exploration stopped at the state bound.
	Complete bool

	index map[string]int
}

// BuildReachabilityGraph explores the markings reachable from the initial
// marking breadth-first. When more than maxStates markings are found it
// returns the partial graph together with a CodeStateLimit error.
func BuildReachabilityGraph(an *AcceptingNet, maxStates int) (*ReachabilityGraph, error) {
	if maxStates <= 0 {
		maxStates = DefaultMaxStates
	}
	rg := &ReachabilityGraph{index: make(map[string]int), Complete: true}
	rg.add(an.Initial.Clone())

	for head := 0; head < len(rg.States); head++ {
		m := rg.States[head]
		for _, t := range an.Net.Enabled(m) {
			next, _ := an.Net.Fire(t, m)
			target, ok := rg.index[next.Key()]
			if !ok {
				if len(rg.States) >= maxStates {
					rg.Complete = false
					return rg, errors.New(errors.CodeStateLimit, "state space exceeds bound").
						WithContext("max_states", maxStates)
				}
				target = rg.add(next)
			}
			rg.Edges[head] = append(rg.Edges[head], Edge{Transition: t, Target: target})
		}
	}
	return rg, nil
}

func (rg *ReachabilityGraph) add(m Marking) int {
	id := len(rg.States)
	rg.States = append(rg.States, m)
	rg.Edges = append(rg.Edges, nil)
	rg.index[m.Key()] = id
	return id
}

// StateOf returns the state index of a marking.
func (rg *ReachabilityGraph) StateOf(m Marking) (int, bool) {
	id, ok := rg.index[m.Key()]
	return id, ok
}

// CanReach returns the states from which some state in targets is
// reachable: the least fixpoint of X = targets ∪ pre(X).
func (rg *ReachabilityGraph) CanReach(targets *roaring.Bitmap) *roaring.Bitmap {
	preds := make([][]int, len(rg.States))
	for s, edges := range rg.Edges {
		for _, e := range edges {
			preds[e.Target] = append(preds[e.Target], s)
		}
	}
	result := targets.Clone()
	queue := targets.ToArray()
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		for _, p := range preds[s] {
			if result.CheckedAdd(uint32(p)) {
				queue = append(queue, uint32(p))
			}
		}
	}
	return result
}

// Deadlocks returns the states without enabled transitions.
func (rg *ReachabilityGraph) Deadlocks() []int {
	var out []int
	for s, edges := range rg.Edges {
		if len(edges) == 0 {
			out = append(out, s)
		}
	}
	return out
}

// SoundnessReport describes the outcome of an easy-soundness check.
type SoundnessReport struct {
	States         int
	FinalReachable bool
	// DeadTransitions never occur on a firing sequence from the initial to
	// the final marking.
	DeadTransitions []TransitionID
	Complete        bool
}

// EasySound reports whether the final marking is reachable and every
// transition lies on some run to it.
func (r *SoundnessReport) EasySound() bool {
	return r.FinalReachable && len(r.DeadTransitions) == 0
}

// CheckEasySoundness explores the state space of an and evaluates easy
// soundness. The returned error is non-nil when the net is not easy sound or
// the state bound was hit before the question could be decided.
func CheckEasySoundness(an *AcceptingNet, maxStates int) (*SoundnessReport, error) {
	rg, rgErr := BuildReachabilityGraph(an, maxStates)
	report := &SoundnessReport{States: len(rg.States), Complete: rg.Complete}

	final, ok := rg.StateOf(an.Final)
	if ok {
		report.FinalReachable = true
		targets := roaring.New()
		targets.Add(uint32(final))
		good := rg.CanReach(targets)

		used := make([]bool, an.Net.NumTransitions())
		for s, edges := range rg.Edges {
			if !good.Contains(uint32(s)) {
				continue
			}
			for _, e := range edges {
				if good.Contains(uint32(e.Target)) {
					used[e.Transition] = true
				}
			}
		}
		for t, u := range used {
			if !u {
				report.DeadTransitions = append(report.DeadTransitions, TransitionID(t))
			}
		}
	}

	switch {
	case report.EasySound():
		return report, nil
	case rgErr != nil:
		return report, rgErr
	case !report.FinalReachable:
		return report, errors.New(errors.CodeNotEasySound, "final marking not reachable").
			WithContext("final", an.Final.Format(an.Net))
	default:
		names := make([]string, len(report.DeadTransitions))
		for i, t := range report.DeadTransitions {
			names[i] = an.Net.Transition(t).Name
		}
		return report, errors.New(errors.CodeNotEasySound, "transitions cannot occur on a run to the final marking").
			WithContext("transitions", names)
	}
}

// IsEasySound is a convenience wrapper around CheckEasySoundness.
func IsEasySound(an *AcceptingNet, maxStates int) bool {
	r, err := CheckEasySoundness(an, maxStates)
	return err == nil && r.EasySound()
}
