package replay

import (
	"sort"

	"github.com/logflow/pmcore/pkg/config"
	"github.com/logflow/pmcore/pkg/petri"
)

// TraceResult is the outcome of replaying one trace.
type TraceResult struct {
	// Fitness is 1/2 (1 - missing/consumed) + 1/2 (1 - remaining/produced).
	Fitness float64
	// Fit is true when no token was missing or left over and every
	// activity was known to the model.
	Fit bool
	// ReachedFinal reports whether the final marking was reached exactly.
	ReachedFinal bool

	Missing   int
	Remaining int
	Consumed  int
	Produced  int

	// Activated lists the fired transitions in firing order, silent ones
	// included.
	Activated []petri.TransitionID
	// MissingTokens holds the fabricated tokens per place.
	MissingTokens petri.Marking
	// RemainingTokens holds the tokens left after consuming the final
	// marking.
	RemainingTokens petri.Marking
	// Problems lists activities fired with fabricated tokens, in order.
	Problems []string
	// Unknown lists activities no transition carries.
	Unknown []string
}

// Replayer replays traces on one net. It is safe for concurrent use; the
// net must not change while it is in use.
type Replayer struct {
	an     *petri.AcceptingNet
	p      Parameters
	labels map[string][]petri.TransitionID
	silent []petri.TransitionID
}

// NewReplayer validates the parameters and the net.
func NewReplayer(an *petri.AcceptingNet, p Parameters) (*Replayer, error) {
	if err := config.Validate(p); err != nil {
		return nil, err
	}
	if err := an.Validate(); err != nil {
		return nil, err
	}
	p = p.withDefaults()
	if p.Backward {
		an = an.Reverse()
	}
	r := &Replayer{an: an, p: p, labels: make(map[string][]petri.TransitionID)}
	for _, t := range an.Net.Transitions() {
		if t.IsSilent() {
			r.silent = append(r.silent, t.ID)
		} else {
			r.labels[t.Label] = append(r.labels[t.Label], t.ID)
		}
	}
	return r, nil
}

// Net returns the net replayed on, reversed for backward replay.
func (r *Replayer) Net() *petri.AcceptingNet {
	return r.an
}

// Trace replays an activity sequence. Backward replayers read it from the
// end.
func (r *Replayer) Trace(activities []string) *TraceResult {
	run := r.Start()
	if r.p.Backward {
		for i := len(activities) - 1; i >= 0; i-- {
			run.Execute(activities[i])
		}
	} else {
		for _, a := range activities {
			run.Execute(a)
		}
	}
	return run.Finish()
}

// Run is one replay in progress.
type Run struct {
	r   *Replayer
	m   petri.Marking
	res *TraceResult
}

// Start begins a replay in the initial marking.
func (r *Replayer) Start() *Run {
	return &Run{
		r: r,
		m: r.an.Initial.Clone(),
		res: &TraceResult{
			Produced:      r.an.Initial.Total(),
			MissingTokens: make(petri.Marking),
		},
	}
}

// Marking returns a copy of the current marking.
func (run *Run) Marking() petri.Marking {
	return run.m.Clone()
}

// Clone forks the run so both copies can continue independently.
func (run *Run) Clone() *Run {
	res := *run.res
	res.Activated = append([]petri.TransitionID(nil), run.res.Activated...)
	res.MissingTokens = run.res.MissingTokens.Clone()
	res.Problems = append([]string(nil), run.res.Problems...)
	res.Unknown = append([]string(nil), run.res.Unknown...)
	return &Run{r: run.r, m: run.m.Clone(), res: &res}
}

// Fits reports whether every event so far fired without fabricated tokens
// and matched a transition.
func (run *Run) Fits() bool {
	return run.res.Missing == 0 && len(run.res.Unknown) == 0
}

func (run *Run) fire(t petri.TransitionID) {
	n := run.r.an.Net
	run.m, _ = n.WeakExecute(t, run.m)
	run.res.Consumed += n.Consumed(t)
	run.res.Produced += n.Produced(t)
	run.res.Activated = append(run.res.Activated, t)
}

// Execute replays one event.
func (run *Run) Execute(activity string) {
	n := run.r.an.Net
	cands := run.r.labels[activity]
	if len(cands) == 0 {
		run.res.Unknown = append(run.res.Unknown, activity)
		return
	}
	enabled := func(m petri.Marking) (petri.TransitionID, bool) {
		for _, t := range cands {
			if n.IsEnabled(t, m) {
				return t, true
			}
		}
		return 0, false
	}
	if t, ok := enabled(run.m); ok {
		run.fire(t)
		return
	}
	if path, ok := run.r.silentPath(run.m, func(m petri.Marking) bool {
		_, ok := enabled(m)
		return ok
	}); ok {
		for _, s := range path {
			run.fire(s)
		}
		t, _ := enabled(run.m)
		run.fire(t)
		return
	}

	best, bestMissing := cands[0], -1
	for _, t := range cands {
		if d := deficit(n, t, run.m); bestMissing < 0 || d < bestMissing {
			best, bestMissing = t, d
		}
	}
	for _, f := range n.Preset(best) {
		if have := run.m[f.Place]; have < f.Weight {
			d := f.Weight - have
			run.res.Missing += d
			run.res.MissingTokens.Add(f.Place, d)
			run.m.Add(f.Place, d)
		}
	}
	run.res.Problems = append(run.res.Problems, activity)
	run.fire(best)
}

func deficit(n *petri.Net, t petri.TransitionID, m petri.Marking) int {
	d := 0
	for _, f := range n.Preset(t) {
		if have := m[f.Place]; have < f.Weight {
			d += f.Weight - have
		}
	}
	return d
}

// Finish moves to the final marking through silent transitions if
// possible, consumes it and returns the result.
func (run *Run) Finish() *TraceResult {
	final := run.r.an.Final
	if !run.m.Equal(final) {
		path, ok := run.r.silentPath(run.m, final.Equal)
		if !ok {
			path, ok = run.r.silentPath(run.m, func(m petri.Marking) bool { return m.Covers(final) })
		}
		if ok {
			for _, s := range path {
				run.fire(s)
			}
		}
	}
	res := run.res
	res.ReachedFinal = run.m.Equal(final)
	for p, w := range final {
		res.Consumed += w
		if have := run.m[p]; have < w {
			res.Missing += w - have
			res.MissingTokens.Add(p, w-have)
			run.m.Add(p, w-have)
		}
		run.m.Add(p, -w)
	}
	res.RemainingTokens = run.m.Clone()
	res.Remaining = run.m.Total()
	res.Fitness = traceFitness(res.Missing, res.Consumed, res.Remaining, res.Produced)
	res.Fit = res.Missing == 0 && res.Remaining == 0 && len(res.Unknown) == 0
	return res
}

func traceFitness(missing, consumed, remaining, produced int) float64 {
	f := 0.0
	if consumed > 0 {
		f += 0.5 * (1 - float64(missing)/float64(consumed))
	} else {
		f += 0.5
	}
	if produced > 0 {
		f += 0.5 * (1 - float64(remaining)/float64(produced))
	} else {
		f += 0.5
	}
	return f
}

// silentPath finds the shortest sequence of silent transitions leading from
// m to a marking accepted by goal, within the configured bounds.
func (r *Replayer) silentPath(m petri.Marking, goal func(petri.Marking) bool) ([]petri.TransitionID, bool) {
	if goal(m) {
		return nil, true
	}
	if len(r.silent) == 0 {
		return nil, false
	}
	type node struct {
		m    petri.Marking
		path []petri.TransitionID
	}
	n := r.an.Net
	visited := map[string]bool{m.Key(): true}
	queue := []node{{m: m}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if len(cur.path) >= r.p.MaxSilentSteps {
			continue
		}
		for _, t := range r.silent {
			if !n.IsEnabled(t, cur.m) {
				continue
			}
			next, err := n.Fire(t, cur.m)
			if err != nil {
				continue
			}
			k := next.Key()
			if visited[k] {
				continue
			}
			if len(visited) >= r.p.MaxSilentStates {
				return nil, false
			}
			visited[k] = true
			path := append(append(make([]petri.TransitionID, 0, len(cur.path)+1), cur.path...), t)
			if goal(next) {
				return path, true
			}
			queue = append(queue, node{m: next, path: path})
		}
	}
	return nil, false
}

// EnabledLabels returns the sorted labels of the visible transitions that
// are enabled in m or become enabled through silent transitions.
func (r *Replayer) EnabledLabels(m petri.Marking) []string {
	n := r.an.Net
	seen := make(map[string]bool)
	collect := func(m petri.Marking) {
		for label, ts := range r.labels {
			if seen[label] {
				continue
			}
			for _, t := range ts {
				if n.IsEnabled(t, m) {
					seen[label] = true
					break
				}
			}
		}
	}
	collect(m)
	// explore the whole bounded silent closure
	r.silentPath(m, func(x petri.Marking) bool {
		collect(x)
		return false
	})
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
