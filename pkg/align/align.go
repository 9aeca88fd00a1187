package align

import (
	"context"
	"sync"

	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/petri"
)

// Alignment is an optimal alignment of one trace.
type Alignment struct {
	Moves []Move
	// Cost sums the undiscounted move costs.
	Cost float64
	// SearchCost is the path cost the search minimized. It differs from
	// Cost only for the discounted variant.
	SearchCost float64
	// WorstCost is the cost of moving every event on the log alone plus the
	// cheapest model run.
	WorstCost float64
	// Fitness is 1 - Cost/WorstCost.
	Fitness float64
	Stats   Stats
}

// MoveFitness is 1 - Cost/len(Moves), the share of cost-free steps for unit
// costs.
func (a *Alignment) MoveFitness() float64 {
	if len(a.Moves) == 0 {
		return 1
	}
	return 1 - a.Cost/float64(len(a.Moves))
}

// Deviations returns the moves with a positive cost.
func (a *Alignment) Deviations() []Move {
	var out []Move
	for _, m := range a.Moves {
		if m.Cost > 0 {
			out = append(out, m)
		}
	}
	return out
}

// Aligner aligns traces against one net. It is safe for concurrent use.
type Aligner struct {
	an     *petri.AcceptingNet
	p      Parameters
	labels map[string][]petri.TransitionID

	mu         sync.Mutex
	worstKnown bool
	worstModel float64
}

// NewAligner validates the parameters and the net.
func NewAligner(an *petri.AcceptingNet, p Parameters) (*Aligner, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := an.Validate(); err != nil {
		return nil, err
	}
	a := &Aligner{an: an, p: p.withDefaults(), labels: make(map[string][]petri.TransitionID)}
	for _, t := range an.Net.Transitions() {
		if !t.IsSilent() {
			a.labels[t.Label] = append(a.labels[t.Label], t.ID)
		}
	}
	return a, nil
}

// Net returns the aligned net.
func (a *Aligner) Net() *petri.AcceptingNet {
	return a.an
}

// Parameters returns the effective parameters.
func (a *Aligner) Parameters() Parameters {
	return a.p
}

// Trace computes an optimal alignment of the activity sequence. It fails
// with CodeUnreachableFinal when the final marking cannot be reached, with
// CodeSearchTimeout when the per-trace timeout expires, and with
// CodeStateLimit when the search outgrows its bound.
func (a *Aligner) Trace(ctx context.Context, activities []string) (*Alignment, error) {
	if a.p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.p.Timeout)
		defer cancel()
	}
	al, err := a.search(ctx, activities)
	if err != nil {
		return nil, err
	}
	worst, err := a.worstCost(ctx, activities)
	if err != nil {
		return nil, err
	}
	al.WorstCost = worst
	al.Fitness = 1
	if worst > 0 {
		al.Fitness = 1 - al.Cost/worst
	}
	return al, nil
}

func (a *Aligner) search(ctx context.Context, activities []string) (*Alignment, error) {
	s := &searcher{sp: buildSyncProduct(a.an, activities, a.labels, a.p), p: a.p}
	goal, err := s.run(ctx)
	if err != nil {
		return nil, err
	}
	if goal == nil {
		return nil, errors.New(errors.CodeUnreachableFinal, "final marking unreachable").
			WithContext("net", a.an.Net.Name).
			WithContext("trace_length", len(activities))
	}
	al := &Alignment{Moves: s.path(goal), SearchCost: goal.g, Stats: s.stats}
	for _, m := range al.Moves {
		al.Cost += m.Cost
	}
	return al, nil
}

// worstCost adds the log-move cost of every event to the cost of the
// cheapest model run, which is computed once per aligner.
func (a *Aligner) worstCost(ctx context.Context, activities []string) (float64, error) {
	w, err := a.modelRunCost(ctx)
	if err != nil {
		return 0, err
	}
	for _, act := range activities {
		w += a.p.logCost(act)
	}
	return w, nil
}

// modelRunCost returns the cost of the cheapest model run. Failures are not
// remembered so a later call with a longer deadline may succeed.
func (a *Aligner) modelRunCost(ctx context.Context) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.worstKnown {
		return a.worstModel, nil
	}
	al, err := a.search(ctx, nil)
	if err != nil {
		return 0, err
	}
	a.worstModel, a.worstKnown = al.Cost, true
	return a.worstModel, nil
}

// Trace aligns one activity sequence.
func Trace(ctx context.Context, an *petri.AcceptingNet, activities []string, p Parameters) (*Alignment, error) {
	a, err := NewAligner(an, p)
	if err != nil {
		return nil, err
	}
	return a.Trace(ctx, activities)
}
