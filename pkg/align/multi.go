package align

import (
	"context"

	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/petri"
)

// MultiAlignment is a model run chosen to be close to every trace at once.
type MultiAlignment struct {
	Transitions []petri.TransitionID
	// Run holds the visible labels of the run.
	Run []string
	// Distances holds the Levenshtein distance from Run to each trace.
	Distances   []int
	MaxDistance int
	Stats       Stats
}

// Multi finds the model run minimizing the largest Levenshtein distance to
// any of the traces. Model places are bounded by the marking limit of p.
func Multi(ctx context.Context, an *petri.AcceptingNet, traces [][]string, p Parameters) (*MultiAlignment, error) {
	if err := checkTraces(traces); err != nil {
		return nil, err
	}
	limit, maxStates, err := runBounds(an, p)
	if err != nil {
		return nil, err
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	obj := runObjective{
		// DP row minima never decrease as the run grows
		bound: func(rows [][]int) int {
			worst := 0
			for _, r := range rows {
				worst = max(worst, minOf(r))
			}
			return worst
		},
		value: func(rows [][]int) int {
			worst := 0
			for _, r := range rows {
				worst = max(worst, r[len(r)-1])
			}
			return worst
		},
	}
	goal, stats, err := exploreRuns(ctx, an, traces, limit, maxStates, obj)
	if err != nil {
		return nil, err
	}
	if goal == nil {
		return nil, errors.New(errors.CodeUnreachableFinal, "no bounded model run reaches the final marking").
			WithContext("marking_limit", limit)
	}
	ma := &MultiAlignment{Stats: stats}
	ma.Transitions, ma.Run = runOf(an.Net, goal)
	if ma.Distances, err = distances(ma.Run, traces); err != nil {
		return nil, err
	}
	for _, d := range ma.Distances {
		ma.MaxDistance = max(ma.MaxDistance, d)
	}
	return ma, nil
}

func minOf(r []int) int {
	m := r[0]
	for _, v := range r[1:] {
		m = min(m, v)
	}
	return m
}

// runBounds validates p for run searches and returns the marking limit and
// the state bound.
func runBounds(an *petri.AcceptingNet, p Parameters) (int, int, error) {
	if err := p.Validate(); err != nil {
		return 0, 0, err
	}
	if err := an.Validate(); err != nil {
		return 0, 0, err
	}
	p = p.withDefaults()
	limit := p.MarkingLimit
	if limit == 0 {
		limit = defaultMarkingLimit
	}
	return limit, p.MaxStates, nil
}
