package align

import (
	"context"

	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/petri"
)

// AntiAlignment is the model run that differs most from the log.
type AntiAlignment struct {
	Transitions []petri.TransitionID
	Run         []string
	// Distance is the Levenshtein distance from Run to its closest trace.
	Distance int
	// Closest is the index of the closest trace.
	Closest int
	// Precision is 1 - Distance / max(len(Run), len(closest trace)): 1 when
	// every bounded model run appears in the log.
	Precision float64
	Stats     Stats
}

// Anti finds the model run, no longer than the longest trace, that
// maximizes the distance to its closest trace.
func Anti(ctx context.Context, an *petri.AcceptingNet, traces [][]string, p Parameters) (*AntiAlignment, error) {
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
	maxLength := 0
	for _, t := range traces {
		maxLength = max(maxLength, len(t))
	}
	closest := func(rows [][]int) int {
		d := -1
		for _, r := range rows {
			if v := r[len(r)-1]; d < 0 || v < d {
				d = v
			}
		}
		return d
	}
	obj := runObjective{
		maximize: true,
		// every further label moves a distance by at most one
		bound: func(rows [][]int) int {
			return closest(rows) + maxLength - rows[0][0]
		},
		value:     closest,
		maxLength: maxLength,
	}
	goal, stats, err := exploreRuns(ctx, an, traces, limit, maxStates, obj)
	if err != nil {
		return nil, err
	}
	if goal == nil {
		return nil, errors.New(errors.CodeUnreachableFinal, "no bounded model run reaches the final marking").
			WithContext("max_length", maxLength)
	}
	aa := &AntiAlignment{Stats: stats, Closest: -1}
	aa.Transitions, aa.Run = runOf(an.Net, goal)
	dists, err := distances(aa.Run, traces)
	if err != nil {
		return nil, err
	}
	for i, d := range dists {
		if aa.Closest < 0 || d < aa.Distance {
			aa.Closest, aa.Distance = i, d
		}
	}
	aa.Precision = 1
	if norm := max(len(aa.Run), len(traces[aa.Closest])); norm > 0 {
		aa.Precision = 1 - float64(aa.Distance)/float64(norm)
	}
	return aa, nil
}
