package align

import (
	"context"

	"github.com/logflow/pmcore/internal/pool"
	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/eventlog"
	"github.com/logflow/pmcore/pkg/petri"
)

// TraceResult is the alignment of one trace or the reason it failed.
type TraceResult struct {
	Alignment *Alignment
	// Err is set when the search timed out, hit its bound or found the
	// final marking unreachable. Failed traces count as unfit.
	Err error
	// LogCost is the cost of moving every event on the log alone.
	LogCost float64
}

// Fitness returns the alignment fitness, 0 for failed traces.
func (r *TraceResult) Fitness() float64 {
	if r.Err != nil || r.Alignment == nil {
		return 0
	}
	return r.Alignment.Fitness
}

// Fit reports whether the trace aligned without cost.
func (r *TraceResult) Fit() bool {
	return r.Err == nil && r.Alignment != nil && r.Alignment.Cost == 0
}

// Result holds per-trace alignments in log order. Traces of one variant
// share a result.
type Result struct {
	Traces []*TraceResult
}

// AverageFitness averages the trace fitness values.
func (r *Result) AverageFitness() float64 {
	if len(r.Traces) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range r.Traces {
		sum += t.Fitness()
	}
	return sum / float64(len(r.Traces))
}

// Fitness is 1 - total cost / total worst cost. Failed traces contribute
// no cost and no worst cost.
func (r *Result) Fitness() float64 {
	var cost, worst float64
	for _, t := range r.Traces {
		if t.Err != nil || t.Alignment == nil {
			continue
		}
		cost += t.Alignment.Cost
		worst += t.Alignment.WorstCost
	}
	if worst == 0 {
		return r.AverageFitness()
	}
	return 1 - cost/worst
}

// PercFitTraces returns the share of traces aligned without cost.
func (r *Result) PercFitTraces() float64 {
	if len(r.Traces) == 0 {
		return 0
	}
	fit := 0
	for _, t := range r.Traces {
		if t.Fit() {
			fit++
		}
	}
	return float64(fit) / float64(len(r.Traces))
}

// Failed returns the number of traces without an alignment.
func (r *Result) Failed() int {
	n := 0
	for _, t := range r.Traces {
		if t.Err != nil {
			n++
		}
	}
	return n
}

// Log aligns every trace of the log. Each variant is aligned once, on up to
// p.Workers goroutines; per-trace failures are recorded on the result and
// only cancellation of ctx aborts the batch.
func Log(ctx context.Context, an *petri.AcceptingNet, l *eventlog.EventLog, p Parameters) (*Result, error) {
	a, err := NewAligner(an, p)
	if err != nil {
		return nil, err
	}
	return a.Log(ctx, l)
}

// Log aligns every trace of the log with this aligner.
func (a *Aligner) Log(ctx context.Context, l *eventlog.EventLog) (*Result, error) {
	groups := eventlog.GetVariants(l, a.p.ActivityKey).Groups()
	byVariant := make([]*TraceResult, len(groups))
	err := pool.ForEach(ctx, len(groups), a.p.Workers, func(ctx context.Context, i int) error {
		acts := groups[i].Activities
		res := &TraceResult{}
		for _, act := range acts {
			res.LogCost += a.p.logCost(act)
		}
		res.Alignment, res.Err = a.Trace(ctx, acts)
		if res.Err != nil && ctx.Err() != nil && !errors.IsCode(res.Err, errors.CodeSearchTimeout) {
			return res.Err
		}
		byVariant[i] = res
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeContextCanceled, "alignment canceled")
	}

	res := &Result{Traces: make([]*TraceResult, len(l.Traces))}
	for i, g := range groups {
		for _, ti := range g.Traces {
			res.Traces[ti] = byVariant[i]
		}
	}
	return res, nil
}
