package replay

import (
	"context"

	"github.com/logflow/pmcore/internal/pool"
	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/eventlog"
	"github.com/logflow/pmcore/pkg/petri"
)

// Result holds the per-trace results of a log replay, in log order.
// Traces of one variant share a result.
type Result struct {
	Traces      []*TraceResult
	Diagnostics *Diagnostics
}

// Fitness is the log-level token fitness computed on the summed counters.
func (r *Result) Fitness() float64 {
	if len(r.Traces) == 0 {
		return 0
	}
	var m, c, rem, p int
	for _, t := range r.Traces {
		m += t.Missing
		c += t.Consumed
		rem += t.Remaining
		p += t.Produced
	}
	return traceFitness(m, c, rem, p)
}

// AverageTraceFitness averages the trace fitness values.
func (r *Result) AverageTraceFitness() float64 {
	if len(r.Traces) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range r.Traces {
		sum += t.Fitness
	}
	return sum / float64(len(r.Traces))
}

// PercFitTraces returns the share of perfectly fitting traces.
func (r *Result) PercFitTraces() float64 {
	if len(r.Traces) == 0 {
		return 0
	}
	fit := 0
	for _, t := range r.Traces {
		if t.Fit {
			fit++
		}
	}
	return float64(fit) / float64(len(r.Traces))
}

// Diagnostics aggregates replay counters over a log.
type Diagnostics struct {
	// Fired counts firings per transition.
	Fired map[petri.TransitionID]int
	// Missing and Remaining count fabricated and left-over tokens per place.
	Missing   map[petri.PlaceID]int
	Remaining map[petri.PlaceID]int
	// Problems counts per activity the firings that needed fabricated tokens.
	Problems map[string]int
	// Unknown counts events whose activity the model lacks.
	Unknown map[string]int
}

func newDiagnostics() *Diagnostics {
	return &Diagnostics{
		Fired:     make(map[petri.TransitionID]int),
		Missing:   make(map[petri.PlaceID]int),
		Remaining: make(map[petri.PlaceID]int),
		Problems:  make(map[string]int),
		Unknown:   make(map[string]int),
	}
}

func (d *Diagnostics) add(t *TraceResult, weight int) {
	for _, tr := range t.Activated {
		d.Fired[tr] += weight
	}
	for p, n := range t.MissingTokens {
		d.Missing[p] += n * weight
	}
	for p, n := range t.RemainingTokens {
		d.Remaining[p] += n * weight
	}
	for _, a := range t.Problems {
		d.Problems[a] += weight
	}
	for _, a := range t.Unknown {
		d.Unknown[a] += weight
	}
}

// Log replays every trace of the log. Each variant is replayed once, on up
// to p.Workers goroutines; the results keep the log order.
func Log(ctx context.Context, an *petri.AcceptingNet, l *eventlog.EventLog, p Parameters) (*Result, error) {
	r, err := NewReplayer(an, p)
	if err != nil {
		return nil, err
	}
	v := eventlog.GetVariants(l, r.p.ActivityKey)
	groups := v.Groups()
	byVariant := make([]*TraceResult, len(groups))
	err = pool.ForEach(ctx, len(groups), r.p.Workers, func(ctx context.Context, i int) error {
		byVariant[i] = r.Trace(groups[i].Activities)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeContextCanceled, "replay canceled")
	}

	res := &Result{Traces: make([]*TraceResult, len(l.Traces)), Diagnostics: newDiagnostics()}
	for i, g := range groups {
		for _, ti := range g.Traces {
			res.Traces[ti] = byVariant[i]
		}
		res.Diagnostics.add(byVariant[i], g.Count())
	}
	return res, nil
}
