package evaluation

import (
	"context"

	"github.com/logflow/pmcore/pkg/align"
	"github.com/logflow/pmcore/pkg/eventlog"
	"github.com/logflow/pmcore/pkg/petri"
	"github.com/logflow/pmcore/pkg/replay"
)

// Fitness summarizes how well a log replays on a model.
type Fitness struct {
	// Log is the log-level fitness: token counters summed over all traces
	// for replay, 1 - total cost / total worst cost for alignments.
	Log float64
	// AverageTrace averages the per-trace fitness values.
	AverageTrace float64
	// PercFitTraces is the share of traces replayed without deviation.
	PercFitTraces float64
	// Failed counts traces whose alignment aborted.
	Failed int
}

func tokenFitness(res *replay.Result) Fitness {
	return Fitness{
		Log:           res.Fitness(),
		AverageTrace:  res.AverageTraceFitness(),
		PercFitTraces: res.PercFitTraces(),
	}
}

// TokenFitness replays the log and reports token-based fitness.
func (e *Evaluator) TokenFitness(ctx context.Context, an *petri.AcceptingNet, l *eventlog.EventLog) (Fitness, error) {
	if e.empty(l, "token fitness") {
		return Fitness{}, nil
	}
	res, err := replay.Log(ctx, an, l, e.replayParameters())
	if err != nil {
		return Fitness{}, err
	}
	return tokenFitness(res), nil
}

// AlignmentFitness aligns the log and reports alignment-based fitness.
// Traces whose search aborted count as unfit.
func (e *Evaluator) AlignmentFitness(ctx context.Context, an *petri.AcceptingNet, l *eventlog.EventLog) (Fitness, error) {
	if e.empty(l, "alignment fitness") {
		return Fitness{}, nil
	}
	res, err := align.Log(ctx, an, l, e.alignParameters())
	if err != nil {
		return Fitness{}, err
	}
	return Fitness{
		Log:           res.Fitness(),
		AverageTrace:  res.AverageFitness(),
		PercFitTraces: res.PercFitTraces(),
		Failed:        res.Failed(),
	}, nil
}
