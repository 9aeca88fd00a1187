package evaluation

import (
	"context"
	"math"

	"github.com/logflow/pmcore/pkg/eventlog"
	"github.com/logflow/pmcore/pkg/petri"
	"github.com/logflow/pmcore/pkg/replay"
)

// Generalization replays the log and returns 1 minus the mean over all
// transitions of 1/sqrt(firings+1). Transitions fired often raise the
// score; unused ones lower it.
func (e *Evaluator) Generalization(ctx context.Context, an *petri.AcceptingNet, l *eventlog.EventLog) (float64, error) {
	if e.empty(l, "generalization") {
		return 0, nil
	}
	res, err := replay.Log(ctx, an, l, e.replayParameters())
	if err != nil {
		return 0, err
	}
	return generalization(an.Net, res.Diagnostics), nil
}

func generalization(n *petri.Net, d *replay.Diagnostics) float64 {
	if n.NumTransitions() == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range n.Transitions() {
		sum += 1 / math.Sqrt(float64(d.Fired[t.ID]+1))
	}
	return 1 - sum/float64(n.NumTransitions())
}
