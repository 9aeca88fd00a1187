package evaluation

import (
	"context"

	"github.com/logflow/pmcore/pkg/align"
	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/eventlog"
	"github.com/logflow/pmcore/pkg/petri"
	"github.com/logflow/pmcore/pkg/pmpt"
	"github.com/logflow/pmcore/pkg/replay"
)

// escaping accumulates escaping-edge counts over the prefixes of a log.
// Labels are compared, so identically labeled transitions count once.
type escaping struct {
	escaping float64
	allowed  float64
}

// add records a prefix followed by weight traces: enabled are the labels
// the model allows in the reached state, observed those the log shows.
func (c *escaping) add(weight int64, enabled, observed []string) {
	seen := make(map[string]bool, len(observed))
	for _, a := range observed {
		seen[a] = true
	}
	esc := 0
	for _, a := range enabled {
		if !seen[a] {
			esc++
		}
	}
	c.escaping += float64(weight) * float64(esc)
	c.allowed += float64(weight) * float64(len(enabled))
}

func (c *escaping) precision() float64 {
	if c.allowed == 0 {
		return 1
	}
	return 1 - c.escaping/c.allowed
}

func (e *Evaluator) prefixTree(l *eventlog.EventLog) *pmpt.Tree {
	return pmpt.FromVariants(eventlog.GetVariants(l, e.activityKey()))
}

// ETCPrecision computes escaping-edges precision on token replay states.
// Every prefix of the log that replays without fabricated tokens reaches a
// marking; the labels enabled there but never observed after the prefix
// are escaping edges, weighted by the number of traces continuing after
// the prefix.
func (e *Evaluator) ETCPrecision(ctx context.Context, an *petri.AcceptingNet, l *eventlog.EventLog) (float64, error) {
	if e.empty(l, "etc precision") {
		return 0, nil
	}
	r, err := replay.NewReplayer(an, e.replayParameters())
	if err != nil {
		return 0, err
	}
	var acc escaping
	var visit func(n *pmpt.Node, run *replay.Run) error
	visit = func(n *pmpt.Node, run *replay.Run) error {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.CodeContextCanceled, "precision canceled")
		}
		if w := n.Continuing(); w > 0 {
			acc.add(w, r.EnabledLabels(run.Marking()), n.NextActivities())
		}
		for _, c := range n.Children {
			next := run.Clone()
			next.Execute(c.Activity)
			if !next.Fits() {
				continue
			}
			if err := visit(c, next); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(e.prefixTree(l).Root, r.Start()); err != nil {
		return 0, err
	}
	return acc.precision(), nil
}

// AlignETCPrecision computes escaping-edges precision on the states reached
// by optimal alignments. The state of a prefix is the marking after the
// model side of the alignment moves covering it, taken from the first
// trace having the prefix whose alignment succeeded.
func (e *Evaluator) AlignETCPrecision(ctx context.Context, an *petri.AcceptingNet, l *eventlog.EventLog) (float64, error) {
	if e.empty(l, "align-etc precision") {
		return 0, nil
	}
	res, err := align.Log(ctx, an, l, e.alignParameters())
	if err != nil {
		return 0, err
	}
	r, err := replay.NewReplayer(an, e.replayParameters())
	if err != nil {
		return 0, err
	}
	var acc escaping
	var visit func(n *pmpt.Node)
	visit = func(n *pmpt.Node) {
		moves, ok := alignedMoves(n, res)
		if !ok {
			return
		}
		if w := n.Continuing(); w > 0 {
			m := markingAfter(an.Net, an.Initial, moves, n.Depth)
			acc.add(w, r.EnabledLabels(m), n.NextActivities())
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(e.prefixTree(l).Root)
	return acc.precision(), nil
}

func alignedMoves(n *pmpt.Node, res *align.Result) ([]align.Move, bool) {
	it := n.Cases.Iterator()
	for it.HasNext() {
		i := int(it.Next())
		if i >= len(res.Traces) {
			break
		}
		if t := res.Traces[i]; t != nil && t.Err == nil && t.Alignment != nil {
			return t.Alignment.Moves, true
		}
	}
	return nil, false
}

// markingAfter fires the model side of the moves up to the k-th move with
// a log side.
func markingAfter(n *petri.Net, m petri.Marking, moves []align.Move, k int) petri.Marking {
	m = m.Clone()
	for _, mv := range moves {
		if k == 0 {
			break
		}
		if mv.Kind != align.LogMove {
			m, _ = n.WeakExecute(mv.Transition, m)
		}
		if mv.Kind != align.ModelMove {
			k--
		}
	}
	return m
}
