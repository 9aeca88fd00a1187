// Package evaluation scores an accepting Petri net against an event log
// along the four quality dimensions of process mining: fitness, precision,
// generalization and simplicity.
//
// Aggregations over an empty log return zero scores and log a warning
// instead of failing.
package evaluation

import (
	"context"
	"log"
	"os"

	"github.com/logflow/pmcore/pkg/align"
	"github.com/logflow/pmcore/pkg/config"
	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/eventlog"
	"github.com/logflow/pmcore/pkg/petri"
	"github.com/logflow/pmcore/pkg/replay"
)

// Evaluator computes quality metrics with fixed replay and alignment
// parameters.
type Evaluator struct {
	Replay replay.Parameters
	Align  align.Parameters
	// Logger receives empty-aggregation warnings. Nil uses a default
	// logger writing to stderr.
	Logger *log.Logger
}

// NewEvaluator returns an evaluator with default parameters.
func NewEvaluator(logger *log.Logger) *Evaluator {
	return &Evaluator{
		Replay: replay.DefaultParameters(),
		Align:  align.DefaultParameters(),
		Logger: logger,
	}
}

// FromConfig builds an evaluator from the replay and alignment sections
// of cfg.
func FromConfig(cfg *config.Config, logger *log.Logger) (*Evaluator, error) {
	ap, err := align.ParametersFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Evaluator{
		Replay: replay.ParametersFromConfig(cfg),
		Align:  ap,
		Logger: logger,
	}, nil
}

func (e *Evaluator) logger() *log.Logger {
	if e.Logger == nil {
		e.Logger = log.New(os.Stderr, "[pmcore] ", log.LstdFlags)
	}
	return e.Logger
}

func (e *Evaluator) activityKey() string {
	switch {
	case e.Replay.ActivityKey != "":
		return e.Replay.ActivityKey
	case e.Align.ActivityKey != "":
		return e.Align.ActivityKey
	}
	return eventlog.KeyActivity
}

// replayParameters returns forward replay parameters reading the
// evaluator's activity key.
func (e *Evaluator) replayParameters() replay.Parameters {
	p := e.Replay
	p.Backward = false
	p.ActivityKey = e.activityKey()
	return p
}

func (e *Evaluator) alignParameters() align.Parameters {
	p := e.Align
	p.ActivityKey = e.activityKey()
	return p
}

// empty logs the warning for an aggregation over no traces and reports
// whether l is empty.
func (e *Evaluator) empty(l *eventlog.EventLog, metric string) bool {
	if l != nil && len(l.Traces) > 0 {
		return false
	}
	e.logger().Printf("warning: %v", errors.EmptyAggregation(metric))
	return true
}

// Report combines the four quality dimensions.
type Report struct {
	Fitness        Fitness
	Precision      float64
	Generalization float64
	Simplicity     Simplicity
	// FScore is the harmonic mean of log fitness and precision.
	FScore float64
	// Average is the mean of log fitness, precision, generalization and
	// arc-degree simplicity.
	Average float64
}

// Evaluate computes token-based fitness, ETC precision, generalization
// and simplicity. The log is replayed once for fitness and
// generalization.
func (e *Evaluator) Evaluate(ctx context.Context, an *petri.AcceptingNet, l *eventlog.EventLog) (*Report, error) {
	rep := &Report{Simplicity: SimplicityOf(an)}
	if e.empty(l, "evaluation") {
		return rep, nil
	}
	res, err := replay.Log(ctx, an, l, e.replayParameters())
	if err != nil {
		return nil, err
	}
	rep.Fitness = tokenFitness(res)
	rep.Generalization = generalization(an.Net, res.Diagnostics)

	if rep.Precision, err = e.ETCPrecision(ctx, an, l); err != nil {
		return nil, err
	}
	f, p := rep.Fitness.Log, rep.Precision
	if f+p > 0 {
		rep.FScore = 2 * f * p / (f + p)
	}
	rep.Average = (f + p + rep.Generalization + rep.Simplicity.ArcDegree) / 4
	return rep, nil
}
