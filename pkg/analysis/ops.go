package analysis

import (
	"context"
	"strings"

	"github.com/logflow/pmcore/pkg/align"
	"github.com/logflow/pmcore/pkg/discovery/alpha"
	"github.com/logflow/pmcore/pkg/discovery/heuristics"
	"github.com/logflow/pmcore/pkg/discovery/inductive"
	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/evaluation"
	"github.com/logflow/pmcore/pkg/eventlog"
	"github.com/logflow/pmcore/pkg/footprints"
	"github.com/logflow/pmcore/pkg/interfaces"
	"github.com/logflow/pmcore/pkg/logskeleton"
	"github.com/logflow/pmcore/pkg/parser"
	"github.com/logflow/pmcore/pkg/petri"
	"github.com/logflow/pmcore/pkg/ptree"
	"github.com/logflow/pmcore/pkg/replay"
)

// Algorithm selects a discovery algorithm.
type Algorithm int

const (
	Inductive Algorithm = iota
	InductiveInfrequent
	InductiveDFG
	Alpha
	AlphaPlus
	Heuristics
	HeuristicsPlus
)

var algorithmNames = []string{
	Inductive:           "inductive",
	InductiveInfrequent: "inductive_infrequent",
	InductiveDFG:        "inductive_dfg",
	Alpha:               "alpha",
	AlphaPlus:           "alpha_plus",
	Heuristics:          "heuristics",
	HeuristicsPlus:      "heuristics_plus",
}

func (a Algorithm) String() string {
	if a >= 0 && int(a) < len(algorithmNames) {
		return algorithmNames[a]
	}
	return "unknown"
}

// Algorithms lists the algorithm names ParseAlgorithm accepts.
func Algorithms() []string {
	return append([]string(nil), algorithmNames...)
}

// ParseAlgorithm resolves an algorithm name. The inductive variant names
// im, imf and imd are accepted as aliases.
func ParseAlgorithm(s string) (Algorithm, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "im":
		return Inductive, nil
	case "imf":
		return InductiveInfrequent, nil
	case "imd":
		return InductiveDFG, nil
	}
	for i, name := range algorithmNames {
		if name == s {
			return Algorithm(i), nil
		}
	}
	return Inductive, errors.InvalidParameter("algorithm", s, "unknown discovery algorithm").
		WithContext("available", strings.Join(algorithmNames, ", "))
}

// Model is a discovered model. Net is always set; Tree only for the
// inductive miners and Heuristics only for the heuristics miners.
type Model struct {
	Algorithm  Algorithm
	Net        *petri.AcceptingNet
	Tree       *ptree.Tree
	Heuristics *heuristics.Net
}

// ReadLog parses the log at path with the configured attribute keys.
func (c *Context) ReadLog(ctx context.Context, path string) (*eventlog.EventLog, error) {
	tags := c.tags("parse", interfaces.TagFormat, parser.FormatFromPath(path).String())
	ctx, end := c.observe(ctx, interfaces.SpanParse, interfaces.MetricParseDuration, tags)
	l, err := parser.ReadFile(ctx, path, parser.ConfigFromLog(c.Config.Log, c.Logger))
	end(err)
	if err != nil {
		return nil, err
	}
	c.Metrics.Counter(interfaces.MetricParseTraces, int64(l.Len()), tags)
	c.Metrics.Counter(interfaces.MetricParseEvents, int64(l.EventCount()), tags)
	return l, nil
}

// Discover mines a model from l.
func (c *Context) Discover(ctx context.Context, l *eventlog.EventLog, algo Algorithm) (*Model, error) {
	tags := c.tags("discover", interfaces.TagAlgorithm, algo.String())
	_, end := c.observe(ctx, interfaces.SpanDiscover, interfaces.MetricDiscoveryDuration, tags)
	m, err := c.discover(l, algo)
	end(err)
	if err != nil {
		return nil, err
	}
	c.Metrics.Gauge(interfaces.MetricModelTransitions, float64(m.Net.Net.NumTransitions()), tags)
	c.Metrics.Gauge(interfaces.MetricModelPlaces, float64(m.Net.Net.NumPlaces()), tags)
	c.Logger.Printf("discovered %s model: %d places, %d transitions, %d arcs",
		algo, m.Net.Net.NumPlaces(), m.Net.Net.NumTransitions(), m.Net.Net.NumArcs())
	return m, nil
}

func (c *Context) discover(l *eventlog.EventLog, algo Algorithm) (*Model, error) {
	m := &Model{Algorithm: algo}
	switch algo {
	case Inductive, InductiveInfrequent, InductiveDFG:
		p := inductive.Parameters{Variant: inductive.IM, ActivityKey: c.Keys.Activity}
		var (
			tree *ptree.Tree
			err  error
		)
		switch algo {
		case InductiveInfrequent:
			p.Variant = inductive.IMf
			p.NoiseThreshold = c.Config.Discovery.NoiseThreshold
			tree, err = inductive.Discover(l, p)
		case InductiveDFG:
			p.Variant = inductive.IMd
			p.NoiseThreshold = c.Config.Discovery.NoiseThreshold
			tree, err = inductive.DiscoverDFG(c.DFG(l), p)
		default:
			tree, err = inductive.Discover(l, p)
		}
		if err != nil {
			return nil, err
		}
		an, err := ptree.ToPetriNet(tree)
		if err != nil {
			return nil, err
		}
		m.Tree, m.Net = tree, an
	case Alpha, AlphaPlus:
		p := alpha.Parameters{Variant: alpha.Classic, ActivityKey: c.Keys.Activity}
		if algo == AlphaPlus {
			p.Variant = alpha.Plus
		}
		an, err := alpha.Discover(l, p)
		if err != nil {
			return nil, err
		}
		m.Net = an
	case Heuristics, HeuristicsPlus:
		p := heuristics.ParametersFromConfig(c.Config)
		var (
			hn  *heuristics.Net
			err error
		)
		if algo == HeuristicsPlus {
			hn, err = heuristics.DiscoverPlus(l, p)
		} else {
			hn, err = heuristics.Discover(l, p)
		}
		if err != nil {
			return nil, err
		}
		m.Heuristics, m.Net = hn, hn.ToPetriNet()
	default:
		return nil, errors.InvalidParameter("algorithm", algo.String(), "unknown discovery algorithm")
	}
	return m, nil
}

// Replay runs token-based replay of l on an.
func (c *Context) Replay(ctx context.Context, an *petri.AcceptingNet, l *eventlog.EventLog) (*replay.Result, error) {
	tags := c.tags("replay")
	ctx, end := c.observe(ctx, interfaces.SpanReplay, interfaces.MetricReplayDuration, tags)
	res, err := replay.Log(ctx, an, l, replay.ParametersFromConfig(c.Config))
	end(err)
	if err != nil {
		return nil, err
	}
	c.Metrics.Counter(interfaces.MetricReplayTraces, int64(len(res.Traces)), tags)
	c.Metrics.Gauge(interfaces.MetricReplayFitness, res.Fitness(), tags)
	return res, nil
}

// Align computes an optimal alignment for every trace of l. Traces whose
// search failed carry their error in the result.
func (c *Context) Align(ctx context.Context, an *petri.AcceptingNet, l *eventlog.EventLog) (*align.Result, error) {
	p, err := align.ParametersFromConfig(c.Config)
	if err != nil {
		return nil, err
	}
	tags := c.tags("align", interfaces.TagVariant, p.Variant.String())
	ctx, end := c.observe(ctx, interfaces.SpanAlign, interfaces.MetricAlignDuration, tags)
	res, err := align.Log(ctx, an, l, p)
	end(err)
	if err != nil {
		return nil, err
	}
	var visited, solves int
	for _, t := range res.Traces {
		if t.Alignment == nil {
			continue
		}
		visited += t.Alignment.Stats.Visited
		solves += t.Alignment.Stats.LPSolves
		c.Metrics.Histogram(interfaces.MetricAlignCost, t.Alignment.Cost, tags)
	}
	c.Metrics.Counter(interfaces.MetricAlignTraces, int64(len(res.Traces)), tags)
	c.Metrics.Counter(interfaces.MetricAlignFailed, int64(res.Failed()), tags)
	c.Metrics.Counter(interfaces.MetricAlignVisited, int64(visited), tags)
	c.Metrics.Counter(interfaces.MetricAlignLPSolves, int64(solves), tags)
	if n := res.Failed(); n > 0 {
		c.Logger.Printf("alignment failed for %d of %d traces", n, len(res.Traces))
	}
	return res, nil
}

// Evaluate computes the quality report of an over l.
func (c *Context) Evaluate(ctx context.Context, an *petri.AcceptingNet, l *eventlog.EventLog) (*evaluation.Report, error) {
	ev, err := evaluation.FromConfig(c.Config, c.Logger)
	if err != nil {
		return nil, err
	}
	tags := c.tags("evaluate")
	ctx, end := c.observe(ctx, interfaces.SpanEvaluate, interfaces.MetricEvalDuration, tags)
	rep, err := ev.Evaluate(ctx, an, l)
	end(err)
	if err != nil {
		return nil, err
	}
	c.Metrics.Gauge(interfaces.MetricEvalFitness, rep.Fitness.Log, tags)
	c.Metrics.Gauge(interfaces.MetricEvalPrecision, rep.Precision, tags)
	c.Metrics.Gauge(interfaces.MetricEvalGeneralization, rep.Generalization, tags)
	return rep, nil
}

// CompareFootprints checks the footprints of l against those of the
// language of an.
func (c *Context) CompareFootprints(ctx context.Context, an *petri.AcceptingNet, l *eventlog.EventLog) (*footprints.Deviations, error) {
	_, end := c.observe(ctx, interfaces.SpanFootprints, interfaces.MetricEvalDuration, c.tags("footprints"))
	model, err := footprints.FromNet(an, 0)
	end(err)
	if err != nil {
		return nil, err
	}
	return footprints.Compare(c.Footprints(l), model), nil
}

// Skeleton discovers a log skeleton from l and checks l against it.
func (c *Context) Skeleton(ctx context.Context, l *eventlog.EventLog) (*logskeleton.Skeleton, *logskeleton.Result, error) {
	ctx, end := c.observe(ctx, interfaces.SpanSkeleton, interfaces.MetricEvalDuration, c.tags("skeleton"))
	p := logskeleton.ParametersFromConfig(c.Config)
	sk, err := logskeleton.Discover(l, p)
	if err != nil {
		end(err)
		return nil, nil, err
	}
	res, err := logskeleton.Check(ctx, l, sk, p)
	end(err)
	if err != nil {
		return nil, nil, err
	}
	return sk, res, nil
}
