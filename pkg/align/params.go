// Package align computes optimal alignments between traces and accepting
// Petri nets.
//
// An alignment pairs every event of a trace with a transition of the model
// (synchronous move), with nothing (log move), or leaves a model transition
// unmatched (model move). The search runs over the markings of the
// synchronous product of the trace and the net. The default variant is A*
// with the marking-equation heuristic, solved as a linear relaxation with
// gonum's simplex.
package align

import (
	"strings"
	"time"

	"github.com/logflow/pmcore/pkg/config"
	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/eventlog"
	"github.com/logflow/pmcore/pkg/petri"
)

// Variant selects the search strategy.
type Variant int

const (
	// AStar uses the marking-equation heuristic.
	AStar Variant = iota
	// Dijkstra searches with a zero heuristic.
	Dijkstra
	// DijkstraLowMemory is Dijkstra that keeps only hashed markings of
	// expanded states and drops their markings.
	DijkstraLowMemory
	// Discounted decays move costs geometrically with their depth.
	Discounted
)

var variantNames = [...]string{"astar", "dijkstra", "dijkstra_low_memory", "discounted"}

func (v Variant) String() string {
	if int(v) < 0 || int(v) >= len(variantNames) {
		return "unknown"
	}
	return variantNames[v]
}

// ParseVariant maps a configuration name to a variant.
func ParseVariant(s string) (Variant, error) {
	for i, name := range variantNames {
		if strings.EqualFold(s, name) {
			return Variant(i), nil
		}
	}
	return 0, errors.InvalidParameter("variant", s, "unknown alignment variant")
}

const (
	defaultExponent     = 1.1
	defaultMarkingLimit = 1
	defaultMaxStates    = 1 << 20
)

// Parameters configure alignment search.
type Parameters struct {
	Variant Variant `validate:"gte=0,lte=3"`

	SyncCost      float64 `validate:"gte=0"`
	LogMoveCost   float64 `validate:"gte=0"`
	ModelMoveCost float64 `validate:"gte=0"`
	// SilentCost is the cost of a model move on a silent transition. A small
	// positive value prefers alignments with fewer silent steps.
	SilentCost float64 `validate:"gte=0"`

	// LogMoveCosts overrides LogMoveCost per activity.
	LogMoveCosts map[string]float64 `validate:"omitempty,dive,gte=0"`
	// ModelMoveCosts overrides the model move cost per transition.
	ModelMoveCosts map[petri.TransitionID]float64 `validate:"omitempty,dive,gte=0"`

	// Exponent is the discount factor θ of the discounted variant.
	Exponent float64 `validate:"omitempty,gt=1"`
	// MarkingLimit bounds the tokens per model place explored by the
	// discounted variant and by multi- and anti-alignments.
	MarkingLimit int `validate:"gte=0"`

	// Timeout bounds the search of one trace; zero means no deadline.
	Timeout time.Duration `validate:"gte=0"`
	// MaxStates bounds the expanded states per trace; zero selects the
	// default.
	MaxStates int `validate:"gte=0"`
	// Workers aligns variants, or the components of a decomposed
	// alignment, concurrently when above one.
	Workers int `validate:"gte=0"`
	// BorderThreshold is the number of border disagreements a decomposed
	// alignment tolerates before merging components.
	BorderThreshold int `validate:"gte=0"`

	ActivityKey string
}

// DefaultParameters returns the A* variant with the standard costs.
func DefaultParameters() Parameters {
	return Parameters{
		Variant:       AStar,
		LogMoveCost:   1,
		ModelMoveCost: 1,
	}
}

// DiscountedParameters returns the discounted variant with the default
// exponent and marking limit.
func DiscountedParameters() Parameters {
	p := DefaultParameters()
	p.Variant = Discounted
	p.Exponent = defaultExponent
	p.MarkingLimit = defaultMarkingLimit
	return p
}

// ParametersFromConfig maps the alignment section of a configuration. The
// exponent and marking limit are only carried for the discounted variant.
func ParametersFromConfig(cfg *config.Config) (Parameters, error) {
	a := cfg.Alignment
	v, err := ParseVariant(a.Variant)
	if err != nil {
		return Parameters{}, err
	}
	p := Parameters{
		Variant:       v,
		SyncCost:      a.SyncCost,
		LogMoveCost:   a.LogMoveCost,
		ModelMoveCost: a.ModelMoveCost,
		SilentCost:    a.SilentCost,
		Timeout:       a.Timeout,
		Workers:       a.Workers,
		ActivityKey:   eventlog.KeysFromConfig(cfg.Log).Activity,
	}
	if v == Discounted {
		p.Exponent = a.Exponent
		p.MarkingLimit = a.MarkingLimit
	}
	return p, p.Validate()
}

// Validate checks the parameter domains and rejects discount settings on
// variants that ignore them.
func (p Parameters) Validate() error {
	if err := config.Validate(p); err != nil {
		return err
	}
	if p.Variant != Discounted {
		if p.Exponent != 0 {
			return errors.Inapplicable("exponent", p.Variant.String())
		}
		if p.MarkingLimit != 0 {
			return errors.Inapplicable("marking_limit", p.Variant.String())
		}
	}
	return nil
}

func (p Parameters) withDefaults() Parameters {
	if p.Variant == Discounted {
		if p.Exponent == 0 {
			p.Exponent = defaultExponent
		}
		if p.MarkingLimit == 0 {
			p.MarkingLimit = defaultMarkingLimit
		}
	}
	if p.MaxStates == 0 {
		p.MaxStates = defaultMaxStates
	}
	if p.ActivityKey == "" {
		p.ActivityKey = eventlog.KeyActivity
	}
	return p
}

func (p Parameters) logCost(activity string) float64 {
	if c, ok := p.LogMoveCosts[activity]; ok {
		return c
	}
	return p.LogMoveCost
}

func (p Parameters) modelCost(n *petri.Net, t petri.TransitionID) float64 {
	if c, ok := p.ModelMoveCosts[t]; ok {
		return c
	}
	if n.Transition(t).IsSilent() {
		return p.SilentCost
	}
	return p.ModelMoveCost
}
