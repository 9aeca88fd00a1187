// Package heuristics implements the Heuristics Miner on sequence logs and
// its interval variant, together with the conversion of heuristics nets to
// Petri nets.
package heuristics

import (
	"github.com/logflow/pmcore/pkg/config"
	"github.com/logflow/pmcore/pkg/eventlog"
)

// Parameters configure discovery.
type Parameters struct {
	DependencyThreshold float64 `validate:"gte=-1,lte=1"`
	AndThreshold        float64 `validate:"gte=0"`
	LoopTwoThreshold    float64 `validate:"gte=0,lte=1"`
	MinDFGOccurrences   int     `validate:"gte=0"`
	// AllConnected gives every activity without a retained input (output)
	// its best-scoring one.
	AllConnected bool
	// Keys defaults to the XES standard keys when the activity key is empty.
	Keys eventlog.Keys `validate:"-"`
}

// DefaultParameters returns the usual thresholds.
func DefaultParameters() Parameters {
	return Parameters{
		DependencyThreshold: 0.5,
		AndThreshold:        0.65,
		LoopTwoThreshold:    0.5,
		MinDFGOccurrences:   1,
		AllConnected:        true,
		Keys:                eventlog.DefaultKeys(),
	}
}

// ParametersFromConfig maps the discovery section of a configuration.
func ParametersFromConfig(cfg *config.Config) Parameters {
	p := DefaultParameters()
	p.DependencyThreshold = cfg.Discovery.DependencyThreshold
	p.AndThreshold = cfg.Discovery.AndThreshold
	p.LoopTwoThreshold = cfg.Discovery.LoopTwoThreshold
	p.MinDFGOccurrences = cfg.Discovery.MinDFGOccurrences
	p.Keys = eventlog.KeysFromConfig(cfg.Log)
	return p
}

// Validate checks threshold ranges.
func (p Parameters) Validate() error {
	return config.Validate(p)
}

func (p Parameters) keys() eventlog.Keys {
	if p.Keys.Activity == "" {
		return eventlog.DefaultKeys()
	}
	return p.Keys
}
