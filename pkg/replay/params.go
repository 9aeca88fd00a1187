// Package replay implements token-based replay of event logs on accepting
// Petri nets.
//
// Each event fires a transition carrying its activity label. When none is
// enabled, a bounded breadth-first search over silent transitions looks for
// the shortest silent path enabling one; failing that, the missing tokens
// are fabricated and counted. After the last event the replayer tries to
// reach the final marking through silent transitions, consumes it and
// counts what is left over.
package replay

import (
	"github.com/logflow/pmcore/pkg/config"
	"github.com/logflow/pmcore/pkg/eventlog"
)

const (
	defaultMaxSilentSteps  = 32
	defaultMaxSilentStates = 4096
)

// Parameters configure replay. Zero bounds select the defaults.
type Parameters struct {
	// MaxSilentSteps bounds the length of a silent path.
	MaxSilentSteps int `validate:"gte=0"`
	// MaxSilentStates bounds the markings visited by one silent search.
	MaxSilentStates int `validate:"gte=0"`
	// Workers replays variants concurrently when above one.
	Workers int `validate:"gte=0"`
	// Backward replays reversed traces on the reversed net.
	Backward    bool
	ActivityKey string
}

// DefaultParameters returns sequential replay with the default bounds.
func DefaultParameters() Parameters {
	return Parameters{
		MaxSilentSteps:  defaultMaxSilentSteps,
		MaxSilentStates: defaultMaxSilentStates,
	}
}

// ParametersFromConfig maps the replay section of a configuration.
func ParametersFromConfig(cfg *config.Config) Parameters {
	return Parameters{
		MaxSilentSteps:  cfg.Replay.MaxSilentSteps,
		MaxSilentStates: cfg.Replay.MaxSilentStates,
		Workers:         cfg.Replay.Workers,
		ActivityKey:     eventlog.KeysFromConfig(cfg.Log).Activity,
	}
}

func (p Parameters) withDefaults() Parameters {
	if p.MaxSilentSteps == 0 {
		p.MaxSilentSteps = defaultMaxSilentSteps
	}
	if p.MaxSilentStates == 0 {
		p.MaxSilentStates = defaultMaxSilentStates
	}
	if p.ActivityKey == "" {
		p.ActivityKey = eventlog.KeyActivity
	}
	return p
}
