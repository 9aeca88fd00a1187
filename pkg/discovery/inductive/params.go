// Package inductive implements the Inductive Miner family: IM on logs, IMf
// with infrequent-behavior filtering and IMd on directly-follows graphs.
// Every variant returns a process tree and never fails on well-formed
// input: when no cut or fall-through applies the flower model is returned.
package inductive

import (
	"fmt"

	"github.com/logflow/pmcore/pkg/config"
	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/eventlog"
)

// Variant selects the miner.
type Variant int

const (
	// IM is the plain Inductive Miner on logs.
	IM Variant = iota
	// IMf filters infrequent directly-follows behavior.
	IMf
	// IMd works on a directly-follows graph only.
	IMd
)

var variantNames = map[Variant]string{IM: "im", IMf: "imf", IMd: "imd"}

func (v Variant) String() string {
	if s, ok := variantNames[v]; ok {
		return s
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// ParseVariant resolves a variant name.
func ParseVariant(s string) (Variant, error) {
	for v, name := range variantNames {
		if name == s {
			return v, nil
		}
	}
	return IM, errors.InvalidParameter("variant", s, "unknown inductive miner variant")
}

// Parameters configure discovery.
type Parameters struct {
	Variant Variant
	// NoiseThreshold in [0,1] drives IMf filtering; IMd applies it to the
	// input graph once. Plain IM rejects a non-zero value.
	NoiseThreshold float64 `validate:"gte=0,lte=1"`
	ActivityKey    string
}

// DefaultParameters returns IM over concept:name.
func DefaultParameters() Parameters {
	return Parameters{Variant: IM, ActivityKey: eventlog.KeyActivity}
}

// Validate checks ranges and rejects parameters the variant does not use.
func (p Parameters) Validate() error {
	if _, ok := variantNames[p.Variant]; !ok {
		return errors.InvalidParameter("variant", int(p.Variant), "unknown inductive miner variant")
	}
	if err := config.Validate(p); err != nil {
		return err
	}
	if p.Variant == IM && p.NoiseThreshold != 0 {
		return errors.Inapplicable("noise_threshold", p.Variant.String())
	}
	return nil
}

func (p Parameters) activityKey() string {
	if p.ActivityKey == "" {
		return eventlog.KeyActivity
	}
	return p.ActivityKey
}
