package footprints

import (
	"github.com/logflow/pmcore/pkg/dfg"
)

// Deviations lists where observed footprints exceed the model's.
type Deviations struct {
	// Relations are sequence or parallel pairs the model never exhibits.
	Relations []Pair
	// Start and End are observed start or end activities the model does
	// not start or end with.
	Start []string
	End   []string
	// Activities are observed activities unknown to the model.
	Activities []string
	// Absent are activities the model always executes that the observed
	// behavior lacks. Only filled for single traces.
	Absent []string
	// MinLengthFit is false when observed behavior is shorter than the
	// shortest model run.
	MinLengthFit bool
}

// FootprintsFit reports whether every observed relation is allowed.
func (d *Deviations) FootprintsFit() bool {
	return len(d.Relations) == 0
}

// Conforms reports whether no deviation of any kind was found.
func (d *Deviations) Conforms() bool {
	return len(d.Relations) == 0 && len(d.Start) == 0 && len(d.End) == 0 &&
		len(d.Activities) == 0 && len(d.Absent) == 0 && d.MinLengthFit
}

// Compare checks observed footprints against model footprints.
func Compare(observed, model *Footprints) *Deviations {
	allowed := model.Relations()
	d := &Deviations{MinLengthFit: observed.MinTraceLength >= model.MinTraceLength}
	for _, p := range sortedPairs(observed.Relations()) {
		if !allowed[p] {
			d.Relations = append(d.Relations, p)
		}
	}
	d.Start = missingFrom(observed.Start, model.Start)
	d.End = missingFrom(observed.End, model.End)
	d.Activities = missingFrom(observed.Activities, model.Activities)
	return d
}

// CompareTraces checks each per-trace footprint against the model and also
// reports always-happening model activities missing from the trace.
func CompareTraces(traces []*Footprints, model *Footprints) []*Deviations {
	out := make([]*Deviations, len(traces))
	for i, tr := range traces {
		d := Compare(tr, model)
		d.Absent = missingFrom(model.AlwaysHappening, tr.Activities)
		out[i] = d
	}
	return out
}

func missingFrom(have, allowed map[string]bool) []string {
	var out []string
	for _, a := range sortedKeys(have) {
		if !allowed[a] {
			out = append(out, a)
		}
	}
	return out
}

// Fitness is the share of directly-follows occurrences in g whose pair the
// model allows. A graph without edges fits perfectly.
func Fitness(g *dfg.Graph, model *Footprints) float64 {
	allowed := model.Relations()
	total, fit := 0, 0
	for e, c := range g.Edges {
		total += c
		if allowed[Pair{e.From, e.To}] {
			fit += c
		}
	}
	if total == 0 {
		return 1
	}
	return float64(fit) / float64(total)
}

// Precision is the share of model relations that were observed. A model
// without relations is perfectly precise.
func Precision(observed, model *Footprints) float64 {
	modelRel := model.Relations()
	if len(modelRel) == 0 {
		return 1
	}
	seen := observed.Relations()
	shared := 0
	for p := range modelRel {
		if seen[p] {
			shared++
		}
	}
	return float64(shared) / float64(len(modelRel))
}
