package writer

import (
	"strings"

	"github.com/logflow/pmcore/pkg/align"
	"github.com/logflow/pmcore/pkg/eventlog"
	"github.com/logflow/pmcore/pkg/replay"
)

// Row is the conformance diagnostics of one trace. The replay and
// alignment columns are null when the corresponding result is absent.
type Row struct {
	CaseID string
	// Variant is the comma-separated activity sequence.
	Variant string
	Events  int

	HasReplay     bool
	ReplayFitness float64
	Missing       int
	Remaining     int
	Consumed      int
	Produced      int

	HasAlignment bool
	AlignFitness float64
	AlignCost    float64
	Deviations   int
	Visited      int

	// Error is the alignment failure, empty when none.
	Error string
}

// Rows joins the trace results of a log. Either result may be nil; a
// non-nil result must hold one entry per trace of l.
func Rows(l *eventlog.EventLog, keys eventlog.Keys, rep *replay.Result, al *align.Result) []Row {
	rows := make([]Row, len(l.Traces))
	for i, t := range l.Traces {
		acts := t.Activities(keys.Activity)
		r := Row{
			CaseID:  t.CaseID(keys.CaseID),
			Variant: strings.Join(acts, ","),
			Events:  len(acts),
		}
		if rep != nil && i < len(rep.Traces) && rep.Traces[i] != nil {
			tr := rep.Traces[i]
			r.HasReplay = true
			r.ReplayFitness = tr.Fitness
			r.Missing, r.Remaining = tr.Missing, tr.Remaining
			r.Consumed, r.Produced = tr.Consumed, tr.Produced
		}
		if al != nil && i < len(al.Traces) && al.Traces[i] != nil {
			tr := al.Traces[i]
			switch {
			case tr.Err != nil:
				r.Error = tr.Err.Error()
			case tr.Alignment != nil:
				r.HasAlignment = true
				r.AlignFitness = tr.Alignment.Fitness
				r.AlignCost = tr.Alignment.Cost
				r.Deviations = len(tr.Alignment.Deviations())
				r.Visited = tr.Alignment.Stats.Visited
			}
		}
		rows[i] = r
	}
	return rows
}
