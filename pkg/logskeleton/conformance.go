package logskeleton

import (
	"context"
	"sort"

	"github.com/logflow/pmcore/pkg/config"
	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/eventlog"
)

// Deviation is one violated constraint. For ActivityFrequency, A is the
// activity, B is empty and Count holds the offending number of occurrences.
type Deviation struct {
	Constraint Constraint
	A, B       string
	Count      int
}

// TraceResult is the outcome of checking one trace.
type TraceResult struct {
	Deviations []Deviation
	// Checks is the number of constraint checks that applied to the trace.
	Checks int
}

// Fitness is 1 - deviations/checks, or 1 when nothing applied.
func (r *TraceResult) Fitness() float64 {
	if r.Checks == 0 {
		return 1
	}
	return 1 - float64(len(r.Deviations))/float64(r.Checks)
}

// Fits reports whether the trace violated nothing.
func (r *TraceResult) Fits() bool {
	return len(r.Deviations) == 0
}

// Result aggregates trace results.
type Result struct {
	Traces []*TraceResult
}

// Fitness is 1 - total deviations / total checks.
func (r *Result) Fitness() float64 {
	dev, checks := 0, 0
	for _, t := range r.Traces {
		dev += len(t.Deviations)
		checks += t.Checks
	}
	if checks == 0 {
		return 1
	}
	return 1 - float64(dev)/float64(checks)
}

// FitTraces returns the share of traces without deviations.
func (r *Result) FitTraces() float64 {
	if len(r.Traces) == 0 {
		return 0
	}
	fit := 0
	for _, t := range r.Traces {
		if t.Fits() {
			fit++
		}
	}
	return float64(fit) / float64(len(r.Traces))
}

// DeviationCounts counts deviations per constraint family.
func (r *Result) DeviationCounts() map[Constraint]int {
	out := make(map[Constraint]int)
	for _, t := range r.Traces {
		for _, d := range t.Deviations {
			out[d.Constraint]++
		}
	}
	return out
}

// Check runs conformance over every trace of the log, in log order.
func Check(ctx context.Context, l *eventlog.EventLog, sk *Skeleton, p Parameters) (*Result, error) {
	if err := config.Validate(p); err != nil {
		return nil, err
	}
	res := &Result{Traces: make([]*TraceResult, len(l.Traces))}
	key := p.activityKey()
	for i, t := range l.Traces {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrap(err, errors.CodeContextCanceled, "log skeleton conformance canceled")
			}
		}
		res.Traces[i] = sk.CheckTrace(t.Activities(key))
	}
	return res, nil
}

// CheckTrace checks one activity sequence.
func (sk *Skeleton) CheckTrace(s []string) *TraceResult {
	r := &TraceResult{}
	count := counts(s)
	check := func(c Constraint, a, b string, holds bool) {
		r.Checks++
		if !holds {
			r.Deviations = append(r.Deviations, Deviation{Constraint: c, A: a, B: b})
		}
	}

	for _, p := range sortPairs(sk.Equivalence) {
		if count[p.A] > 0 {
			check(Equivalence, p.A, p.B, count[p.A] == count[p.B])
		}
	}
	first := make(map[string]int)
	last := make(map[string]int)
	for i, a := range s {
		if _, ok := first[a]; !ok {
			first[a] = i
		}
		last[a] = i
	}
	for _, p := range sortPairs(sk.AlwaysAfter) {
		if count[p.A] > 0 {
			lb, ok := last[p.B]
			check(AlwaysAfter, p.A, p.B, ok && lb > last[p.A])
		}
	}
	for _, p := range sortPairs(sk.AlwaysBefore) {
		if count[p.A] > 0 {
			fb, ok := first[p.B]
			check(AlwaysBefore, p.A, p.B, ok && fb < first[p.A])
		}
	}
	for _, p := range sortPairs(sk.NeverTogether) {
		if count[p.A] > 0 || count[p.B] > 0 {
			check(NeverTogether, p.A, p.B, count[p.A] == 0 || count[p.B] == 0)
		}
	}

	seen := make(map[Pair]bool)
	for i := 0; i+1 < len(s); i++ {
		pr := Pair{s[i], s[i+1]}
		if seen[pr] {
			continue
		}
		seen[pr] = true
		if _, known := sk.Frequencies[pr.A]; !known {
			continue
		}
		check(DirectlyFollows, pr.A, pr.B, sk.DirectlyFollows[pr])
	}

	for _, a := range sk.Activities() {
		r.Checks++
		if !sk.Frequencies[a][count[a]] {
			r.Deviations = append(r.Deviations, Deviation{Constraint: ActivityFrequency, A: a, Count: count[a]})
		}
	}
	for _, a := range sortedKeys(count) {
		if _, known := sk.Frequencies[a]; !known {
			r.Checks++
			r.Deviations = append(r.Deviations, Deviation{Constraint: ActivityFrequency, A: a, Count: count[a]})
		}
	}
	return r
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
