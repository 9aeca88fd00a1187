package eventlog

import (
	"log"
	"sort"
	"time"

	"github.com/caio/go-tdigest/v4"

	"github.com/logflow/pmcore/pkg/errors"
)

// PerformanceOptions controls lead/cycle time enrichment.
type PerformanceOptions struct {
	Keys Keys
	// BusinessHours restricts all durations to working slots when set.
	BusinessHours *BusinessHours
}

type span struct {
	from, to time.Time
}

// AssignLeadCycleTime returns a copy of the interval log where every event
// carries the running lead time, cycle time and wasted time of its case, in
// seconds. Lead time spans from the earliest start to the latest completion
// seen so far; cycle time is the measure of the union of event intervals so
// far, so it never exceeds lead time. Each event additionally gets the idle
// time between the previous completions and its own start. Traces receive
// the final values as trace attributes.
func AssignLeadCycleTime(l *EventLog, opts PerformanceOptions) *EventLog {
	keys := opts.Keys
	startKey := keys.startKey()
	measure := wallClock
	if opts.BusinessHours != nil {
		measure = opts.BusinessHours.Duration
	}

	out := l.Clone()
	for _, t := range out.Traces {
		var (
			union   []span
			minFrom time.Time
			maxTo   time.Time
			lead    float64
			cycle   float64
		)
		for i := range t.Events {
			attrs := t.Events[i].Attributes
			to, ok := attrs.Time(keys.Timestamp)
			if !ok {
				continue
			}
			from, ok := attrs.Time(startKey)
			if !ok || from.After(to) {
				from = to
			}

			idle := 0.0
			if i > 0 && from.After(maxTo) {
				idle = measure(maxTo, from)
			}
			if minFrom.IsZero() || from.Before(minFrom) {
				minFrom = from
			}
			if to.After(maxTo) {
				maxTo = to
			}
			union = addSpan(union, span{from, to})

			lead = measure(minFrom, maxTo)
			cycle = 0
			for _, s := range union {
				cycle += measure(s.from, s.to)
			}
			if cycle > lead {
				cycle = lead
			}
			attrs[KeyLeadTime] = lead
			attrs[KeyCycleTime] = cycle
			attrs[KeyWastedTime] = lead - cycle
			attrs[KeyEventWasted] = idle
		}
		if t.Attributes == nil {
			t.Attributes = Attributes{}
		}
		t.Attributes[KeyLeadTime] = lead
		t.Attributes[KeyCycleTime] = cycle
		t.Attributes[KeyWastedTime] = lead - cycle
	}
	return out
}

// addSpan inserts s into a sorted list of disjoint spans, merging overlaps.
func addSpan(spans []span, s span) []span {
	out := make([]span, 0, len(spans)+1)
	inserted := false
	for _, cur := range spans {
		switch {
		case cur.to.Before(s.from):
			out = append(out, cur)
		case s.to.Before(cur.from):
			if !inserted {
				out = append(out, s)
				inserted = true
			}
			out = append(out, cur)
		default:
			if cur.from.Before(s.from) {
				s.from = cur.from
			}
			if cur.to.After(s.to) {
				s.to = cur.to
			}
		}
	}
	if !inserted {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].from.Before(out[j].from) })
	return out
}

// Quantiles summarizes a duration distribution in seconds.
type Quantiles struct {
	Count  uint64
	Min    float64
	P50    float64
	P90    float64
	P99    float64
	Max    float64
	Mean   float64
	digest *tdigest.TDigest
}

// Quantile returns an arbitrary quantile of the summarized distribution.
func (q *Quantiles) Quantile(p float64) float64 {
	if q.digest == nil {
		return 0
	}
	return q.digest.Quantile(p)
}

// PerformanceSummary aggregates case-level durations of an enriched log.
type PerformanceSummary struct {
	CaseDuration Quantiles
	LeadTime     Quantiles
	CycleTime    Quantiles
	WastedTime   Quantiles
}

// SummarizePerformance builds t-digest summaries over the traces of a log
// produced by AssignLeadCycleTime. Case duration is measured from the first
// to the last completion timestamp. An empty log yields an EmptyAggregation
// error.
func SummarizePerformance(l *EventLog, keys Keys, logger *log.Logger) (*PerformanceSummary, error) {
	if l.Len() == 0 {
		if logger != nil {
			logger.Printf("warning: performance summary over an empty log")
		}
		return nil, errors.EmptyAggregation("performance")
	}
	durations := newQuantileBuilder()
	leads := newQuantileBuilder()
	cycles := newQuantileBuilder()
	wasted := newQuantileBuilder()

	for _, t := range l.Traces {
		if len(t.Events) > 0 {
			first, ok1 := t.Events[0].Attributes.Time(keys.Timestamp)
			last, ok2 := t.Events[len(t.Events)-1].Attributes.Time(keys.Timestamp)
			if ok1 && ok2 {
				durations.add(wallClock(first, last))
			}
		}
		if v, ok := t.Attributes.Float(KeyLeadTime); ok {
			leads.add(v)
		}
		if v, ok := t.Attributes.Float(KeyCycleTime); ok {
			cycles.add(v)
		}
		if v, ok := t.Attributes.Float(KeyWastedTime); ok {
			wasted.add(v)
		}
	}
	return &PerformanceSummary{
		CaseDuration: durations.build(),
		LeadTime:     leads.build(),
		CycleTime:    cycles.build(),
		WastedTime:   wasted.build(),
	}, nil
}

type quantileBuilder struct {
	digest   *tdigest.TDigest
	min, max float64
	sum      float64
	n        uint64
}

func newQuantileBuilder() *quantileBuilder {
	d, _ := tdigest.New()
	return &quantileBuilder{digest: d}
}

func (b *quantileBuilder) add(v float64) {
	if err := b.digest.Add(v); err != nil {
		return
	}
	if b.n == 0 || v < b.min {
		b.min = v
	}
	if b.n == 0 || v > b.max {
		b.max = v
	}
	b.sum += v
	b.n++
}

func (b *quantileBuilder) build() Quantiles {
	q := Quantiles{Count: b.n, digest: b.digest}
	if b.n == 0 {
		return q
	}
	q.Min = b.min
	q.Max = b.max
	q.Mean = b.sum / float64(b.n)
	q.P50 = b.digest.Quantile(0.5)
	q.P90 = b.digest.Quantile(0.9)
	q.P99 = b.digest.Quantile(0.99)
	return q
}
