package heuristics

import (
	"sort"
	"time"

	"github.com/logflow/pmcore/pkg/dfg"
	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/eventlog"
)

type interval struct {
	activity   string
	start, end time.Time
}

// DiscoverPlus mines a heuristics net from an interval log, where every
// event carries a start and a completion timestamp. An execution directly
// follows another when it starts after the other completed and no third
// execution lies entirely in between. Overlapping executions count as
// concurrency: they lower the dependency between the two activities and
// raise their AND measures, weighted by the overlapping share of the
// shorter interval.
func DiscoverPlus(l *eventlog.EventLog, p Parameters) (*Net, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	keys := p.keys()
	startKey := keys.StartTimestamp
	if startKey == "" {
		startKey = keys.Timestamp
	}
	c := newCounts()
	for i, t := range l.Traces {
		ivs := make([]interval, 0, len(t.Events))
		for j, e := range t.Events {
			act, ok := e.Attributes.String(keys.Activity)
			if !ok {
				return nil, errors.MissingActivity(t.CaseID(keys.CaseID), j)
			}
			end, ok := e.Attributes.Time(keys.Timestamp)
			if !ok {
				return nil, errors.New(errors.CodeMissingTimestamp, "interval event without completion timestamp").
					WithContext("trace", i).WithContext("event", j)
			}
			start, ok := e.Attributes.Time(startKey)
			if !ok || start.After(end) {
				start = end
			}
			ivs = append(ivs, interval{activity: act, start: start, end: end})
		}
		c.addIntervals(ivs)
	}
	return c.mine(p)
}

func (c *counts) addIntervals(ivs []interval) {
	if len(ivs) == 0 {
		c.g.Traces++
		c.g.EmptyTraces++
		return
	}
	sort.SliceStable(ivs, func(i, j int) bool { return ivs[i].start.Before(ivs[j].start) })
	c.g.Traces++

	last := 0
	for i, iv := range ivs {
		c.g.Activities[iv.activity]++
		if iv.end.After(ivs[last].end) {
			last = i
		}
	}
	c.g.Start[ivs[0].activity]++
	c.g.End[ivs[last].activity]++

	var seq []string
	for i, a := range ivs {
		seq = append(seq, a.activity)
		for j, b := range ivs {
			if i == j {
				continue
			}
			if w := overlapShare(a, b); w > 0 && i < j {
				c.overlap[dfg.Edge{From: a.activity, To: b.activity}] += w
				if a.activity != b.activity {
					c.overlap[dfg.Edge{From: b.activity, To: a.activity}] += w
				}
			}
			if directlyFollows(ivs, i, j) {
				c.g.Edges[dfg.Edge{From: a.activity, To: b.activity}]++
			}
		}
	}
	for i := 2; i < len(seq); i++ {
		if seq[i-2] == seq[i] && seq[i-1] != seq[i] {
			c.twoLoop[dfg.Edge{From: seq[i-2], To: seq[i-1]}]++
		}
	}
}

// overlapShare is the overlapping duration of two intervals relative to
// the shorter one, zero when they do not overlap.
func overlapShare(a, b interval) float64 {
	from, to := a.start, a.end
	if b.start.After(from) {
		from = b.start
	}
	if b.end.Before(to) {
		to = b.end
	}
	if !to.After(from) {
		return 0
	}
	shorter := a.end.Sub(a.start)
	if d := b.end.Sub(b.start); d < shorter {
		shorter = d
	}
	if shorter <= 0 {
		return 1
	}
	return float64(to.Sub(from)) / float64(shorter)
}

func directlyFollows(ivs []interval, i, j int) bool {
	a, b := ivs[i], ivs[j]
	if b.start.Before(a.end) {
		return false
	}
	if b.start.Equal(a.end) && j < i {
		return false
	}
	for k, x := range ivs {
		if k == i || k == j {
			continue
		}
		if !x.start.Before(a.end) && !x.end.After(b.start) && (x.start.After(a.end) || k > i) && (x.end.Before(b.start) || k < j) {
			return false
		}
	}
	return true
}
