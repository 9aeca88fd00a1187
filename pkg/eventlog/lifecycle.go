package eventlog

import (
	"sort"
	"time"
)

// intervalKeys resolves the keys used by the lifecycle/interval conversion.
// The start timestamp always gets its own attribute here, even when the
// caller configured none.
func intervalKeys(keys Keys) Keys {
	if keys.StartTimestamp == "" || keys.StartTimestamp == keys.Timestamp {
		keys.StartTimestamp = KeyStartTimestamp
	}
	if keys.Lifecycle == "" {
		keys.Lifecycle = KeyLifecycle
	}
	return keys
}

// LifecycleToInterval folds start/complete event pairs into interval events.
//
// Pairs are matched per case by (activity, resource) with a FIFO queue of
// open starts. Start attributes are overlaid by the complete event's. A
// complete without open start and a start left open at the end of the case
// become zero-duration intervals. Events with another lifecycle transition
// are dropped; events without transition count as complete. The input log is
// not modified.
func LifecycleToInterval(l *EventLog, keys Keys) *EventLog {
	keys = intervalKeys(keys)
	out := l.shell()
	for _, t := range l.Traces {
		out.Traces = append(out.Traces, traceToInterval(t, keys))
	}
	return out
}

type pairKey struct {
	activity string
	resource string
}

func traceToInterval(t *Trace, keys Keys) *Trace {
	open := make(map[pairKey][]Event)
	var order []pairKey
	events := make([]Event, 0, len(t.Events))

	for _, e := range t.Events {
		lc, ok := e.Attributes.String(keys.Lifecycle)
		if !ok {
			lc = LifecycleComplete
		}
		act, _ := e.Attributes.String(keys.Activity)
		res, _ := e.Attributes.String(keys.Resource)
		pk := pairKey{act, res}

		switch lc {
		case LifecycleStart:
			if _, seen := open[pk]; !seen {
				order = append(order, pk)
			}
			open[pk] = append(open[pk], e)
		case LifecycleComplete:
			ts, _ := e.Attributes.Time(keys.Timestamp)
			var merged Attributes
			if q := open[pk]; len(q) > 0 {
				start := q[0]
				open[pk] = q[1:]
				merged = start.Attributes.Clone()
				for k, v := range e.Attributes {
					merged[k] = cloneValue(v)
				}
				st, _ := start.Attributes.Time(keys.Timestamp)
				merged[keys.StartTimestamp] = st
			} else {
				merged = e.Attributes.Clone()
				merged[keys.StartTimestamp] = ts
			}
			delete(merged, keys.Lifecycle)
			events = append(events, Event{Attributes: merged})
		}
	}

	for _, pk := range order {
		for _, start := range open[pk] {
			attrs := start.Attributes.Clone()
			ts, _ := start.Attributes.Time(keys.Timestamp)
			attrs[keys.StartTimestamp] = ts
			delete(attrs, keys.Lifecycle)
			events = append(events, Event{Attributes: attrs})
		}
	}

	stableByTime(events, keys.Timestamp)
	return &Trace{Attributes: t.Attributes.Clone(), Events: events}
}

// IntervalToLifecycle expands every interval event into a start and a
// complete event. Events without start timestamp produce a start at their
// completion time.
func IntervalToLifecycle(l *EventLog, keys Keys) *EventLog {
	keys = intervalKeys(keys)
	out := l.shell()
	for _, t := range l.Traces {
		events := make([]Event, 0, 2*len(t.Events))
		for _, e := range t.Events {
			ts, _ := e.Attributes.Time(keys.Timestamp)
			st, ok := e.Attributes.Time(keys.StartTimestamp)
			if !ok {
				st = ts
			}
			start := e.Attributes.Clone()
			delete(start, keys.StartTimestamp)
			start[keys.Timestamp] = st
			start[keys.Lifecycle] = LifecycleStart

			complete := e.Attributes.Clone()
			delete(complete, keys.StartTimestamp)
			complete[keys.Lifecycle] = LifecycleComplete

			events = append(events, Event{Attributes: start}, Event{Attributes: complete})
		}
		stableByTime(events, keys.Timestamp)
		out.Traces = append(out.Traces, &Trace{Attributes: t.Attributes.Clone(), Events: events})
	}
	return out
}

func stableByTime(events []Event, tsKey string) {
	stamps := make([]time.Time, len(events))
	idx := make([]int, len(events))
	for i, e := range events {
		idx[i] = i
		stamps[i], _ = e.Attributes.Time(tsKey)
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return stamps[idx[a]].Before(stamps[idx[b]])
	})
	sorted := make([]Event, len(events))
	for i, j := range idx {
		sorted[i] = events[j]
	}
	copy(events, sorted)
}
