package eventlog

import (
	"log"
	"sort"
	"time"

	"github.com/logflow/pmcore/pkg/errors"
)

// SortTraces orders the events of every trace by completion timestamp,
// keeping input order on ties. Events without timestamp keep their slot
// relative to their predecessor.
func SortTraces(l *EventLog, keys Keys) {
	for _, t := range l.Traces {
		sortEvents(t.Events, keys.Timestamp)
	}
}

func sortEvents(events []Event, tsKey string) {
	stamps := make([]time.Time, len(events))
	var last time.Time
	for i, e := range events {
		if ts, ok := e.Attributes.Time(tsKey); ok {
			last = ts
		}
		stamps[i] = last
	}
	idx := make([]int, len(events))
	for i := range idx {
		idx[i] = i
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

// Normalize repairs missing completion timestamps in place and sorts the
// traces. An event without timestamp borrows its predecessor's, or its
// successor's when it is first. Cases where no event carries a timestamp are
// removed with a warning. It returns the number of skipped cases.
func Normalize(l *EventLog, keys Keys, logger *log.Logger) int {
	kept := l.Traces[:0]
	skipped := 0
	for _, t := range l.Traces {
		if !fillTimestamps(t, keys.Timestamp) {
			skipped++
			if logger != nil {
				logger.Printf("warning: case %q skipped: no event carries %s", t.CaseID(keys.CaseID), keys.Timestamp)
			}
			continue
		}
		sortEvents(t.Events, keys.Timestamp)
		kept = append(kept, t)
	}
	for i := len(kept); i < len(l.Traces); i++ {
		l.Traces[i] = nil
	}
	l.Traces = kept
	return skipped
}

func fillTimestamps(t *Trace, tsKey string) bool {
	if len(t.Events) == 0 {
		return true
	}
	first := -1
	for i, e := range t.Events {
		if _, ok := e.Attributes.Time(tsKey); ok {
			first = i
			break
		}
	}
	if first < 0 {
		return false
	}
	firstTS, _ := t.Events[first].Attributes.Time(tsKey)
	for i := 0; i < first; i++ {
		setTime(&t.Events[i], tsKey, firstTS)
	}
	prev := firstTS
	for i := first + 1; i < len(t.Events); i++ {
		if ts, ok := t.Events[i].Attributes.Time(tsKey); ok {
			prev = ts
			continue
		}
		setTime(&t.Events[i], tsKey, prev)
	}
	return true
}

func setTime(e *Event, key string, ts time.Time) {
	if e.Attributes == nil {
		e.Attributes = Attributes{}
	}
	e.Attributes[key] = ts
}

// Validate checks the structural invariants the core relies on: every event
// has an activity and a completion timestamp, events are ordered by
// completion and start never exceeds completion.
func Validate(l *EventLog, keys Keys) error {
	for ti, t := range l.Traces {
		var prev time.Time
		for ei, e := range t.Events {
			if _, ok := e.Attributes.String(keys.Activity); !ok {
				return errors.MissingActivity(t.CaseID(keys.CaseID), ei).WithContext("trace", ti)
			}
			ts, ok := e.Attributes.Time(keys.Timestamp)
			if !ok {
				return errors.New(errors.CodeMissingTimestamp, "event has no completion timestamp").
					WithContext("case", t.CaseID(keys.CaseID)).
					WithContext("event", ei)
			}
			if ei > 0 && ts.Before(prev) {
				return errors.New(errors.CodeInvalidOrder, "events not ordered by completion timestamp").
					WithContext("case", t.CaseID(keys.CaseID)).
					WithContext("event", ei)
			}
			if keys.StartTimestamp != "" {
				if st, ok := e.Attributes.Time(keys.StartTimestamp); ok && st.After(ts) {
					return errors.New(errors.CodeInvalidOrder, "start timestamp after completion").
						WithContext("case", t.CaseID(keys.CaseID)).
						WithContext("event", ei)
				}
			}
			prev = ts
		}
	}
	return nil
}
