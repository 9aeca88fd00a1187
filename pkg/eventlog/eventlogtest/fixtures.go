// Package eventlogtest provides shared event log fixtures for tests.
package eventlogtest

import (
	"time"

	"github.com/logflow/pmcore/pkg/eventlog"
)

// Activity labels of the running example.
const (
	Register    = "register request"
	ExamineCas  = "examine casually"
	ExamineThor = "examine thoroughly"
	CheckTicket = "check ticket"
	Decide      = "decide"
	Reinitiate  = "reinitiate request"
	Pay         = "pay compensation"
	Reject      = "reject request"
)

// RunningExampleSequences returns the six cases of the classic insurance
// claim running example.
func RunningExampleSequences() [][]string {
	return [][]string{
		{Register, ExamineCas, CheckTicket, Decide, Reinitiate, ExamineThor, CheckTicket, Decide, Pay},
		{Register, CheckTicket, ExamineCas, Decide, Pay},
		{Register, ExamineThor, CheckTicket, Decide, Reject},
		{Register, ExamineCas, CheckTicket, Decide, Reinitiate, CheckTicket, ExamineCas, Decide, Reinitiate, ExamineCas, CheckTicket, Decide, Reject},
		{Register, ExamineCas, CheckTicket, Decide, Reject},
		{Register, CheckTicket, ExamineThor, Decide, Reject},
	}
}

// RunningExample returns the running example as an event log.
func RunningExample() *eventlog.EventLog {
	return eventlog.FromSequences(RunningExampleSequences())
}

// Repeat builds a log containing each sequence the given number of times.
func Repeat(seqs [][]string, counts []int) *eventlog.EventLog {
	return eventlog.FromSequences(RepeatSequences(seqs, counts))
}

// RepeatSequences repeats each sequence the given number of times.
func RepeatSequences(seqs [][]string, counts []int) [][]string {
	var all [][]string
	for i, s := range seqs {
		for j := 0; j < counts[i]; j++ {
			all = append(all, s)
		}
	}
	return all
}

// LifecycleEvent builds an event with a lifecycle transition and resource.
func LifecycleEvent(activity, lifecycle, resource string, ts time.Time) eventlog.Event {
	e := eventlog.NewEvent(activity, ts)
	e.Attributes[eventlog.KeyLifecycle] = lifecycle
	if resource != "" {
		e.Attributes[eventlog.KeyResource] = resource
	}
	return e
}

// Interval builds an interval event.
func Interval(activity string, start, end time.Time) eventlog.Event {
	e := eventlog.NewEvent(activity, end)
	e.Attributes[eventlog.KeyStartTimestamp] = start
	return e
}

// At returns a fixed UTC timestamp offset by minutes.
func At(minutes int) time.Time {
	return time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute)
}
