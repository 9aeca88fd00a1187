// Package eventlog defines the canonical in-memory event log: events, traces,
// logs, variants and the lifecycle/interval transformations over them.
package eventlog

import (
	"strconv"
	"time"

	"github.com/logflow/pmcore/pkg/config"
)

// Event is a single recorded activity execution.
type Event struct {
	Attributes Attributes
}

// NewEvent creates an event with the given activity and completion timestamp.
func NewEvent(activity string, ts time.Time) Event {
	attrs := Attributes{KeyActivity: activity}
	if !ts.IsZero() {
		attrs[KeyTimestamp] = ts
	}
	return Event{Attributes: attrs}
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	return Event{Attributes: e.Attributes.Clone()}
}

// Trace is one case: an ordered event sequence plus case-level attributes.
type Trace struct {
	Attributes Attributes
	Events     []Event
}

// Len returns the number of events.
func (t *Trace) Len() int {
	return len(t.Events)
}

// CaseID returns the trace identifier under the given key.
func (t *Trace) CaseID(key string) string {
	s, _ := t.Attributes.String(key)
	return s
}

// Activities returns the activity labels of the trace in order.
func (t *Trace) Activities(key string) []string {
	out := make([]string, 0, len(t.Events))
	for _, e := range t.Events {
		a, _ := e.Attributes.String(key)
		out = append(out, a)
	}
	return out
}

// Clone returns a deep copy of the trace.
func (t *Trace) Clone() *Trace {
	out := &Trace{
		Attributes: t.Attributes.Clone(),
		Events:     make([]Event, len(t.Events)),
	}
	for i := range t.Events {
		out.Events[i] = t.Events[i].Clone()
	}
	return out
}

// Extension is a declared XES extension.
type Extension struct {
	Name   string
	Prefix string
	URI    string
}

// Classifier is a named tuple of event attribute keys.
type Classifier struct {
	Name string
	Keys []string
}

// Globals holds omni-present attribute defaults.
type Globals struct {
	Trace Attributes
	Event Attributes
}

// EventLog is an ordered collection of traces with log-level metadata.
type EventLog struct {
	Attributes  Attributes
	Traces      []*Trace
	Extensions  []Extension
	Classifiers []Classifier
	Globals     Globals
}

// New returns an empty log.
func New() *EventLog {
	return &EventLog{
		Attributes: Attributes{},
		Globals:    Globals{Trace: Attributes{}, Event: Attributes{}},
	}
}

// Len returns the number of traces.
func (l *EventLog) Len() int {
	return len(l.Traces)
}

// EventCount returns the total number of events.
func (l *EventLog) EventCount() int {
	n := 0
	for _, t := range l.Traces {
		n += len(t.Events)
	}
	return n
}

// Append adds a trace, taking ownership of it.
func (l *EventLog) Append(t *Trace) {
	l.Traces = append(l.Traces, t)
}

// Clone returns a deep copy of the log; analyses use it at API boundaries.
func (l *EventLog) Clone() *EventLog {
	out := &EventLog{
		Attributes:  l.Attributes.Clone(),
		Traces:      make([]*Trace, len(l.Traces)),
		Extensions:  append([]Extension(nil), l.Extensions...),
		Classifiers: make([]Classifier, len(l.Classifiers)),
		Globals:     Globals{Trace: l.Globals.Trace.Clone(), Event: l.Globals.Event.Clone()},
	}
	for i, t := range l.Traces {
		out.Traces[i] = t.Clone()
	}
	for i, c := range l.Classifiers {
		out.Classifiers[i] = Classifier{Name: c.Name, Keys: append([]string(nil), c.Keys...)}
	}
	return out
}

// shell returns an empty log sharing no state with l but carrying its metadata.
func (l *EventLog) shell() *EventLog {
	return &EventLog{
		Attributes:  l.Attributes.Clone(),
		Extensions:  append([]Extension(nil), l.Extensions...),
		Classifiers: append([]Classifier(nil), l.Classifiers...),
		Globals:     Globals{Trace: l.Globals.Trace.Clone(), Event: l.Globals.Event.Clone()},
	}
}

// Sequences returns the activity sequence of every trace, in log order.
func (l *EventLog) Sequences(activityKey string) [][]string {
	out := make([][]string, len(l.Traces))
	for i, t := range l.Traces {
		out[i] = t.Activities(activityKey)
	}
	return out
}

// Activities returns the activity alphabet with occurrence counts.
func (l *EventLog) Activities(activityKey string) map[string]int {
	out := make(map[string]int)
	for _, t := range l.Traces {
		for _, e := range t.Events {
			if a, ok := e.Attributes.String(activityKey); ok {
				out[a]++
			}
		}
	}
	return out
}

// ClassifierValue joins the values of a classifier's keys into one label.
func (e Event) ClassifierValue(c Classifier) string {
	if len(c.Keys) == 1 {
		s, _ := e.Attributes.String(c.Keys[0])
		return s
	}
	out := ""
	for i, k := range c.Keys {
		if i > 0 {
			out += "+"
		}
		s, _ := e.Attributes.String(k)
		out += s
	}
	return out
}

// FromSequences builds a log from activity sequences. Events receive
// strictly increasing completion timestamps one minute apart per case.
func FromSequences(seqs [][]string) *EventLog {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New()
	for i, seq := range seqs {
		tr := &Trace{Attributes: Attributes{KeyCaseID: caseName(i)}}
		for j, a := range seq {
			tr.Events = append(tr.Events, NewEvent(a, base.Add(time.Duration(i)*time.Hour+time.Duration(j)*time.Minute)))
		}
		l.Append(tr)
	}
	return l
}

func caseName(i int) string {
	return "case-" + strconv.Itoa(i+1)
}

// Keys names the attributes used by log operations.
type Keys struct {
	Activity       string `validate:"required"`
	Timestamp      string `validate:"required"`
	StartTimestamp string
	CaseID         string `validate:"required"`
	Resource       string
	Lifecycle      string
}

// DefaultKeys returns the XES standard keys.
func DefaultKeys() Keys {
	return Keys{
		Activity:       KeyActivity,
		Timestamp:      KeyTimestamp,
		StartTimestamp: KeyStartTimestamp,
		CaseID:         KeyCaseID,
		Resource:       KeyResource,
		Lifecycle:      KeyLifecycle,
	}
}

// KeysFromConfig maps the configured log keys, filling defaults.
func KeysFromConfig(cfg config.LogConfig) Keys {
	k := DefaultKeys()
	if cfg.ActivityKey != "" {
		k.Activity = cfg.ActivityKey
	}
	if cfg.TimestampKey != "" {
		k.Timestamp = cfg.TimestampKey
	}
	if cfg.StartTimestampKey != "" {
		k.StartTimestamp = cfg.StartTimestampKey
	}
	if cfg.CaseIDKey != "" {
		k.CaseID = cfg.CaseIDKey
	}
	if cfg.ResourceKey != "" {
		k.Resource = cfg.ResourceKey
	}
	if cfg.LifecycleKey != "" {
		k.Lifecycle = cfg.LifecycleKey
	}
	return k
}

// startKey returns the start timestamp key, defaulting to the completion key.
func (k Keys) startKey() string {
	if k.StartTimestamp == "" {
		return k.Timestamp
	}
	return k.StartTimestamp
}
