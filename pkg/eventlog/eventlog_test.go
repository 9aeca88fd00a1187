package eventlog

import (
	"bytes"
	"log"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/logflow/pmcore/pkg/errors"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC) // a Monday

func at(min int) time.Time {
	return t0.Add(time.Duration(min) * time.Minute)
}

func lc(activity, transition, resource string, ts time.Time) Event {
	e := NewEvent(activity, ts)
	e.Attributes[KeyLifecycle] = transition
	if resource != "" {
		e.Attributes[KeyResource] = resource
	}
	return e
}

func TestGetVariants(t *testing.T) {
	l := FromSequences([][]string{
		{"a", "b"},
		{"a", "c"},
		{"a", "b"},
		{},
	})

	v := GetVariants(l, KeyActivity)
	if v.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", v.Len())
	}
	if v.Total() != 4 {
		t.Errorf("Total() = %d, want 4", v.Total())
	}

	first := v.Groups()[0]
	if !reflect.DeepEqual(first.Activities, []string{"a", "b"}) {
		t.Errorf("first variant = %v, want [a b]", first.Activities)
	}
	if !reflect.DeepEqual(first.Traces, []int{0, 2}) {
		t.Errorf("first variant traces = %v, want [0 2]", first.Traces)
	}
	if first.Cases.GetCardinality() != 2 {
		t.Errorf("Cases cardinality = %d, want 2", first.Cases.GetCardinality())
	}

	// every trace is found under its own variant
	for i, tr := range l.Traces {
		g, ok := v.Get(tr.Activities(KeyActivity))
		if !ok || !g.Cases.Contains(uint32(i)) {
			t.Errorf("trace %d missing from its variant", i)
		}
	}
}

func TestVariantKeyRoundTrip(t *testing.T) {
	tests := [][]string{{}, {"a"}, {"a", "b c", "d"}}
	for _, acts := range tests {
		got := SplitVariantKey(VariantKey(acts))
		if !reflect.DeepEqual(got, acts) {
			t.Errorf("SplitVariantKey(VariantKey(%v)) = %v", acts, got)
		}
	}
}

func TestGetLanguage(t *testing.T) {
	l := FromSequences([][]string{{"a"}, {"a"}, {"b"}, {"a", "b"}})
	lang := GetLanguage(l, KeyActivity)

	sum := 0.0
	for _, p := range lang {
		sum += p
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Errorf("sum = %v, want 1", sum)
	}
	if lang[VariantKey([]string{"a"})] != 0.5 {
		t.Errorf("P(a) = %v, want 0.5", lang[VariantKey([]string{"a"})])
	}
	if len(GetLanguage(New(), KeyActivity)) != 0 {
		t.Error("Expected empty language for empty log")
	}
}

func TestLifecycleToInterval(t *testing.T) {
	l := New()
	l.Append(&Trace{
		Attributes: Attributes{KeyCaseID: "c1"},
		Events: []Event{
			lc("a", "start", "r1", at(0)),
			lc("a", "start", "r1", at(1)),
			lc("b", "start", "r2", at(2)),
			lc("a", "complete", "r1", at(3)),
			lc("b", "suspend", "r2", at(4)),
			lc("a", "complete", "r1", at(5)),
			lc("c", "complete", "", at(6)),
			lc("d", "start", "", at(7)),
		},
	})

	out := LifecycleToInterval(l, DefaultKeys())
	events := out.Traces[0].Events

	type iv struct {
		act        string
		start, end time.Time
	}
	// the open b start and the unmatched c complete become zero-duration
	want := []iv{
		{"b", at(2), at(2)},
		{"a", at(0), at(3)},
		{"a", at(1), at(5)},
		{"c", at(6), at(6)},
		{"d", at(7), at(7)},
	}

	if len(events) != len(want) {
		t.Fatalf("len(events) = %d, want %d", len(events), len(want))
	}
	for i, w := range want {
		act, _ := events[i].Attributes.String(KeyActivity)
		st, _ := events[i].Attributes.Time(KeyStartTimestamp)
		end, _ := events[i].Attributes.Time(KeyTimestamp)
		if act != w.act || !st.Equal(w.start) || !end.Equal(w.end) {
			t.Errorf("event %d = (%s, %v, %v), want (%s, %v, %v)", i, act, st, end, w.act, w.start, w.end)
		}
		if _, ok := events[i].Attributes[KeyLifecycle]; ok {
			t.Errorf("event %d still carries lifecycle", i)
		}
	}

	if len(l.Traces[0].Events) != 8 {
		t.Error("input log was modified")
	}
}

func TestLifecycleIntervalRoundTrip(t *testing.T) {
	l := New()
	l.Append(&Trace{
		Attributes: Attributes{KeyCaseID: "c1"},
		Events: []Event{
			lc("a", "start", "r1", at(0)),
			lc("b", "start", "r2", at(1)),
			lc("a", "complete", "r1", at(2)),
			lc("b", "complete", "r2", at(4)),
		},
	})

	back := IntervalToLifecycle(LifecycleToInterval(l, DefaultKeys()), DefaultKeys())
	got := back.Traces[0].Events
	if len(got) != 4 {
		t.Fatalf("len(events) = %d, want 4", len(got))
	}
	for i, e := range l.Traces[0].Events {
		if !reflect.DeepEqual(map[string]interface{}(got[i].Attributes), map[string]interface{}(e.Attributes)) {
			t.Errorf("event %d = %v, want %v", i, got[i].Attributes, e.Attributes)
		}
	}
}

func TestBusinessHours(t *testing.T) {
	bh, err := NewBusinessHours(DefaultSlots())
	if err != nil {
		t.Fatalf("NewBusinessHours() = %v", err)
	}
	monday := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		from, to time.Time
		want     float64
	}{
		{"inside slot", monday.Add(8 * time.Hour), monday.Add(10 * time.Hour), 7200},
		{"before opening", monday.Add(5 * time.Hour), monday.Add(8 * time.Hour), 3600},
		{"overnight", monday.Add(16 * time.Hour), monday.Add(32 * time.Hour), 7200},
		{"weekend", monday.Add(5*24*time.Hour), monday.Add(7*24*time.Hour), 0},
		{"full week", monday, monday.Add(7 * 24 * time.Hour), 5 * 36000},
		{"reversed", monday.Add(10 * time.Hour), monday.Add(8 * time.Hour), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bh.Duration(tt.from, tt.to); math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Duration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewBusinessHoursRejectsBadSlots(t *testing.T) {
	if _, err := NewBusinessHours([]Slot{{Start: 10, End: 5}}); !errors.IsCode(err, errors.CodeInvalidParameter) {
		t.Errorf("NewBusinessHours() error = %v, want %s", err, errors.CodeInvalidParameter)
	}
	bh, err := NewBusinessHours([]Slot{{0, 100}, {50, 200}, {300, 400}})
	if err != nil {
		t.Fatal(err)
	}
	if got := bh.Slots(); len(got) != 2 || got[0].End != 200 {
		t.Errorf("Slots() = %v, want merged overlap", got)
	}
}

func TestAssignLeadCycleTime(t *testing.T) {
	iv := func(a string, s, e int) Event {
		ev := NewEvent(a, at(e))
		ev.Attributes[KeyStartTimestamp] = at(s)
		return ev
	}
	l := New()
	l.Append(&Trace{Attributes: Attributes{KeyCaseID: "c1"}, Events: []Event{
		iv("a", 0, 10),
		iv("b", 5, 15),
		iv("c", 30, 40),
	}})

	out := AssignLeadCycleTime(l, PerformanceOptions{Keys: DefaultKeys()})
	ev := out.Traces[0].Events

	wantLead := []float64{600, 900, 2400}
	wantCycle := []float64{600, 900, 1500}
	wantIdle := []float64{0, 0, 900}
	for i := range ev {
		lead, _ := ev[i].Attributes.Float(KeyLeadTime)
		cycle, _ := ev[i].Attributes.Float(KeyCycleTime)
		idle, _ := ev[i].Attributes.Float(KeyEventWasted)
		if lead != wantLead[i] || cycle != wantCycle[i] || idle != wantIdle[i] {
			t.Errorf("event %d lead/cycle/idle = %v/%v/%v, want %v/%v/%v",
				i, lead, cycle, idle, wantLead[i], wantCycle[i], wantIdle[i])
		}
		if cycle > lead {
			t.Errorf("event %d cycle %v > lead %v", i, cycle, lead)
		}
	}
	if w, _ := out.Traces[0].Attributes.Float(KeyWastedTime); w != 900 {
		t.Errorf("trace wasted = %v, want 900", w)
	}
	if _, ok := l.Traces[0].Events[0].Attributes[KeyLeadTime]; ok {
		t.Error("input log was modified")
	}
}

func TestAssignLeadCycleTimeBusinessHours(t *testing.T) {
	bh, _ := NewBusinessHours(DefaultSlots())
	monday := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	e := NewEvent("a", monday.Add(32*time.Hour))
	e.Attributes[KeyStartTimestamp] = monday.Add(16 * time.Hour)
	l := New()
	l.Append(&Trace{Attributes: Attributes{KeyCaseID: "c1"}, Events: []Event{e}})

	out := AssignLeadCycleTime(l, PerformanceOptions{Keys: DefaultKeys(), BusinessHours: bh})
	if lead, _ := out.Traces[0].Events[0].Attributes.Float(KeyLeadTime); math.Abs(lead-7200) > 1e-6 {
		t.Errorf("lead = %v, want 7200", lead)
	}
}

func TestSummarizePerformance(t *testing.T) {
	l := FromSequences([][]string{{"a", "b", "c"}, {"a", "b"}})
	out := AssignLeadCycleTime(l, PerformanceOptions{Keys: DefaultKeys()})

	sum, err := SummarizePerformance(out, DefaultKeys(), nil)
	if err != nil {
		t.Fatalf("SummarizePerformance() = %v", err)
	}
	if sum.CaseDuration.Count != 2 {
		t.Errorf("Count = %d, want 2", sum.CaseDuration.Count)
	}
	if sum.CaseDuration.Max != 120 || sum.CaseDuration.Min != 60 {
		t.Errorf("min/max = %v/%v, want 60/120", sum.CaseDuration.Min, sum.CaseDuration.Max)
	}

	var buf bytes.Buffer
	if _, err := SummarizePerformance(New(), DefaultKeys(), log.New(&buf, "", 0)); !errors.IsCode(err, errors.CodeEmptyAggregation) {
		t.Errorf("error = %v, want %s", err, errors.CodeEmptyAggregation)
	}
	if buf.Len() == 0 {
		t.Error("Expected a warning for the empty log")
	}
}

func TestNormalize(t *testing.T) {
	l := New()
	l.Append(&Trace{Attributes: Attributes{KeyCaseID: "c1"}, Events: []Event{
		NewEvent("a", time.Time{}),
		NewEvent("b", at(5)),
		NewEvent("c", time.Time{}),
		NewEvent("d", at(2)),
	}})
	l.Append(&Trace{Attributes: Attributes{KeyCaseID: "c2"}, Events: []Event{
		NewEvent("x", time.Time{}),
	}})

	var buf bytes.Buffer
	skipped := Normalize(l, DefaultKeys(), log.New(&buf, "", 0))
	if skipped != 1 || l.Len() != 1 {
		t.Fatalf("skipped = %d, len = %d, want 1, 1", skipped, l.Len())
	}
	if buf.Len() == 0 {
		t.Error("Expected a warning for the skipped case")
	}

	got := l.Traces[0].Activities(KeyActivity)
	want := []string{"d", "a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	if err := Validate(l, DefaultKeys()); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestNormalizeBareEvent(t *testing.T) {
	l := New()
	l.Append(&Trace{Attributes: Attributes{KeyCaseID: "c"}, Events: []Event{
		NewEvent("a", at(1)),
		{},
	}})
	if skipped := Normalize(l, DefaultKeys(), nil); skipped != 0 {
		t.Fatalf("skipped = %d, want 0", skipped)
	}
	if ts, ok := l.Traces[0].Events[1].Attributes.Time(KeyTimestamp); !ok || !ts.Equal(at(1)) {
		t.Errorf("filled timestamp = %v, %v, want %v", ts, ok, at(1))
	}
	err := Validate(l, DefaultKeys())
	if !errors.IsCode(err, errors.CodeMissingActivity) {
		t.Errorf("Validate() = %v, want %s", err, errors.CodeMissingActivity)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
		code   errors.Code
	}{
		{"missing activity", []Event{{Attributes: Attributes{KeyTimestamp: at(0)}}}, errors.CodeMissingActivity},
		{"missing timestamp", []Event{NewEvent("a", time.Time{})}, errors.CodeMissingTimestamp},
		{"unordered", []Event{NewEvent("a", at(2)), NewEvent("b", at(1))}, errors.CodeInvalidOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New()
			l.Append(&Trace{Attributes: Attributes{KeyCaseID: "c"}, Events: tt.events})
			err := Validate(l, DefaultKeys())
			if !errors.IsCode(err, tt.code) {
				t.Errorf("Validate() = %v, want %s", err, tt.code)
			}
			if !errors.IsKind(err, errors.KindInput) {
				t.Errorf("kind = %s, want input", errors.GetCode(err).Kind())
			}
		})
	}
}

func TestFilterVariantsTopK(t *testing.T) {
	l := FromSequences([][]string{{"a"}, {"b"}, {"b"}, {"c"}, {"a"}, {"b"}})
	out := FilterVariantsTopK(l, KeyActivity, 2)
	got := out.Sequences(KeyActivity)
	want := [][]string{{"a"}, {"b"}, {"b"}, {"a"}, {"b"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FilterVariantsTopK() = %v, want %v", got, want)
	}
}

func TestProjectActivities(t *testing.T) {
	l := FromSequences([][]string{{"a", "b", "c"}, {"c"}})
	out := ProjectActivities(l, KeyActivity, map[string]bool{"a": true, "b": true})
	want := [][]string{{"a", "b"}, {}}
	if got := out.Sequences(KeyActivity); !reflect.DeepEqual(got, want) {
		t.Errorf("ProjectActivities() = %v, want %v", got, want)
	}
}
