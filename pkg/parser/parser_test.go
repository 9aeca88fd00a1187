package parser

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/eventlog"
)

const sampleCSV = `case:concept:name,concept:name,time:timestamp,org:resource,cost
c2,b,2024-01-01T10:05:00Z,Ann,12
c1,a,2024-01-01T09:00:00Z,Bob,
c2,a,2024-01-01T10:00:00Z,Ann,3
c1,"b, quoted",2024-01-01T09:30:00+01:00,Bob,7
`

func TestCSV(t *testing.T) {
	l, err := Read(context.Background(), strings.NewReader(sampleCSV), FormatCSV, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", l.Len())
	}
	// traces ordered by case id, events by completion time
	want := map[string][]string{"c1": {"b, quoted", "a"}, "c2": {"a", "b"}}
	for i, id := range []string{"c1", "c2"} {
		tr := l.Traces[i]
		if got := tr.CaseID(eventlog.KeyCaseID); got != id {
			t.Errorf("trace %d case = %q, want %q", i, got, id)
		}
		if got := strings.Join(tr.Activities(eventlog.KeyActivity), "|"); got != strings.Join(want[id], "|") {
			t.Errorf("case %s activities = %q, want %q", id, got, want[id])
		}
	}
	ev := l.Traces[1].Events[1]
	if r, _ := ev.Attributes.String(eventlog.KeyResource); r != "Ann" {
		t.Errorf("resource = %q, want Ann", r)
	}
	if c, _ := ev.Attributes.String("cost"); c != "12" {
		t.Errorf("cost = %q, want 12", c)
	}
	if _, ok := l.Traces[0].Events[1].Attributes["cost"]; ok {
		t.Error("empty cell became an attribute")
	}
	ts, _ := l.Traces[0].Events[0].Attributes.Time(eventlog.KeyTimestamp)
	if !ts.Equal(time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC)) {
		t.Errorf("timestamp = %v, want 08:30 UTC", ts)
	}
}

func TestCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  errors.Code
	}{
		{"missing column", "case:concept:name,concept:name\nc1,a\n", errors.CodeMissingColumn},
		{"bad timestamp", "case:concept:name,concept:name,time:timestamp\nc1,a,yesterday\n", errors.CodeInvalidTimestamp},
		{"missing activity", "case:concept:name,concept:name,time:timestamp\nc1,,2024-01-01T09:00:00Z\n", errors.CodeMissingActivity},
		{"no header", "", errors.CodeInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(context.Background(), strings.NewReader(tt.input), FormatCSV, DefaultConfig())
			if !errors.IsCode(err, tt.code) {
				t.Errorf("Read() error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestCSVMissingTimestamps(t *testing.T) {
	input := "case:concept:name,concept:name,time:timestamp\n" +
		"c1,a,2024-01-01T09:00:00Z\n" +
		"c1,b,\n" +
		"c2,a,\n"
	l, err := Read(context.Background(), strings.NewReader(input), FormatCSV, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (case without timestamps skipped)", l.Len())
	}
	if _, ok := l.Traces[0].Events[1].Attributes.Time(eventlog.KeyTimestamp); !ok {
		t.Error("missing timestamp was not filled from the predecessor")
	}
}

func TestJSONL(t *testing.T) {
	input := `{"case:concept:name": "c1", "concept:name": "a", "time:timestamp": "2024-01-01T09:00:00Z", "amount": 2.5, "count": 3, "urgent": true, "note": null}
not json
{"case:concept:name": "c1", "concept:name": "b", "time:timestamp": "2024-01-01T09:10:00Z", "lifecycle:transition": "COMPLETE"}
`
	l, err := Read(context.Background(), strings.NewReader(input), FormatJSONL, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 1 || l.Traces[0].Len() != 2 {
		t.Fatalf("log shape = %d traces", l.Len())
	}
	a := l.Traces[0].Events[0].Attributes
	if v, ok := a["amount"].(float64); !ok || v != 2.5 {
		t.Errorf("amount = %#v, want 2.5", a["amount"])
	}
	if v, ok := a["count"].(int64); !ok || v != 3 {
		t.Errorf("count = %#v, want int64 3", a["count"])
	}
	if v, ok := a["urgent"].(bool); !ok || !v {
		t.Errorf("urgent = %#v, want true", a["urgent"])
	}
	if _, ok := a["note"]; ok {
		t.Error("null value became an attribute")
	}
	if lc, _ := l.Traces[0].Events[1].Attributes.String(eventlog.KeyLifecycle); lc != "complete" {
		t.Errorf("lifecycle = %q, want complete", lc)
	}
}

func TestXLSX(t *testing.T) {
	book := excelize.NewFile()
	rows := [][]interface{}{
		{"Case ID", "Activity", "Timestamp"},
		{"c1", "a", "2024-01-01T09:00:00Z"},
		{"c1", "b", "2024-01-01T09:05:00Z"},
		{"", "", ""},
		{"c2", "a", "2024-01-01T10:00:00Z"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := book.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := book.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	l, err := Read(context.Background(), bytes.NewReader(buf.Bytes()), FormatXLSX, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 2 || l.EventCount() != 3 {
		t.Errorf("log = %d traces, %d events, want 2 and 3", l.Len(), l.EventCount())
	}
}

const sampleXES = `<?xml version="1.0" encoding="UTF-8"?>
<log xes.version="1.0">
  <extension name="Concept" prefix="concept" uri="http://www.xes-standard.org/concept.xesext"/>
  <global scope="event">
    <string key="concept:name" value="__INVALID__"/>
  </global>
  <classifier name="Activity" keys="concept:name 'my key'"/>
  <string key="concept:name" value="demo"/>
  <trace>
    <string key="concept:name" value="case1"/>
    <event>
      <string key="concept:name" value="a"/>
      <date key="time:timestamp" value="2024-01-01T09:00:00.000+01:00"/>
      <int key="qty" value="4"/>
      <float key="price" value="1.5"/>
      <boolean key="ok" value="true"/>
      <list key="tags">
        <values>
          <string key="tag" value="x"/>
          <string key="tag" value="y"/>
        </values>
      </list>
      <string key="note" value="n">
        <string key="lang" value="en"/>
      </string>
    </event>
    <event>
      <string key="concept:name" value="b"/>
      <date key="time:timestamp" value="2024-01-01T09:30:00.000+01:00"/>
    </event>
  </trace>
</log>`

func TestReadXES(t *testing.T) {
	l, err := ReadXES(context.Background(), strings.NewReader(sampleXES))
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Extensions) != 1 || l.Extensions[0].Prefix != "concept" {
		t.Errorf("Extensions = %+v", l.Extensions)
	}
	if len(l.Classifiers) != 1 || strings.Join(l.Classifiers[0].Keys, "|") != "concept:name|my key" {
		t.Errorf("Classifiers = %+v", l.Classifiers)
	}
	if v, _ := l.Globals.Event.String(eventlog.KeyActivity); v != "__INVALID__" {
		t.Errorf("event global = %q", v)
	}
	if l.Len() != 1 || l.Traces[0].CaseID(eventlog.KeyCaseID) != "case1" {
		t.Fatalf("traces = %+v", l.Traces)
	}
	a := l.Traces[0].Events[0].Attributes
	ts, _ := a.Time(eventlog.KeyTimestamp)
	if !ts.Equal(time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("timestamp = %v", ts)
	}
	if a["qty"] != int64(4) || a["price"] != 1.5 || a["ok"] != true {
		t.Errorf("typed attributes = %#v %#v %#v", a["qty"], a["price"], a["ok"])
	}
	if tags, ok := a["tags"].([]interface{}); !ok || len(tags) != 2 || tags[1] != "y" {
		t.Errorf("tags = %#v", a["tags"])
	}
	note, ok := a["note"].(eventlog.Attributes)
	if !ok || note["value"] != "n" {
		t.Errorf("note = %#v", a["note"])
	}

	var buf bytes.Buffer
	if err := WriteXES(&buf, l); err != nil {
		t.Fatal(err)
	}
	back, err := ReadXES(context.Background(), &buf)
	if err != nil {
		t.Fatalf("re-read: %v\n%s", err, buf.String())
	}
	if back.EventCount() != 2 || back.Classifiers[0].Keys[1] != "my key" {
		t.Errorf("round trip lost data: %d events, classifiers %+v", back.EventCount(), back.Classifiers)
	}
	ts2, _ := back.Traces[0].Events[0].Attributes.Time(eventlog.KeyTimestamp)
	if !ts2.Equal(ts) {
		t.Errorf("round trip timestamp = %v, want %v", ts2, ts)
	}
	if back.Traces[0].Events[0].Attributes["qty"] != int64(4) {
		t.Errorf("round trip qty = %#v", back.Traces[0].Events[0].Attributes["qty"])
	}
}

func TestReadXESErrors(t *testing.T) {
	naive := `<log><trace><event><date key="time:timestamp" value="2024-01-01T09:00:00"/></event></trace></log>`
	if _, err := ReadXES(context.Background(), strings.NewReader(naive)); !errors.IsCode(err, errors.CodeInvalidTimestamp) {
		t.Errorf("naive date: error = %v, want %s", err, errors.CodeInvalidTimestamp)
	}
	badInt := `<log><int key="n" value="x"/></log>`
	if _, err := ReadXES(context.Background(), strings.NewReader(badInt)); !errors.IsCode(err, errors.CodeInvalidFormat) {
		t.Errorf("bad int: error = %v, want %s", err, errors.CodeInvalidFormat)
	}
	if _, err := ReadXES(context.Background(), strings.NewReader(`<other/>`)); !errors.IsCode(err, errors.CodeInvalidFormat) {
		t.Errorf("no log: error = %v", err)
	}
}

func TestFormats(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"log.xes", FormatXES},
		{"log.CSV", FormatCSV},
		{"log.ndjson", FormatJSONL},
		{"log.xlsx", FormatXLSX},
		{"log.txt", FormatUnknown},
	}
	for _, tt := range tests {
		if got := FormatFromPath(tt.path); got != tt.want {
			t.Errorf("FormatFromPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
	if _, err := NewParser(FormatXES, DefaultConfig()); !errors.IsCode(err, errors.CodeInvalidFormat) {
		t.Errorf("NewParser(xes) error = %v", err)
	}
}

func TestCSVScanner(t *testing.T) {
	s := NewCSVScanner(';')
	got := s.ScanLine([]byte(`a;"b;c";"say ""hi""";`))
	want := []string{"a", "b;c", `say "hi"`, ""}
	if len(got) != len(want) {
		t.Fatalf("ScanLine() = %q, want %q", got, want)
	}
	for i := range want {
		if string(got[i]) != want[i] {
			t.Errorf("field %d = %q, want %q", i, got[i], want[i])
		}
	}
}
