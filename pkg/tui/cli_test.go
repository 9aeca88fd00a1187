package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/logflow/pmcore/pkg/evaluation"
)

func TestFormatters(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{Ratio(2.0 / 3), "0.6667"},
		{Percent(0.25), "25.0%"},
		{Duration(250 * time.Millisecond), "250ms"},
		{Duration(1500 * time.Millisecond), "1.5s"},
		{Duration(125 * time.Second), "2m5s"},
		{Duration(90 * time.Minute), "1h30m"},
		{Number(999), "999"},
		{Number(12500), "12.5K"},
		{Number(3200000), "3.2M"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Table([]string{"variant", "count"}, [][]string{
		{"a,b,c", "10"},
		{"a,c", "2"},
	})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], "a,b,c    10") {
		t.Errorf("row = %q, want padded columns", lines[1])
	}
	if !strings.HasSuffix(lines[2], "a,c      2") {
		t.Errorf("row = %q, want padded columns", lines[2])
	}
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Report(&evaluation.Report{Precision: 0.5, FScore: 0.6667})
	out := buf.String()
	for _, want := range []string{"Precision", "0.5000", "F-score", "0.6667", "Extended cyclomatic"} {
		if !strings.Contains(out, want) {
			t.Errorf("report lacks %q:\n%s", want, out)
		}
	}
}
