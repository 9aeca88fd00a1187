package main

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/logflow/pmcore/pkg/align"
	"github.com/logflow/pmcore/pkg/analysis"
	"github.com/logflow/pmcore/pkg/bpmn"
	"github.com/logflow/pmcore/pkg/petri"
	"github.com/logflow/pmcore/pkg/ptree"
)

func TestByCount(t *testing.T) {
	got := byCount(map[string]int{"b": 2, "a": 2, "c": 5})
	if want := []string{"c", "a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("byCount() = %v, want %v", got, want)
	}
}

func TestDeviationRows(t *testing.T) {
	logMove := align.Move{Kind: align.LogMove, Activity: "x", Cost: 1}
	modelMove := align.Move{Kind: align.ModelMove, Label: "b", Cost: 1}
	sync := align.Move{Kind: align.SyncMove, Activity: "a", Label: "a"}
	res := &align.Result{Traces: []*align.TraceResult{
		{Alignment: &align.Alignment{Moves: []align.Move{sync, logMove, logMove}}},
		{Alignment: &align.Alignment{Moves: []align.Move{sync, modelMove, logMove}}},
		{Err: os.ErrDeadlineExceeded},
	}}
	rows := deviationRows(res, 10)
	want := [][]string{{"log", "x", "2"}, {"model", "b", "1"}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("deviationRows() = %v, want %v", rows, want)
	}
	if got := deviationRows(res, 1); len(got) != 1 {
		t.Errorf("deviationRows(n=1) = %d rows, want 1", len(got))
	}
}

func TestWriteModel(t *testing.T) {
	tree := ptree.Seq(ptree.Leaf("a"), ptree.Xor(ptree.Leaf("b"), ptree.Leaf("c")))
	an, err := ptree.ToPetriNet(tree)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	withTree := &analysis.Model{Net: an, Tree: tree}

	pnml := filepath.Join(dir, "model.pnml")
	if err := writeModel(pnml, withTree); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(pnml)
	if err != nil {
		t.Fatal(err)
	}
	back, err := petri.ReadPNML(f)
	f.Close()
	if err != nil {
		t.Fatal(err)
	}
	if back.Net.NumTransitions() != an.Net.NumTransitions() {
		t.Errorf("read back %d transitions, want %d", back.Net.NumTransitions(), an.Net.NumTransitions())
	}

	bp := filepath.Join(dir, "model.bpmn")
	if err := writeModel(bp, withTree); err != nil {
		t.Fatal(err)
	}
	f, err = os.Open(bp)
	if err != nil {
		t.Fatal(err)
	}
	d, err := bpmn.Read(f)
	f.Close()
	if err != nil {
		t.Fatal(err)
	}
	if d.Name != "model" || d.Count(bpmn.Task) != 3 {
		t.Errorf("bpmn %q has %d tasks, want model and 3", d.Name, d.Count(bpmn.Task))
	}

	if err := writeModel(filepath.Join(dir, "net.ptml"), &analysis.Model{Net: an}); err == nil || !strings.Contains(err.Error(), "process tree") {
		t.Errorf("ptml without tree error = %v", err)
	}
	if err := writeModel(filepath.Join(dir, "model.dot"), withTree); err == nil {
		t.Error("writeModel(.dot) succeeded")
	}
}

func TestLogMetrics(t *testing.T) {
	defer func() { metricsSummary = false }()
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)

	m := logMetrics(logger)
	m.Counter("pmcore.replay.traces", 4, nil)
	m.Timer("pmcore.replay.duration", time.Second, nil)
	if got, want := buf.String(), "metrics: timer pmcore.replay.duration=1s\n"; got != want {
		t.Errorf("streamed = %q, want %q", got, want)
	}

	buf.Reset()
	metricsSummary = true
	m = logMetrics(logger)
	m.Counter("pmcore.replay.traces", 4, nil)
	if buf.Len() != 0 {
		t.Fatalf("summary written early: %q", buf.String())
	}
	m.Close()
	if got, want := buf.String(), "metrics: counter pmcore.replay.traces=4\n"; got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}
}
