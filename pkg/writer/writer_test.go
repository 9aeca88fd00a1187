package writer

import (
	"bytes"
	"context"
	"testing"

	"github.com/apache/arrow/go/v14/parquet/file"

	"github.com/logflow/pmcore/pkg/align"
	"github.com/logflow/pmcore/pkg/eventlog"
	"github.com/logflow/pmcore/pkg/petri"
	"github.com/logflow/pmcore/pkg/pmpt"
	"github.com/logflow/pmcore/pkg/replay"
)

func sequenceNet() *petri.AcceptingNet {
	n := petri.NewNet("seq")
	src := n.AddPlace("source")
	p1 := n.AddPlace("p1")
	p2 := n.AddPlace("p2")
	sink := n.AddPlace("sink")
	a := n.AddTransition("a", "a")
	b := n.AddTransition("b", "b")
	c := n.AddTransition("c", "c")
	n.AddInputArc(src, a, 1)
	n.AddOutputArc(a, p1, 1)
	n.AddInputArc(p1, b, 1)
	n.AddOutputArc(b, p2, 1)
	n.AddInputArc(p2, c, 1)
	n.AddOutputArc(c, sink, 1)
	return &petri.AcceptingNet{Net: n, Initial: petri.NewMarking(src), Final: petri.NewMarking(sink)}
}

func diagnostics(t *testing.T) (*eventlog.EventLog, []Row) {
	t.Helper()
	ctx := context.Background()
	l := eventlog.FromSequences([][]string{{"a", "b", "c"}, {"a", "c"}, {"a", "b", "c"}})
	an := sequenceNet()
	rep, err := replay.Log(ctx, an, l, replay.DefaultParameters())
	if err != nil {
		t.Fatal(err)
	}
	al, err := align.Log(ctx, an, l, align.DefaultParameters())
	if err != nil {
		t.Fatal(err)
	}
	return l, Rows(l, eventlog.DefaultKeys(), rep, al)
}

func TestRows(t *testing.T) {
	_, rows := diagnostics(t)
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	fit, dev := rows[0], rows[1]
	if fit.Variant != "a,b,c" || fit.Events != 3 {
		t.Errorf("row 0 = %+v", fit)
	}
	if !fit.HasReplay || fit.ReplayFitness != 1 || !fit.HasAlignment || fit.AlignCost != 0 {
		t.Errorf("fitting row = %+v", fit)
	}
	if dev.ReplayFitness >= 1 || dev.Missing == 0 {
		t.Errorf("deviating row replay = %+v", dev)
	}
	if dev.AlignCost != 1 || dev.Deviations != 1 {
		t.Errorf("deviating row alignment cost = %v deviations = %d, want 1 and 1", dev.AlignCost, dev.Deviations)
	}

	bare := Rows(eventlog.FromSequences([][]string{{"x"}}), eventlog.DefaultKeys(), nil, nil)
	if bare[0].HasReplay || bare[0].HasAlignment {
		t.Errorf("rows without results = %+v", bare[0])
	}
}

func TestParquetWriter(t *testing.T) {
	l, rows := diagnostics(t)
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	tree := pmpt.FromLog(l, eventlog.KeyActivity)
	if err := cfg.AttachPrefixTree(tree); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	w, err := NewParquetWriter(&buf, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(context.Background(), rows); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if got := w.RowsWritten(); got != 3 {
		t.Errorf("RowsWritten() = %d, want 3", got)
	}
	if err := w.Write(context.Background(), rows); err == nil {
		t.Error("Write after Close succeeded")
	}

	r, err := file.NewParquetReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if got := r.NumRows(); got != 3 {
		t.Errorf("NumRows() = %d, want 3", got)
	}
	if got := r.MetaData().Schema.NumColumns(); got != 13 {
		t.Errorf("columns = %d, want 13", got)
	}
	v := r.MetaData().KeyValueMetadata().FindValue(pmpt.ParquetMetadataKey)
	if v == nil {
		t.Fatal("prefix tree manifest missing from footer")
	}
	m, err := pmpt.ManifestFromParquetMetadata(*v)
	if err != nil {
		t.Fatal(err)
	}
	back, err := m.Tree()
	if err != nil {
		t.Fatal(err)
	}
	if !back.Equals(tree) {
		t.Error("manifest tree differs from the written tree")
	}
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in   string
		want CompressionType
	}{
		{"snappy", CompressionSnappy},
		{"ZSTD", CompressionZstd},
		{"gzip", CompressionGzip},
		{"brotli", CompressionNone},
	}
	for _, tt := range tests {
		if got := ParseCompression(tt.in); got != tt.want {
			t.Errorf("ParseCompression(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
