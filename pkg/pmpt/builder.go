package pmpt

import (
	"github.com/logflow/pmcore/pkg/eventlog"
)

// FromLog builds the prefix tree of a log. Case indices are trace
// positions in the log.
func FromLog(l *eventlog.EventLog, activityKey string) *Tree {
	t := NewTree()
	for i, tr := range l.Traces {
		t.Add(tr.Activities(activityKey), uint32(i))
	}
	return t
}

// FromVariants builds the prefix tree from the variants of a log, adding
// each variant once weighted by its frequency. Case bitmaps still hold
// every trace index.
func FromVariants(v *eventlog.Variants) *Tree {
	t := NewTree()
	for _, g := range v.Groups() {
		if len(g.Traces) == 0 {
			continue
		}
		t.AddWeighted(g.Activities, uint32(g.Traces[0]), int64(g.Count()))
		cur := t.Root
		cur.Cases.Or(g.Cases)
		for _, a := range g.Activities {
			cur = cur.Child(a)
			cur.Cases.Or(g.Cases)
		}
	}
	return t
}

// FromSequences builds the prefix tree of plain activity sequences.
func FromSequences(seqs [][]string) *Tree {
	t := NewTree()
	for i, s := range seqs {
		t.Add(s, uint32(i))
	}
	return t
}
