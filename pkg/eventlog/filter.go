package eventlog

import (
	"github.com/RoaringBitmap/roaring"
)

// FilterVariantsTopK keeps the traces of the k most frequent variants. Ties
// are resolved by first occurrence; trace order is preserved.
func FilterVariantsTopK(l *EventLog, activityKey string, k int) *EventLog {
	v := GetVariants(l, activityKey)
	keep := roaring.New()
	for i, g := range v.ByFrequency() {
		if i >= k {
			break
		}
		keep.Or(g.Cases)
	}
	return filterTraces(l, keep)
}

// FilterVariants keeps the traces whose variant satisfies pred.
func FilterVariants(l *EventLog, activityKey string, pred func(*VariantGroup) bool) *EventLog {
	keep := roaring.New()
	for _, g := range GetVariants(l, activityKey).Groups() {
		if pred(g) {
			keep.Or(g.Cases)
		}
	}
	return filterTraces(l, keep)
}

func filterTraces(l *EventLog, keep *roaring.Bitmap) *EventLog {
	out := l.shell()
	it := keep.Iterator()
	for it.HasNext() {
		out.Append(l.Traces[it.Next()].Clone())
	}
	return out
}

// ProjectActivities returns a copy of the log restricted to the given
// activities. Traces left empty are kept.
func ProjectActivities(l *EventLog, activityKey string, activities map[string]bool) *EventLog {
	out := l.shell()
	for _, t := range l.Traces {
		nt := &Trace{Attributes: t.Attributes.Clone()}
		for _, e := range t.Events {
			if a, ok := e.Attributes.String(activityKey); ok && activities[a] {
				nt.Events = append(nt.Events, e.Clone())
			}
		}
		out.Append(nt)
	}
	return out
}

// ProjectSequences restricts activity sequences to an alphabet.
func ProjectSequences(seqs [][]string, activities map[string]bool) [][]string {
	out := make([][]string, len(seqs))
	for i, s := range seqs {
		p := make([]string, 0, len(s))
		for _, a := range s {
			if activities[a] {
				p = append(p, a)
			}
		}
		out[i] = p
	}
	return out
}
