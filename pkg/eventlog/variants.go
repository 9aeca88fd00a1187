package eventlog

import (
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring"
)

// variantSep joins activity labels inside a variant key. It is the ASCII
// unit separator, which does not occur in activity labels.
const variantSep = "\x1f"

// VariantKey encodes an activity sequence as a map key.
func VariantKey(activities []string) string {
	return strings.Join(activities, variantSep)
}

// SplitVariantKey decodes a key produced by VariantKey.
func SplitVariantKey(key string) []string {
	if key == "" {
		return []string{}
	}
	return strings.Split(key, variantSep)
}

// VariantGroup holds the traces sharing one activity sequence.
type VariantGroup struct {
	Activities []string
	// Traces lists trace indices into the source log in log order.
	Traces []int
	// Cases is the same index set as a bitmap, for fast set algebra.
	Cases *roaring.Bitmap
}

// Count returns the variant frequency.
func (g *VariantGroup) Count() int {
	return len(g.Traces)
}

// String renders the variant as an arrow-separated path.
func (g *VariantGroup) String() string {
	return strings.Join(g.Activities, " -> ")
}

// Variants groups the traces of a log by activity sequence. Groups are kept
// in order of first occurrence.
type Variants struct {
	groups []*VariantGroup
	index  map[string]int
	total  int
}

// GetVariants groups the log by activity sequence.
func GetVariants(l *EventLog, activityKey string) *Variants {
	v := &Variants{index: make(map[string]int)}
	for i, t := range l.Traces {
		acts := t.Activities(activityKey)
		key := VariantKey(acts)
		gi, ok := v.index[key]
		if !ok {
			gi = len(v.groups)
			v.index[key] = gi
			v.groups = append(v.groups, &VariantGroup{
				Activities: acts,
				Cases:      roaring.New(),
			})
		}
		g := v.groups[gi]
		g.Traces = append(g.Traces, i)
		g.Cases.Add(uint32(i))
		v.total++
	}
	return v
}

// Groups returns the variant groups in first-occurrence order.
func (v *Variants) Groups() []*VariantGroup {
	return v.groups
}

// Len returns the number of distinct variants.
func (v *Variants) Len() int {
	return len(v.groups)
}

// Total returns the number of traces grouped.
func (v *Variants) Total() int {
	return v.total
}

// Get returns the group of an activity sequence.
func (v *Variants) Get(activities []string) (*VariantGroup, bool) {
	gi, ok := v.index[VariantKey(activities)]
	if !ok {
		return nil, false
	}
	return v.groups[gi], true
}

// ByFrequency returns the groups sorted by descending count, ties by first occurrence.
func (v *Variants) ByFrequency() []*VariantGroup {
	out := append([]*VariantGroup(nil), v.groups...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count() > out[j].Count()
	})
	return out
}

// Language maps variant keys to relative frequencies.
type Language map[string]float64

// GetLanguage returns the relative frequency of each variant; values sum to 1
// for a non-empty log.
func GetLanguage(l *EventLog, activityKey string) Language {
	v := GetVariants(l, activityKey)
	lang := make(Language, v.Len())
	if v.Total() == 0 {
		return lang
	}
	for _, g := range v.groups {
		lang[VariantKey(g.Activities)] = float64(g.Count()) / float64(v.Total())
	}
	return lang
}
