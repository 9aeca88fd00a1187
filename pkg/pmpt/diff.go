package pmpt

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// frequencyShift is the smallest change in relative prefix frequency
// reported by Compare.
const frequencyShift = 0.01

// Diff describes how two prefix trees differ.
type Diff struct {
	LeftFingerprint  Hash
	RightFingerprint Hash
	Identical        bool
	// NewPrefixes exist only on the right, RemovedPrefixes only on the left.
	NewPrefixes      []*Node
	RemovedPrefixes  []*Node
	FrequencyChanges []FrequencyChange
}

// FrequencyChange is a shift in the share of sequences having a prefix.
type FrequencyChange struct {
	Prefix     []string
	LeftFreq   float64
	RightFreq  float64
	Delta      float64
	LeftCount  int64
	RightCount int64
}

// Compare reports the prefixes only one tree has and the shared prefixes
// whose relative frequency moved by more than one percent.
func Compare(left, right *Tree) *Diff {
	d := &Diff{
		LeftFingerprint:  left.Fingerprint(),
		RightFingerprint: right.Fingerprint(),
	}
	d.Identical = d.LeftFingerprint == d.RightFingerprint
	if d.Identical {
		return d
	}

	var walk func(l, r *Node)
	walk = func(l, r *Node) {
		for _, rc := range r.Children {
			if l.Child(rc.Activity) == nil {
				d.NewPrefixes = append(d.NewPrefixes, rc)
			}
		}
		for _, lc := range l.Children {
			rc := r.Child(lc.Activity)
			if rc == nil {
				d.RemovedPrefixes = append(d.RemovedPrefixes, lc)
				continue
			}
			lf := share(lc.Count, left.TotalCases)
			rf := share(rc.Count, right.TotalCases)
			if math.Abs(rf-lf) > frequencyShift {
				d.FrequencyChanges = append(d.FrequencyChanges, FrequencyChange{
					Prefix:     lc.Prefix(),
					LeftFreq:   lf,
					RightFreq:  rf,
					Delta:      rf - lf,
					LeftCount:  lc.Count,
					RightCount: rc.Count,
				})
			}
			walk(lc, rc)
		}
	}
	left.mu.RLock()
	right.mu.RLock()
	walk(left.Root, right.Root)
	right.mu.RUnlock()
	left.mu.RUnlock()

	sort.SliceStable(d.FrequencyChanges, func(i, j int) bool {
		return math.Abs(d.FrequencyChanges[i].Delta) > math.Abs(d.FrequencyChanges[j].Delta)
	})
	return d
}

func share(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// String returns a human-readable report listing at most five entries per
// section.
func (d *Diff) String() string {
	var sb strings.Builder
	if d.Identical {
		fmt.Fprintf(&sb, "Trees are IDENTICAL\nFingerprint: %s\n", d.LeftFingerprint)
		return sb.String()
	}
	fmt.Fprintf(&sb, "Left:  %s\nRight: %s\n\n", d.LeftFingerprint, d.RightFingerprint)

	section := func(title, sign string, nodes []*Node) {
		if len(nodes) == 0 {
			return
		}
		fmt.Fprintf(&sb, "%s (%d):\n", title, len(nodes))
		for _, n := range nodes[:min(5, len(nodes))] {
			fmt.Fprintf(&sb, "  %s %s (cases: %d)\n", sign, strings.Join(n.Prefix(), " -> "), n.Count)
		}
		if len(nodes) > 5 {
			fmt.Fprintf(&sb, "  ... and %d more\n", len(nodes)-5)
		}
		sb.WriteByte('\n')
	}
	section("New prefixes", "+", d.NewPrefixes)
	section("Removed prefixes", "-", d.RemovedPrefixes)

	if len(d.FrequencyChanges) > 0 {
		sb.WriteString("Frequency shifts (top 5):\n")
		for i, fc := range d.FrequencyChanges[:min(5, len(d.FrequencyChanges))] {
			fmt.Fprintf(&sb, "  %d. %s: %.1f%% -> %.1f%% (%+.1f%%)\n",
				i+1, strings.Join(fc.Prefix, " -> "), fc.LeftFreq*100, fc.RightFreq*100, fc.Delta*100)
		}
	}
	return sb.String()
}
