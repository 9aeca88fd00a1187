// Package footprints derives behavioral footprints from logs and models and
// compares them.
//
// A footprint over an alphabet holds the sequence relation (a is directly
// followed by b but never the reverse), the parallel relation (both
// directions observed), start and end activities, the activity set, the
// minimum trace length and the activities that occur in every trace.
package footprints

import (
	"sort"

	"github.com/logflow/pmcore/pkg/dfg"
	"github.com/logflow/pmcore/pkg/eventlog"
)

// Pair is an ordered activity pair.
type Pair struct {
	A string
	B string
}

// Footprints is the relation abstraction of some behavior.
type Footprints struct {
	Sequence        map[Pair]bool
	Parallel        map[Pair]bool
	Start           map[string]bool
	End             map[string]bool
	Activities      map[string]bool
	AlwaysHappening map[string]bool
	MinTraceLength  int
}

func newFootprints() *Footprints {
	return &Footprints{
		Sequence:        make(map[Pair]bool),
		Parallel:        make(map[Pair]bool),
		Start:           make(map[string]bool),
		End:             make(map[string]bool),
		Activities:      make(map[string]bool),
		AlwaysHappening: make(map[string]bool),
	}
}

// FromDFG derives the footprint relations of a directly-follows graph.
// MinTraceLength and AlwaysHappening are left empty: a DFG does not carry
// them.
func FromDFG(g *dfg.Graph) *Footprints {
	fp := newFootprints()
	for e := range g.Edges {
		p := Pair{e.From, e.To}
		if _, back := g.Edges[dfg.Edge{From: e.To, To: e.From}]; back {
			fp.Parallel[p] = true
		} else {
			fp.Sequence[p] = true
		}
	}
	for a := range g.Start {
		fp.Start[a] = true
	}
	for a := range g.End {
		fp.End[a] = true
	}
	for a := range g.Activities {
		fp.Activities[a] = true
	}
	return fp
}

// FromSequences computes the footprints of a list of activity sequences.
func FromSequences(seqs [][]string) *Footprints {
	fp := FromDFG(dfg.FromSequences(seqs))
	fillTraceMeasures(fp, seqs)
	return fp
}

// FromLog computes the footprints of a log.
func FromLog(l *eventlog.EventLog, activityKey string) *Footprints {
	return FromVariants(eventlog.GetVariants(l, activityKey))
}

// FromVariants computes the footprints of a variant set. The result equals
// FromLog of any log with the same variants: frequencies do not matter.
func FromVariants(v *eventlog.Variants) *Footprints {
	seqs := make([][]string, 0, v.Len())
	for _, g := range v.Groups() {
		seqs = append(seqs, g.Activities)
	}
	return FromSequences(seqs)
}

// TraceExtensive returns one footprint per sequence.
func TraceExtensive(seqs [][]string) []*Footprints {
	out := make([]*Footprints, len(seqs))
	for i, s := range seqs {
		out[i] = FromSequences([][]string{s})
	}
	return out
}

func fillTraceMeasures(fp *Footprints, seqs [][]string) {
	if len(seqs) == 0 {
		return
	}
	fp.MinTraceLength = len(seqs[0])
	counts := make(map[string]int)
	for _, s := range seqs {
		if len(s) < fp.MinTraceLength {
			fp.MinTraceLength = len(s)
		}
		seen := make(map[string]bool, len(s))
		for _, a := range s {
			if !seen[a] {
				seen[a] = true
				counts[a]++
			}
		}
	}
	for a, c := range counts {
		if c == len(seqs) {
			fp.AlwaysHappening[a] = true
		}
	}
}

// Relations returns the union of the sequence and parallel relations.
func (fp *Footprints) Relations() map[Pair]bool {
	out := make(map[Pair]bool, len(fp.Sequence)+len(fp.Parallel))
	for p := range fp.Sequence {
		out[p] = true
	}
	for p := range fp.Parallel {
		out[p] = true
	}
	return out
}

// Choice reports whether a and b are never adjacent in either direction.
func (fp *Footprints) Choice(a, b string) bool {
	return !fp.Sequence[Pair{a, b}] && !fp.Sequence[Pair{b, a}] && !fp.Parallel[Pair{a, b}]
}

// Table renders the footprint matrix over the sorted alphabet using the
// classic symbols: -> (causal), <- (reverse causal), || (parallel) and #
// (choice).
func (fp *Footprints) Table() ([]string, [][]string) {
	alphabet := sortedKeys(fp.Activities)
	rows := make([][]string, len(alphabet))
	for i, a := range alphabet {
		rows[i] = make([]string, len(alphabet))
		for j, b := range alphabet {
			switch {
			case fp.Parallel[Pair{a, b}]:
				rows[i][j] = "||"
			case fp.Sequence[Pair{a, b}]:
				rows[i][j] = "->"
			case fp.Sequence[Pair{b, a}]:
				rows[i][j] = "<-"
			default:
				rows[i][j] = "#"
			}
		}
	}
	return alphabet, rows
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedPairs(m map[Pair]bool) []Pair {
	out := make([]Pair, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}
