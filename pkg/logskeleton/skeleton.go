// Package logskeleton discovers log skeletons and checks traces against
// them.
//
// A skeleton holds six constraint families: equivalence (equal counts per
// case), always-after, always-before, never-together, directly-follows and
// the allowed per-case occurrence counts of each activity. Discovery keeps
// a relation when it holds for at least a (1 - noise) share of the cases or
// occurrences it applies to. Directly-follows works the other way round: it
// lists the allowed successors, dropping those seen in no more than a noise
// share of the occurrences.
package logskeleton

import (
	"sort"
	"strconv"
	"strings"

	"github.com/logflow/pmcore/pkg/config"
	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/eventlog"
)

// Constraint names a constraint family.
type Constraint int

const (
	Equivalence Constraint = iota
	AlwaysAfter
	AlwaysBefore
	NeverTogether
	DirectlyFollows
	ActivityFrequency
)

var constraintNames = [...]string{
	Equivalence:       "equivalence",
	AlwaysAfter:       "always_after",
	AlwaysBefore:      "always_before",
	NeverTogether:     "never_together",
	DirectlyFollows:   "directly_follows",
	ActivityFrequency: "activ_freq",
}

func (c Constraint) String() string {
	if c < 0 || int(c) >= len(constraintNames) {
		return "Constraint(" + strconv.Itoa(int(c)) + ")"
	}
	return constraintNames[c]
}

// Constraints lists every family in check order.
func Constraints() []Constraint {
	return []Constraint{Equivalence, AlwaysAfter, AlwaysBefore, NeverTogether, DirectlyFollows, ActivityFrequency}
}

// Pair is an ordered activity pair.
type Pair struct {
	A, B string
}

// Parameters configure discovery and conformance.
type Parameters struct {
	NoiseThreshold float64 `validate:"gte=0,lte=1"`
	ActivityKey    string
}

// ParametersFromConfig maps the configured noise threshold and activity key.
func ParametersFromConfig(cfg *config.Config) Parameters {
	return Parameters{
		NoiseThreshold: cfg.Discovery.NoiseThreshold,
		ActivityKey:    eventlog.KeysFromConfig(cfg.Log).Activity,
	}
}

func (p Parameters) activityKey() string {
	if p.ActivityKey == "" {
		return eventlog.KeyActivity
	}
	return p.ActivityKey
}

// Skeleton is a discovered log skeleton.
type Skeleton struct {
	Equivalence  map[Pair]bool
	AlwaysAfter  map[Pair]bool
	AlwaysBefore map[Pair]bool
	// NeverTogether holds each pair once, smaller activity first.
	NeverTogether   map[Pair]bool
	DirectlyFollows map[Pair]bool
	// Frequencies maps each activity to its allowed occurrence counts per
	// case, zero included when the activity may be absent.
	Frequencies    map[string]map[int]bool
	NoiseThreshold float64
}

// Activities returns the skeleton alphabet in sorted order.
func (s *Skeleton) Activities() []string {
	out := make([]string, 0, len(s.Frequencies))
	for a := range s.Frequencies {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Relations returns the sorted pairs of one pair-based family.
func (s *Skeleton) Relations(c Constraint) []Pair {
	var m map[Pair]bool
	switch c {
	case Equivalence:
		m = s.Equivalence
	case AlwaysAfter:
		m = s.AlwaysAfter
	case AlwaysBefore:
		m = s.AlwaysBefore
	case NeverTogether:
		m = s.NeverTogether
	case DirectlyFollows:
		m = s.DirectlyFollows
	}
	return sortPairs(m)
}

// Classes groups activities that are equivalent in both directions. Only
// groups of two or more are returned.
func (s *Skeleton) Classes() [][]string {
	acts := s.Activities()
	idx := make(map[string]int, len(acts))
	parent := make([]int, len(acts))
	for i, a := range acts {
		idx[a] = i
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for p := range s.Equivalence {
		if !s.Equivalence[Pair{p.B, p.A}] {
			continue
		}
		i, ok1 := idx[p.A]
		j, ok2 := idx[p.B]
		if !ok1 || !ok2 {
			continue
		}
		if ri, rj := find(i), find(j); ri != rj {
			if rj < ri {
				ri, rj = rj, ri
			}
			parent[rj] = ri
		}
	}
	groups := make(map[int][]string)
	for i, a := range acts {
		r := find(i)
		groups[r] = append(groups[r], a)
	}
	var out [][]string
	for _, g := range groups {
		if len(g) > 1 {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// AllowedSuccessors returns the directly-follows successors allowed for a.
func (s *Skeleton) AllowedSuccessors(a string) []string {
	var out []string
	for p := range s.DirectlyFollows {
		if p.A == a {
			out = append(out, p.B)
		}
	}
	sort.Strings(out)
	return out
}

// String renders the skeleton one family per line.
func (s *Skeleton) String() string {
	var b strings.Builder
	for _, c := range Constraints() {
		b.WriteString(c.String())
		b.WriteString(":")
		if c == ActivityFrequency {
			for _, a := range s.Activities() {
				b.WriteString(" " + a + "=" + formatCounts(s.Frequencies[a]))
			}
		} else {
			for _, p := range s.Relations(c) {
				b.WriteString(" (" + p.A + "," + p.B + ")")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatCounts(m map[int]bool) string {
	counts := make([]int, 0, len(m))
	for n := range m {
		counts = append(counts, n)
	}
	sort.Ints(counts)
	parts := make([]string, len(counts))
	for i, n := range counts {
		parts[i] = strconv.Itoa(n)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func sortPairs(m map[Pair]bool) []Pair {
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

// Discover mines a skeleton from the variants of a log.
func Discover(l *eventlog.EventLog, p Parameters) (*Skeleton, error) {
	if err := config.Validate(p); err != nil {
		return nil, err
	}
	v := eventlog.GetVariants(l, p.activityKey())
	var seqs [][]string
	var weights []int
	for _, g := range v.Groups() {
		seqs = append(seqs, g.Activities)
		weights = append(weights, g.Count())
	}
	return discover(seqs, weights, p.NoiseThreshold)
}

// DiscoverSequences mines a skeleton from activity sequences.
func DiscoverSequences(seqs [][]string, noise float64) (*Skeleton, error) {
	if noise < 0 || noise > 1 {
		return nil, errors.InvalidParameter("noise_threshold", noise, "must be within [0,1]")
	}
	weights := make([]int, len(seqs))
	for i := range weights {
		weights[i] = 1
	}
	return discover(seqs, weights, noise)
}

// tally accumulates how often a pair relation applied and held.
type tally struct {
	applied map[Pair]int
	held    map[Pair]int
}

func newTally() tally {
	return tally{applied: make(map[Pair]int), held: make(map[Pair]int)}
}

func (t tally) add(p Pair, holds bool, n int) {
	t.applied[p] += n
	if holds {
		t.held[p] += n
	}
}

// kept returns the pairs that held in at least a (1 - noise) share.
func (t tally) kept(noise float64) map[Pair]bool {
	out := make(map[Pair]bool)
	for p, n := range t.applied {
		if n > 0 && float64(t.held[p]) >= (1-noise)*float64(n) {
			out[p] = true
		}
	}
	return out
}

func discover(seqs [][]string, weights []int, noise float64) (*Skeleton, error) {
	alphabet := make(map[string]bool)
	total := 0
	for i, s := range seqs {
		total += weights[i]
		for _, a := range s {
			alphabet[a] = true
		}
	}
	if len(alphabet) == 0 {
		return nil, errors.New(errors.CodeNoActivities, "log has no activities")
	}
	acts := make([]string, 0, len(alphabet))
	for a := range alphabet {
		acts = append(acts, a)
	}
	sort.Strings(acts)

	equiv, after, before, never := newTally(), newTally(), newTally(), newTally()
	dfApplied := make(map[string]int)
	dfSeen := make(map[Pair]int)
	freqs := make(map[string]map[int]int, len(acts))
	for _, a := range acts {
		freqs[a] = make(map[int]int)
	}

	for i, s := range seqs {
		w := weights[i]
		count := counts(s)
		for _, a := range acts {
			freqs[a][count[a]] += w
		}
		for a, ca := range count {
			for _, b := range acts {
				if b == a {
					continue
				}
				equiv.add(Pair{a, b}, count[b] == ca, w)
				never.add(Pair{a, b}, count[b] == 0, w)
			}
		}
		for j, a := range s {
			seenBefore := make(map[string]bool)
			for _, x := range s[:j] {
				seenBefore[x] = true
			}
			seenAfter := make(map[string]bool)
			for _, x := range s[j+1:] {
				seenAfter[x] = true
			}
			for _, b := range acts {
				if b == a {
					continue
				}
				after.add(Pair{a, b}, seenAfter[b], w)
				before.add(Pair{a, b}, seenBefore[b], w)
			}
			if j+1 < len(s) {
				dfApplied[a] += w
				dfSeen[Pair{a, s[j+1]}] += w
			}
		}
	}

	sk := &Skeleton{
		Equivalence:     equiv.kept(noise),
		AlwaysAfter:     after.kept(noise),
		AlwaysBefore:    before.kept(noise),
		NeverTogether:   make(map[Pair]bool),
		DirectlyFollows: make(map[Pair]bool),
		Frequencies:     make(map[string]map[int]bool, len(acts)),
		NoiseThreshold:  noise,
	}
	nt := never.kept(noise)
	for p := range nt {
		if p.A < p.B && nt[Pair{p.B, p.A}] {
			sk.NeverTogether[p] = true
		}
	}
	for p, n := range dfSeen {
		if float64(n) > noise*float64(dfApplied[p.A]) {
			sk.DirectlyFollows[p] = true
		}
	}
	for _, a := range acts {
		sk.Frequencies[a] = frequentCounts(freqs[a], total, noise)
	}
	return sk, nil
}

// frequentCounts keeps the most frequent per-case counts until they cover
// a (1 - noise) share of the cases.
func frequentCounts(dist map[int]int, total int, noise float64) map[int]bool {
	type entry struct{ count, cases int }
	entries := make([]entry, 0, len(dist))
	for c, n := range dist {
		entries = append(entries, entry{c, n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].cases != entries[j].cases {
			return entries[i].cases > entries[j].cases
		}
		return entries[i].count < entries[j].count
	})
	out := make(map[int]bool)
	covered := 0
	for _, e := range entries {
		if len(out) > 0 && float64(covered) >= (1-noise)*float64(total) {
			break
		}
		out[e.count] = true
		covered += e.cases
	}
	return out
}

func counts(s []string) map[string]int {
	out := make(map[string]int, len(s))
	for _, a := range s {
		out[a]++
	}
	return out
}
