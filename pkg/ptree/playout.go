package ptree

import (
	"math/rand"

	"github.com/logflow/pmcore/pkg/eventlog"
)

// PlayoutOptions controls random trace generation.
type PlayoutOptions struct {
	// LoopProbability is the chance of another redo;do round (default 0.5).
	LoopProbability float64
	// MaxLoopRounds caps redo rounds per loop execution (default 10).
	MaxLoopRounds int
	Seed          int64
}

func (o PlayoutOptions) withDefaults() PlayoutOptions {
	if o.LoopProbability <= 0 || o.LoopProbability >= 1 {
		o.LoopProbability = 0.5
	}
	if o.MaxLoopRounds <= 0 {
		o.MaxLoopRounds = 10
	}
	return o
}

// Playout samples n activity sequences from the tree.
func Playout(t *Tree, n int, opts PlayoutOptions) [][]string {
	opts = opts.withDefaults()
	rng := rand.New(rand.NewSource(opts.Seed))
	out := make([][]string, n)
	for i := range out {
		out[i] = play(t, rng, opts)
	}
	return out
}

// PlayoutLog samples n traces into an event log with synthetic timestamps.
func PlayoutLog(t *Tree, n int, opts PlayoutOptions) *eventlog.EventLog {
	return eventlog.FromSequences(Playout(t, n, opts))
}

func play(t *Tree, rng *rand.Rand, opts PlayoutOptions) []string {
	switch t.Operator {
	case OpNone:
		if t.IsTau() {
			return nil
		}
		return []string{t.Label}
	case OpSequence:
		var out []string
		for _, c := range t.Children {
			out = append(out, play(c, rng, opts)...)
		}
		return out
	case OpXor:
		return play(pick(t.Children, rng), rng, opts)
	case OpParallel:
		parts := make([][]string, len(t.Children))
		for i, c := range t.Children {
			parts[i] = play(c, rng, opts)
		}
		return interleave(parts, rng)
	case OpLoop:
		out := play(t.Children[0], rng, opts)
		for round := 0; round < opts.MaxLoopRounds && rng.Float64() < opts.LoopProbability; round++ {
			out = append(out, play(t.Children[1], rng, opts)...)
			out = append(out, play(t.Children[0], rng, opts)...)
		}
		return out
	case OpOr:
		var parts [][]string
		for _, c := range t.Children {
			if rng.Float64() < 0.5 {
				parts = append(parts, play(c, rng, opts))
			}
		}
		if len(parts) == 0 {
			parts = append(parts, play(t.Children[rng.Intn(len(t.Children))], rng, opts))
		}
		return interleave(parts, rng)
	}
	return nil
}

// pick chooses a child uniformly, or proportionally to weights when any
// child carries one.
func pick(children []*Tree, rng *rand.Rand) *Tree {
	total := 0.0
	for _, c := range children {
		total += c.Weight
	}
	if total <= 0 {
		return children[rng.Intn(len(children))]
	}
	r := rng.Float64() * total
	for _, c := range children {
		r -= c.Weight
		if r < 0 {
			return c
		}
	}
	return children[len(children)-1]
}

// interleave merges the parts by shuffling a slot sequence that holds each
// part index once per element; relative order inside a part is kept.
func interleave(parts [][]string, rng *rand.Rand) []string {
	var slots []int
	for i, p := range parts {
		for range p {
			slots = append(slots, i)
		}
	}
	rng.Shuffle(len(slots), func(i, j int) { slots[i], slots[j] = slots[j], slots[i] })
	pos := make([]int, len(parts))
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, parts[s][pos[s]])
		pos[s]++
	}
	return out
}
