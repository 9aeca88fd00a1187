package align

import (
	"context"

	"github.com/logflow/pmcore/internal/pool"
	"github.com/logflow/pmcore/pkg/petri"
)

// DecomposedAlignment is an alignment recombined from alignments of the
// components of a maximal decomposition.
type DecomposedAlignment struct {
	// Moves interleave the component moves. Each component keeps the order
	// of its own moves and a border transition's model move appears once.
	Moves []Move
	// Cost sums the component costs. A label shared by k components
	// contributes 1/k of its move cost in each.
	Cost float64
	// Components is the number of components after merging.
	Components int
	Merges     int
	// Disagreements counts the border disagreements that were tolerated.
	Disagreements int
}

type componentResult struct {
	comp *petri.Component
	// events maps projected positions back to trace positions.
	events    []int
	alignment *Alignment
}

// Decomposed aligns a trace component by component. While the components
// disagree on more border events than p.BorderThreshold, the two most
// disagreeing components are merged and realigned.
func Decomposed(ctx context.Context, an *petri.AcceptingNet, activities []string, p Parameters) (*DecomposedAlignment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := an.Validate(); err != nil {
		return nil, err
	}
	p = p.withDefaults()

	comps := petri.Decompose(an)
	results := make([]*componentResult, len(comps))
	for i, c := range comps {
		results[i] = &componentResult{comp: c}
	}
	merges := 0
	for {
		if err := alignComponents(ctx, an, results, activities, p); err != nil {
			return nil, err
		}
		pairs, total := disagreements(an.Net, results, activities)
		da, stuck := stitch(an.Net, results, activities, p)
		if len(stuck) > 0 {
			for pr, c := range stuck {
				pairs[pr] += c
			}
			total++
		}
		if total == 0 {
			if t, ok := replays(an, da.Moves); !ok {
				blame(pairs, results, t)
				total++
			}
		}
		if total <= p.BorderThreshold || len(results) == 1 {
			da.Merges = merges
			da.Disagreements = total
			return da, nil
		}
		i, j := worstPair(pairs, len(results))
		merged := &componentResult{comp: petri.MergeComponents(an, results[i].comp, results[j].comp)}
		next := make([]*componentResult, 0, len(results)-1)
		for k, r := range results {
			switch k {
			case i:
				next = append(next, merged)
			case j:
			default:
				next = append(next, r)
			}
		}
		// the cost split of the merged labels changed
		stale := make(map[string]bool)
		for _, l := range merged.comp.Labels() {
			stale[l] = true
		}
		for _, r := range next {
			for _, l := range r.comp.Labels() {
				if stale[l] {
					r.alignment = nil
					break
				}
			}
		}
		results = next
		merges++
	}
}

// sharing counts for every visible label the components carrying it.
func sharing(results []*componentResult) map[string]int {
	k := make(map[string]int)
	for _, r := range results {
		for _, l := range r.comp.Labels() {
			k[l]++
		}
	}
	return k
}

// alignComponents aligns the trace projection on every component that has
// no alignment yet.
func alignComponents(ctx context.Context, an *petri.AcceptingNet, results []*componentResult, activities []string, p Parameters) error {
	k := sharing(results)
	var todo []*componentResult
	for _, r := range results {
		if r.alignment == nil {
			todo = append(todo, r)
		}
	}
	return pool.ForEach(ctx, len(todo), p.Workers, func(ctx context.Context, i int) error {
		r := todo[i]
		labels := make(map[string]bool)
		for _, l := range r.comp.Labels() {
			labels[l] = true
		}
		var proj []string
		r.events = r.events[:0]
		for pos, a := range activities {
			if labels[a] {
				proj = append(proj, a)
				r.events = append(r.events, pos)
			}
		}

		cp := p
		cp.Workers = 0
		cp.LogMoveCosts = make(map[string]float64)
		cp.ModelMoveCosts = make(map[petri.TransitionID]float64)
		for l := range labels {
			cp.LogMoveCosts[l] = p.logCost(l) / float64(k[l])
		}
		for _, t := range r.comp.Net.Transitions() {
			orig := r.comp.Transitions[t.ID]
			c := p.modelCost(an.Net, orig)
			if !t.IsSilent() {
				c /= float64(k[t.Label])
			}
			cp.ModelMoveCosts[t.ID] = c
		}
		a, err := NewAligner(r.comp.AcceptingNet, cp)
		if err != nil {
			return err
		}
		al, err := a.search(ctx, proj)
		if err != nil {
			return err
		}
		r.alignment = al
		return nil
	})
}

// disagreements compares the components on their border labels. Two
// components disagree on an event when one synchronizes it and the other
// moves it on the log or synchronizes it with another transition, and on a
// border transition when they move it on the model a different number of
// times.
func disagreements(n *petri.Net, results []*componentResult, activities []string) (map[[2]int]int, int) {
	pairs := make(map[[2]int]int)
	total := 0
	synced := make([]map[int]petri.TransitionID, len(results))
	modelMoves := make([]map[petri.TransitionID]int, len(results))
	carries := make([]map[string]bool, len(results))
	for i, r := range results {
		synced[i] = make(map[int]petri.TransitionID)
		modelMoves[i] = make(map[petri.TransitionID]int)
		carries[i] = make(map[string]bool)
		for _, l := range r.comp.Labels() {
			carries[i][l] = true
		}
		for _, m := range r.alignment.Moves {
			switch m.Kind {
			case SyncMove:
				synced[i][r.events[m.Event]] = r.comp.Transitions[m.Transition]
			case ModelMove:
				if m.Label != "" {
					modelMoves[i][r.comp.Transitions[m.Transition]]++
				}
			}
		}
	}

	for pos, a := range activities {
		var holders []int
		for i := range results {
			if carries[i][a] {
				holders = append(holders, i)
			}
		}
		conflict := false
		for x := 0; x < len(holders); x++ {
			for y := x + 1; y < len(holders); y++ {
				tx, okx := synced[holders[x]][pos]
				ty, oky := synced[holders[y]][pos]
				if okx != oky || tx != ty {
					pairs[[2]int{holders[x], holders[y]}]++
					conflict = true
				}
			}
		}
		if conflict {
			total++
		}
	}

	for _, t := range n.Transitions() {
		if t.IsSilent() {
			continue
		}
		var holders []int
		for i := range results {
			if carries[i][t.Label] {
				holders = append(holders, i)
			}
		}
		conflict := false
		for x := 0; x < len(holders); x++ {
			for y := x + 1; y < len(holders); y++ {
				a, b := modelMoves[holders[x]][t.ID], modelMoves[holders[y]][t.ID]
				if a != b {
					pairs[[2]int{holders[x], holders[y]}] += abs(a - b)
					conflict = true
				}
			}
		}
		if conflict {
			total++
		}
	}
	return pairs, total
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// worstPair returns the pair with the most disagreements, preferring
// smaller indices on ties.
func worstPair(pairs map[[2]int]int, n int) (int, int) {
	bi, bj, best := 0, 1, -1
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if c := pairs[[2]int{i, j}]; c > best {
				bi, bj, best = i, j, c
			}
		}
	}
	return bi, bj
}

type stitchNode struct {
	// event is the trace position, -1 for model moves.
	event int
	move  Move
	// holders are the components whose alignment contains the node, in
	// increasing order.
	holders []int
	succ    []int
	// pending counts the predecessors not placed yet.
	pending int
}

type moveKey struct {
	t    petri.TransitionID
	occ  int
	comp int
}

// stitch interleaves the component alignments into one alignment of the
// whole net. Events keep trace order and every component keeps the order of
// its own moves. The i-th model move of a border transition is the same move
// in every component holding it. When these orders form a cycle, the shared
// nodes left unplaced are counted per component pair in stuck and placed in
// alignment order.
func stitch(n *petri.Net, results []*componentResult, activities []string, p Parameters) (*DecomposedAlignment, map[[2]int]int) {
	da := &DecomposedAlignment{Components: len(results)}
	owners := make(map[petri.TransitionID]int)
	for _, r := range results {
		for _, t := range r.comp.Transitions {
			owners[t]++
		}
	}

	nodes := make([]*stitchNode, len(activities))
	for pos := range activities {
		nodes[pos] = &stitchNode{event: pos}
		if pos > 0 {
			nodes[pos-1].succ = append(nodes[pos-1].succ, pos)
			nodes[pos].pending++
		}
	}
	synced := make(map[int]int)
	syncedBy := make(map[int]petri.TransitionID)
	index := make(map[moveKey]int)
	for i, r := range results {
		da.Cost += r.alignment.Cost
		occ := make(map[petri.TransitionID]int)
		prev := -1
		for k, m := range r.alignment.Moves {
			var cur int
			switch m.Kind {
			case SyncMove:
				cur = r.events[m.Event]
				synced[cur]++
				if _, ok := syncedBy[cur]; !ok {
					syncedBy[cur] = r.comp.Transitions[m.Transition]
				}
			case LogMove:
				cur = r.events[m.Event]
			case ModelMove:
				orig := r.comp.Transitions[m.Transition]
				key := moveKey{t: orig, occ: k, comp: i}
				if owners[orig] > 1 {
					key = moveKey{t: orig, occ: occ[orig], comp: -1}
					occ[orig]++
				}
				idx, ok := index[key]
				if !ok {
					idx = len(nodes)
					index[key] = idx
					nodes = append(nodes, &stitchNode{event: -1, move: Move{
						Kind: ModelMove, Event: -1, Transition: orig, Label: m.Label,
						Cost: p.modelCost(n, orig),
					}})
				}
				cur = idx
			}
			nodes[cur].holders = append(nodes[cur].holders, i)
			if prev >= 0 {
				nodes[prev].succ = append(nodes[prev].succ, cur)
				nodes[cur].pending++
			}
			prev = cur
		}
	}

	var stuck map[[2]int]int
	placed := make([]bool, len(nodes))
	for left := len(nodes); left > 0; left-- {
		// model moves go as early as their predecessors allow
		next := -1
		for idx, nd := range nodes {
			if placed[idx] || nd.pending > 0 {
				continue
			}
			if next < 0 || (nd.event < 0 && nodes[next].event >= 0) {
				next = idx
			}
		}
		if next < 0 {
			if stuck == nil {
				stuck = make(map[[2]int]int)
			}
			for idx, nd := range nodes {
				if placed[idx] {
					continue
				}
				if next < 0 {
					next = idx
				}
				for x := 0; x < len(nd.holders); x++ {
					for y := x + 1; y < len(nd.holders); y++ {
						stuck[[2]int{nd.holders[x], nd.holders[y]}]++
					}
				}
			}
		}
		placed[next] = true
		nd := nodes[next]
		for _, s := range nd.succ {
			nodes[s].pending--
		}
		if nd.event < 0 {
			da.Moves = append(da.Moves, nd.move)
			continue
		}

		pos, a, h := nd.event, activities[nd.event], len(nd.holders)
		if h > 0 && synced[pos] == h {
			da.Moves = append(da.Moves, Move{Kind: SyncMove, Event: pos, Activity: a, Transition: syncedBy[pos], Label: a, Cost: p.SyncCost})
			continue
		}
		m := Move{Kind: LogMove, Event: pos, Activity: a, Transition: -1, Cost: p.logCost(a)}
		if h == 0 {
			// no component knows the activity
			da.Cost += m.Cost
		}
		da.Moves = append(da.Moves, m)
	}
	return da, stuck
}

// replays fires the model side of moves on the whole net. It returns the
// first transition that is not enabled, or -1 when the moves end outside
// the final marking.
func replays(an *petri.AcceptingNet, moves []Move) (petri.TransitionID, bool) {
	m := an.Initial
	for _, mv := range moves {
		if mv.Kind == LogMove {
			continue
		}
		next, err := an.Net.Fire(mv.Transition, m)
		if err != nil {
			return mv.Transition, false
		}
		m = next
	}
	return -1, m.Equal(an.Final)
}

// blame charges a failed replay of t to the component pairs containing t.
// Pairs with a single holder weigh less; without any holder every pair is
// charged.
func blame(pairs map[[2]int]int, results []*componentResult, t petri.TransitionID) {
	in := make([]bool, len(results))
	found := false
	for i, r := range results {
		for _, ct := range r.comp.Transitions {
			if ct == t {
				in[i], found = true, true
				break
			}
		}
	}
	for x := range results {
		for y := x + 1; y < len(results); y++ {
			switch {
			case !found, in[x] && in[y]:
				pairs[[2]int{x, y}] += 2
			case in[x] || in[y]:
				pairs[[2]int{x, y}]++
			}
		}
	}
}
