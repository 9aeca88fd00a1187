package inductive

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/logflow/pmcore/pkg/dfg"
	"github.com/logflow/pmcore/pkg/ptree"
)

// cut is a partition of the alphabet under an operator. For SEQUENCE the
// parts are in order; for LOOP the first part is the do body.
type cut struct {
	op    ptree.Operator
	parts [][]string
}

func (c *cut) partOf() map[string]int {
	out := make(map[string]int)
	for i, p := range c.parts {
		for _, a := range p {
			out[a] = i
		}
	}
	return out
}

// findCut tries the XOR, SEQUENCE, PARALLEL and LOOP cuts in that order.
func findCut(g *dfg.Graph) *cut {
	alphabet := g.Alphabet()
	if len(alphabet) < 2 {
		return nil
	}
	if parts := xorCut(g, alphabet); parts != nil {
		return &cut{op: ptree.OpXor, parts: parts}
	}
	if parts := sequenceCut(g, alphabet); parts != nil {
		return &cut{op: ptree.OpSequence, parts: parts}
	}
	if parts := parallelCut(g, alphabet); parts != nil {
		return &cut{op: ptree.OpParallel, parts: parts}
	}
	if parts := loopCut(g, alphabet); parts != nil {
		return &cut{op: ptree.OpLoop, parts: parts}
	}
	return nil
}

// xorCut splits the alphabet into the weakly connected components of the
// graph.
func xorCut(g *dfg.Graph, alphabet []string) [][]string {
	index := indexOf(alphabet)
	ug := simple.NewUndirectedGraph()
	for i := range alphabet {
		ug.AddNode(simple.Node(i))
	}
	for e := range g.Edges {
		i, ok1 := index[e.From]
		j, ok2 := index[e.To]
		if !ok1 || !ok2 || i == j {
			continue
		}
		ug.SetEdge(simple.Edge{F: simple.Node(i), T: simple.Node(j)})
	}
	parts := namedParts(topo.ConnectedComponents(ug), alphabet)
	if len(parts) < 2 {
		return nil
	}
	return parts
}

// sequenceCut merges activities that are mutually reachable or mutually
// unreachable and orders the resulting groups by reachability.
func sequenceCut(g *dfg.Graph, alphabet []string) [][]string {
	reach := reachability(g, alphabet)
	n := len(alphabet)
	uf := newUnionFind(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if reach[i][j] == reach[j][i] {
				uf.union(i, j)
			}
		}
	}
	groups := uf.groups()
	if len(groups) < 2 {
		return nil
	}

	preds := make([]int, n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			if i != j && reach[i][j] {
				preds[j]++
			}
		}
	}
	sort.SliceStable(groups, func(x, y int) bool {
		return preds[groups[x][0]] < preds[groups[y][0]]
	})

	for x := 0; x < len(groups); x++ {
		for y := x + 1; y < len(groups); y++ {
			for _, a := range groups[x] {
				for _, b := range groups[y] {
					if !reach[a][b] || reach[b][a] {
						return nil
					}
				}
			}
		}
	}

	parts := make([][]string, len(groups))
	for i, grp := range groups {
		parts[i] = names(grp, alphabet)
	}
	return parts
}

// parallelCut partitions the alphabet into components of the graph whose
// edges join pairs not directly following each other in both directions.
// Every part needs a start and an end activity; parts lacking one are merged
// into the first part that has both.
func parallelCut(g *dfg.Graph, alphabet []string) [][]string {
	if len(g.Start) == 0 || len(g.End) == 0 {
		return nil
	}
	n := len(alphabet)
	uf := newUnionFind(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			a, b := alphabet[i], alphabet[j]
			if g.Follows(a, b) == 0 || g.Follows(b, a) == 0 {
				uf.union(i, j)
			}
		}
	}
	var valid, invalid [][]int
	for _, grp := range uf.groups() {
		if hasAny(grp, alphabet, g.Start) && hasAny(grp, alphabet, g.End) {
			valid = append(valid, grp)
		} else {
			invalid = append(invalid, grp)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	for _, grp := range invalid {
		valid[0] = append(valid[0], grp...)
	}
	if len(valid) < 2 {
		return nil
	}
	parts := make([][]string, len(valid))
	for i, grp := range valid {
		parts[i] = names(grp, alphabet)
	}
	sortParts(parts)
	return parts
}

// loopCut puts start and end activities into the do body and the remaining
// connected components into redo parts. A component is folded back into the
// body when it is entered from a non-end activity, exits to a non-start
// activity, or does not connect to all start (end) activities once it
// connects to one.
func loopCut(g *dfg.Graph, alphabet []string) [][]string {
	if len(g.Start) == 0 || len(g.End) == 0 {
		return nil
	}
	do := make(map[string]bool)
	for a := range g.Start {
		do[a] = true
	}
	for a := range g.End {
		do[a] = true
	}

	var rest []string
	for _, a := range alphabet {
		if !do[a] {
			rest = append(rest, a)
		}
	}
	if len(rest) == 0 {
		return nil
	}
	redo := xorCut(g.Project(toSet(rest)), rest)
	if redo == nil {
		redo = [][]string{rest}
	}

	merged := make([]bool, len(redo))
	for changed := true; changed; {
		changed = false
		for i, part := range redo {
			if merged[i] || redoAllowed(g, part, do) {
				continue
			}
			merged[i] = true
			changed = true
			for _, a := range part {
				do[a] = true
			}
		}
	}

	var parts [][]string
	for i, part := range redo {
		if !merged[i] {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	sortParts(parts)
	body := make([]string, 0, len(do))
	for a := range do {
		body = append(body, a)
	}
	sort.Strings(body)
	return append([][]string{body}, parts...)
}

func redoAllowed(g *dfg.Graph, part []string, do map[string]bool) bool {
	inPart := toSet(part)
	for e := range g.Edges {
		switch {
		case do[e.From] && inPart[e.To]:
			if g.End[e.From] == 0 {
				return false
			}
		case inPart[e.From] && do[e.To]:
			if g.Start[e.To] == 0 {
				return false
			}
		}
	}
	for _, b := range part {
		toStart, fromEnd := 0, 0
		for s := range g.Start {
			if g.Follows(b, s) > 0 {
				toStart++
			}
		}
		for e := range g.End {
			if g.Follows(e, b) > 0 {
				fromEnd++
			}
		}
		if toStart > 0 && toStart < len(g.Start) {
			return false
		}
		if fromEnd > 0 && fromEnd < len(g.End) {
			return false
		}
	}
	return true
}

// reachability returns reach[i][j]: alphabet[j] is reachable from
// alphabet[i] by a non-empty path. Self-loops are ignored.
func reachability(g *dfg.Graph, alphabet []string) [][]bool {
	dg, order := g.Directed()
	index := indexOf(alphabet)
	n := len(alphabet)
	reach := make([][]bool, n)
	for i := range reach {
		reach[i] = make([]bool, n)
	}
	for src, a := range order {
		i := index[a]
		bf := traverse.BreadthFirst{
			Visit: func(nd graph.Node) {
				if j := index[order[nd.ID()]]; j != i {
					reach[i][j] = true
				}
			},
		}
		bf.Walk(dg, simple.Node(src), nil)
	}
	return reach
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		uf.parent[rb] = ra
	} else {
		uf.parent[ra] = rb
	}
}

// groups returns the classes ordered by their smallest member.
func (uf *unionFind) groups() [][]int {
	byRoot := make(map[int]int)
	var out [][]int
	for i := range uf.parent {
		r := uf.find(i)
		k, ok := byRoot[r]
		if !ok {
			k = len(out)
			byRoot[r] = k
			out = append(out, nil)
		}
		out[k] = append(out[k], i)
	}
	return out
}

func indexOf(alphabet []string) map[string]int {
	out := make(map[string]int, len(alphabet))
	for i, a := range alphabet {
		out[a] = i
	}
	return out
}

func toSet(xs []string) map[string]bool {
	out := make(map[string]bool, len(xs))
	for _, x := range xs {
		out[x] = true
	}
	return out
}

func names(ids []int, alphabet []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = alphabet[id]
	}
	sort.Strings(out)
	return out
}

func namedParts(components [][]graph.Node, alphabet []string) [][]string {
	parts := make([][]string, len(components))
	for i, comp := range components {
		ids := make([]int, len(comp))
		for j, nd := range comp {
			ids[j] = int(nd.ID())
		}
		parts[i] = names(ids, alphabet)
	}
	sortParts(parts)
	return parts
}

// sortParts orders sorted parts by their first activity.
func sortParts(parts [][]string) {
	sort.Slice(parts, func(i, j int) bool { return parts[i][0] < parts[j][0] })
}

func hasAny(ids []int, alphabet []string, counts map[string]int) bool {
	for _, id := range ids {
		if counts[alphabet[id]] > 0 {
			return true
		}
	}
	return false
}
