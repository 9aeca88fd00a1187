package align

import (
	"container/heap"
	"context"
	"hash/fnv"
	"math"

	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/petri"
)

const deadlineCheckInterval = 256

// Stats counts the work done by one search.
type Stats struct {
	Visited  int
	Queued   int
	LPSolves int
}

type node struct {
	m     petri.Marking
	key   uint64
	g, h  float64
	exact bool
	// x is the relaxation solution backing h, indexed by product transition.
	x      []float64
	depth  int
	parent *node
	via    petri.TransitionID
	seq    int
	index  int
}

func (n *node) f() float64 { return n.g + n.h }

// openSet orders nodes by f, then by larger g, then by insertion.
type openSet []*node

func (q openSet) Len() int { return len(q) }
func (q openSet) Less(i, j int) bool {
	fi, fj := q[i].f(), q[j].f()
	if fi != fj {
		return fi < fj
	}
	if q[i].g != q[j].g {
		return q[i].g > q[j].g
	}
	return q[i].seq < q[j].seq
}
func (q openSet) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *openSet) Push(x interface{}) {
	n := x.(*node)
	n.index = len(*q)
	*q = append(*q, n)
}
func (q *openSet) Pop() interface{} {
	old := *q
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*q = old[:len(old)-1]
	return n
}

type searcher struct {
	sp    *syncProduct
	p     Parameters
	se    *stateEquation
	stats Stats
	seq   int
}

func markingHash(m petri.Marking) uint64 {
	h := fnv.New64a()
	h.Write([]byte(m.Key()))
	return h.Sum64()
}

func (s *searcher) cost(t petri.TransitionID, depth int) float64 {
	c := s.sp.steps[t].cost
	if s.p.Variant == Discounted {
		c *= math.Pow(s.p.Exponent, -float64(depth))
	}
	return c
}

func (s *searcher) push(q *openSet, n *node) {
	n.seq = s.seq
	s.seq++
	s.stats.Queued++
	heap.Push(q, n)
}

// run searches the product for the cheapest firing sequence from the
// initial to the final marking. It returns the goal node, or nil when the
// final marking is unreachable.
func (s *searcher) run(ctx context.Context) (*node, error) {
	sp := s.sp
	astar := s.p.Variant == AStar
	if astar {
		s.se = newStateEquation(sp)
	}
	lowMemory := s.p.Variant == DijkstraLowMemory
	limit := 0
	if s.p.Variant == Discounted {
		limit = s.p.MarkingLimit
	}

	root := &node{m: sp.Initial.Clone(), via: -1, exact: true}
	root.key = markingHash(root.m)
	if astar {
		h, x := s.se.estimate(root.m)
		s.stats.LPSolves++
		if math.IsInf(h, 1) {
			return nil, nil
		}
		root.h, root.x = h, x
	}

	q := &openSet{}
	best := map[uint64]float64{root.key: 0}
	closed := make(map[uint64]bool)
	s.push(q, root)

	for q.Len() > 0 {
		if s.stats.Visited%deadlineCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, searchAborted(err)
			}
		}
		n := heap.Pop(q).(*node)
		if closed[n.key] {
			continue
		}
		if n.m.Equal(sp.Final) {
			return n, nil
		}
		if astar && !n.exact {
			h, x := s.se.estimate(n.m)
			s.stats.LPSolves++
			if math.IsInf(h, 1) {
				closed[n.key] = true
				continue
			}
			n.x, n.exact = x, true
			if h > n.h {
				n.h = h
				s.push(q, n)
				continue
			}
		}

		closed[n.key] = true
		s.stats.Visited++
		if s.stats.Visited > s.p.MaxStates {
			return nil, errors.New(errors.CodeStateLimit, "alignment search exceeds state bound").
				WithContext("max_states", s.p.MaxStates)
		}

		for _, t := range sp.Net.Enabled(n.m) {
			next, err := sp.Net.Fire(t, n.m)
			if err != nil {
				continue
			}
			if limit > 0 && sp.exceedsLimit(next, limit) {
				continue
			}
			k := markingHash(next)
			if closed[k] {
				continue
			}
			c := s.cost(t, n.depth)
			g := n.g + c
			if old, ok := best[k]; ok && old <= g {
				continue
			}
			best[k] = g
			child := &node{m: next, key: k, g: g, depth: n.depth + 1, parent: n, via: t, exact: true}
			if astar {
				child.h = math.Max(0, n.h-c)
				if n.x != nil && n.x[t] >= 1-pivotEpsilon {
					child.x = append([]float64(nil), n.x...)
					child.x[t]--
				} else {
					child.exact = false
				}
			}
			s.push(q, child)
		}
		if lowMemory {
			n.m = nil
		}
		n.x = nil
	}
	return nil, nil
}

func searchAborted(err error) error {
	if err == context.DeadlineExceeded {
		return errors.Wrap(err, errors.CodeSearchTimeout, "alignment search timed out")
	}
	return errors.Wrap(err, errors.CodeContextCanceled, "alignment search canceled")
}

// path rebuilds the moves leading to n.
func (s *searcher) path(n *node) []Move {
	var moves []Move
	for ; n.parent != nil; n = n.parent {
		moves = append(moves, s.sp.move(n.via))
	}
	for i, j := 0, len(moves)-1; i < j; i, j = i+1, j-1 {
		moves[i], moves[j] = moves[j], moves[i]
	}
	return moves
}
