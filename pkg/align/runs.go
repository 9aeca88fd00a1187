package align

import (
	"container/heap"
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	edlib "github.com/hbollon/go-edlib"

	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/petri"
)

// runNode is a model run prefix together with one Levenshtein DP row per
// trace. Row entry j is the edit distance between the run's visible labels
// and the first j events of the trace; entry 0 is the run length.
type runNode struct {
	m        petri.Marking
	rows     [][]int
	parent   *runNode
	via      petri.TransitionID
	prio     int
	terminal bool
	seq      int
}

func (n *runNode) length() int {
	return n.rows[0][0]
}

type runQueue struct {
	nodes    []*runNode
	maximize bool
}

func (q *runQueue) Len() int { return len(q.nodes) }
func (q *runQueue) Less(i, j int) bool {
	a, b := q.nodes[i], q.nodes[j]
	if a.prio != b.prio {
		if q.maximize {
			return a.prio > b.prio
		}
		return a.prio < b.prio
	}
	if a.terminal != b.terminal {
		return a.terminal
	}
	return a.seq < b.seq
}
func (q *runQueue) Swap(i, j int)      { q.nodes[i], q.nodes[j] = q.nodes[j], q.nodes[i] }
func (q *runQueue) Push(x interface{}) { q.nodes = append(q.nodes, x.(*runNode)) }
func (q *runQueue) Pop() interface{} {
	n := q.nodes[len(q.nodes)-1]
	q.nodes = q.nodes[:len(q.nodes)-1]
	return n
}

// runObjective scores run prefixes for exploreRuns. bound must be
// monotone towards the optimum: a lower bound on every completion when
// minimizing, an upper bound when maximizing.
type runObjective struct {
	maximize bool
	bound    func(rows [][]int) int
	value    func(rows [][]int) int
	// maxLength caps the visible run length; zero means unbounded.
	maxLength int
}

// exploreRuns searches the model runs from the initial to the final
// marking, with at most limit tokens per place, for the run optimizing the
// objective against the traces.
func exploreRuns(ctx context.Context, an *petri.AcceptingNet, traces [][]string, limit, maxStates int, obj runObjective) (*runNode, Stats, error) {
	var stats Stats
	n := an.Net
	rows := make([][]int, len(traces))
	for i, t := range traces {
		rows[i] = make([]int, len(t)+1)
		for j := range rows[i] {
			rows[i][j] = j
		}
	}
	q := &runQueue{maximize: obj.maximize}
	seq := 0
	push := func(x *runNode) {
		x.seq = seq
		seq++
		stats.Queued++
		heap.Push(q, x)
	}
	root := &runNode{m: an.Initial.Clone(), rows: rows, via: -1}
	root.prio = obj.bound(rows)
	push(root)
	closed := make(map[string]bool)

	for q.Len() > 0 {
		if stats.Visited%deadlineCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, searchAborted(err)
			}
		}
		cur := heap.Pop(q).(*runNode)
		if cur.terminal {
			return cur, stats, nil
		}
		k := runKey(cur)
		if closed[k] {
			continue
		}
		closed[k] = true
		stats.Visited++
		if stats.Visited > maxStates {
			return nil, stats, errors.New(errors.CodeStateLimit, "run search exceeds state bound").
				WithContext("max_states", maxStates)
		}

		if cur.m.Equal(an.Final) {
			push(&runNode{m: cur.m, rows: cur.rows, parent: cur.parent, via: cur.via,
				prio: obj.value(cur.rows), terminal: true})
		}
		for _, t := range n.Enabled(cur.m) {
			next, err := n.Fire(t, cur.m)
			if err != nil || exceeds(next, limit) {
				continue
			}
			tr := n.Transition(t)
			nextRows := cur.rows
			if !tr.IsSilent() {
				if obj.maxLength > 0 && cur.length() >= obj.maxLength {
					continue
				}
				nextRows = extendRows(cur.rows, traces, tr.Label)
			}
			child := &runNode{m: next, rows: nextRows, parent: cur, via: t}
			if closed[runKey(child)] {
				continue
			}
			child.prio = obj.bound(nextRows)
			push(child)
		}
	}
	return nil, stats, nil
}

func exceeds(m petri.Marking, limit int) bool {
	if limit <= 0 {
		return false
	}
	for _, c := range m {
		if c > limit {
			return true
		}
	}
	return false
}

// extendRows advances every DP row by one label.
func extendRows(rows [][]int, traces [][]string, label string) [][]int {
	out := make([][]int, len(rows))
	for i, r := range rows {
		t := traces[i]
		nr := make([]int, len(r))
		nr[0] = r[0] + 1
		for j := 1; j < len(r); j++ {
			sub := r[j-1]
			if t[j-1] != label {
				sub++
			}
			nr[j] = min(r[j]+1, nr[j-1]+1, sub)
		}
		out[i] = nr
	}
	return out
}

func runKey(n *runNode) string {
	var sb strings.Builder
	sb.WriteString(n.m.Key())
	for _, r := range n.rows {
		sb.WriteByte('|')
		for j, v := range r {
			if j > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Itoa(v))
		}
	}
	return sb.String()
}

// runOf returns the fired transitions and visible labels of a run.
func runOf(n *petri.Net, x *runNode) ([]petri.TransitionID, []string) {
	var trans []petri.TransitionID
	for ; x.parent != nil; x = x.parent {
		trans = append(trans, x.via)
	}
	for i, j := 0, len(trans)-1; i < j; i, j = i+1, j-1 {
		trans[i], trans[j] = trans[j], trans[i]
	}
	var labels []string
	for _, t := range trans {
		if tr := n.Transition(t); !tr.IsSilent() {
			labels = append(labels, tr.Label)
		}
	}
	return trans, labels
}

// alphabet encodes activity sequences as strings with one rune per
// activity so they can be compared with string edit distances. Runes start
// at U+0100 and skip the surrogate block.
type alphabet map[string]rune

// alphabetSize is the number of distinct activities an alphabet can encode.
const alphabetSize = utf8.MaxRune + 1 - 0x100 - (0xE000 - 0xD800)

func alphabetRune(i int) rune {
	r := rune(0x100 + i)
	if r >= 0xD800 {
		r += 0xE000 - 0xD800
	}
	return r
}

func (a alphabet) encode(seq []string) (string, error) {
	rs := make([]rune, len(seq))
	for i, s := range seq {
		r, ok := a[s]
		if !ok {
			if len(a) >= alphabetSize {
				return "", errors.New(errors.CodeInvalidParameter, "too many distinct activities to compare").
					WithContext("limit", alphabetSize)
			}
			r = alphabetRune(len(a))
			a[s] = r
		}
		rs[i] = r
	}
	return string(rs), nil
}

// distances returns the Levenshtein distance from run to every trace.
func distances(run []string, traces [][]string) ([]int, error) {
	enc := make(alphabet)
	s, err := enc.encode(run)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(traces))
	for i, t := range traces {
		ts, err := enc.encode(t)
		if err != nil {
			return nil, err
		}
		out[i] = edlib.LevenshteinDistance(s, ts)
	}
	return out, nil
}

func checkTraces(traces [][]string) error {
	if len(traces) == 0 {
		return errors.InvalidParameter("traces", 0, "at least one trace is required")
	}
	return nil
}
