// Package alpha implements the Alpha and Alpha+ miners.
package alpha

import (
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/eventlog"
	"github.com/logflow/pmcore/pkg/petri"
)

// Variant selects the miner.
type Variant int

const (
	// Classic is the original Alpha algorithm.
	Classic Variant = iota
	// Plus handles length-one and length-two loops.
	Plus
)

func (v Variant) String() string {
	if v == Plus {
		return "alpha_plus"
	}
	return "alpha"
}

// Parameters configure discovery.
type Parameters struct {
	Variant     Variant
	ActivityKey string
}

// Discover mines a workflow net. It fails with CodeNoActivities on a log
// without events.
func Discover(l *eventlog.EventLog, p Parameters) (*petri.AcceptingNet, error) {
	key := p.ActivityKey
	if key == "" {
		key = eventlog.KeyActivity
	}
	v := eventlog.GetVariants(l, key)
	seqs := make([][]string, 0, v.Len())
	for _, g := range v.Groups() {
		seqs = append(seqs, g.Activities)
	}
	return DiscoverSequences(seqs, p.Variant)
}

// DiscoverSequences mines a workflow net from activity sequences.
func DiscoverSequences(seqs [][]string, variant Variant) (*petri.AcceptingNet, error) {
	var loops map[string]bool
	mined := seqs
	if variant == Plus {
		loops = lengthOneLoops(seqs)
		mined = withoutActivities(seqs, loops)
	}
	r := NewRelations(mined, variant == Plus)
	if len(r.Activities) == 0 && len(loops) == 0 {
		return nil, errors.New(errors.CodeNoActivities, "log has no activities")
	}

	b := newBuilder(variant.String())
	for _, a := range r.Activities {
		b.transition(a)
	}
	b.source(r.Start)
	for _, pl := range r.places() {
		b.place(pl)
	}
	b.sink(r.End)

	if len(loops) > 0 {
		for _, a := range sortedSet(loops) {
			pre, post := loopNeighbours(seqs, a, loops)
			b.attachLoop(a, pre, post)
		}
	}
	return b.result(), nil
}

// Place is an Alpha place: every activity in In causally precedes every
// activity in Out; both sides are internally unrelated.
type Place struct {
	In  []string
	Out []string
}

// Name renders the place as ({in},{out}).
func (p Place) Name() string {
	return "({" + strings.Join(p.In, ",") + "},{" + strings.Join(p.Out, ",") + "})"
}

// Relations holds the ordering relations of a log.
type Relations struct {
	Activities []string
	Start      map[string]bool
	End        map[string]bool

	index    map[string]int
	follows  map[[2]int]bool
	triangle map[[2]int]bool
	plus     bool
}

// NewRelations derives the directly-follows relation and, for Alpha+, the
// length-two-loop triangle relation (a b a) from the sequences.
func NewRelations(seqs [][]string, plus bool) *Relations {
	r := &Relations{
		Start:    make(map[string]bool),
		End:      make(map[string]bool),
		index:    make(map[string]int),
		follows:  make(map[[2]int]bool),
		triangle: make(map[[2]int]bool),
		plus:     plus,
	}
	seen := make(map[string]bool)
	for _, s := range seqs {
		for _, a := range s {
			if !seen[a] {
				seen[a] = true
				r.Activities = append(r.Activities, a)
			}
		}
	}
	sort.Strings(r.Activities)
	for i, a := range r.Activities {
		r.index[a] = i
	}
	for _, s := range seqs {
		if len(s) == 0 {
			continue
		}
		r.Start[s[0]] = true
		r.End[s[len(s)-1]] = true
		for i := 1; i < len(s); i++ {
			r.follows[[2]int{r.index[s[i-1]], r.index[s[i]]}] = true
			if i >= 2 && s[i-2] == s[i] {
				r.triangle[[2]int{r.index[s[i-2]], r.index[s[i-1]]}] = true
			}
		}
	}
	return r
}

// Follows reports a > b.
func (r *Relations) Follows(a, b string) bool {
	i, ok1 := r.index[a]
	j, ok2 := r.index[b]
	return ok1 && ok2 && r.follows[[2]int{i, j}]
}

func (r *Relations) loopOfTwo(i, j int) bool {
	return r.plus && (r.triangle[[2]int{i, j}] || r.triangle[[2]int{j, i}])
}

func (r *Relations) causal(i, j int) bool {
	if !r.follows[[2]int{i, j}] {
		return false
	}
	return !r.follows[[2]int{j, i}] || r.loopOfTwo(i, j)
}

func (r *Relations) unrelated(i, j int) bool {
	return !r.follows[[2]int{i, j}] && !r.follows[[2]int{j, i}]
}

// Causal reports a -> b.
func (r *Relations) Causal(a, b string) bool {
	i, ok1 := r.index[a]
	j, ok2 := r.index[b]
	return ok1 && ok2 && r.causal(i, j)
}

// Parallel reports a || b.
func (r *Relations) Parallel(a, b string) bool {
	i, ok1 := r.index[a]
	j, ok2 := r.index[b]
	return ok1 && ok2 && r.follows[[2]int{i, j}] && r.follows[[2]int{j, i}] && !r.loopOfTwo(i, j)
}

// Choice reports a # b.
func (r *Relations) Choice(a, b string) bool {
	i, ok1 := r.index[a]
	j, ok2 := r.index[b]
	return ok1 && ok2 && r.unrelated(i, j)
}

type pair struct {
	in, out *roaring.Bitmap
}

func (p pair) key() string {
	return p.in.String() + "|" + p.out.String()
}

func (p pair) covers(o pair) bool {
	return o.in.AndCardinality(p.in) == o.in.GetCardinality() &&
		o.out.AndCardinality(p.out) == o.out.GetCardinality()
}

// places returns the maximal pairs ordered by name.
func (r *Relations) places() []Place {
	var basic []pair
	for i := range r.Activities {
		for j := range r.Activities {
			if r.causal(i, j) && r.unrelated(i, i) && r.unrelated(j, j) {
				basic = append(basic, pair{in: roaring.BitmapOf(uint32(i)), out: roaring.BitmapOf(uint32(j))})
			}
		}
	}

	// every valid pair grows from a basic pair one activity at a time
	all := make(map[string]pair)
	queue := make([]pair, 0, len(basic))
	for _, p := range basic {
		all[p.key()] = p
		queue = append(queue, p)
	}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, q := range basic {
			in := roaring.Or(p.in, q.in)
			out := roaring.Or(p.out, q.out)
			next := pair{in: in, out: out}
			if _, ok := all[next.key()]; ok || !r.valid(next) {
				continue
			}
			all[next.key()] = next
			queue = append(queue, next)
		}
	}

	var out []Place
	for k, p := range all {
		maximal := true
		for k2, o := range all {
			if k != k2 && o.covers(p) {
				maximal = false
				break
			}
		}
		if maximal {
			out = append(out, Place{In: r.names(p.in), Out: r.names(p.out)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (r *Relations) valid(p pair) bool {
	in, out := p.in.ToArray(), p.out.ToArray()
	for _, a := range in {
		for _, b := range out {
			if !r.causal(int(a), int(b)) {
				return false
			}
		}
	}
	for _, side := range [][]uint32{in, out} {
		for _, a := range side {
			for _, b := range side {
				if !r.unrelated(int(a), int(b)) {
					return false
				}
			}
		}
	}
	return true
}

func (r *Relations) names(bm *roaring.Bitmap) []string {
	out := make([]string, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, r.Activities[it.Next()])
	}
	return out
}

func sortedSet(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
