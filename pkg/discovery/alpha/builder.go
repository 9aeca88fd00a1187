package alpha

import (
	"github.com/logflow/pmcore/pkg/petri"
)

// Markers standing for the virtual start and end of a trace in loop
// neighbourhoods.
const (
	startMarker = "\x00start"
	endMarker   = "\x00end"
)

type netPlace struct {
	id  petri.PlaceID
	in  map[string]bool
	out map[string]bool
}

type builder struct {
	net    *petri.Net
	trans  map[string]petri.TransitionID
	places []netPlace
	src    petri.PlaceID
	sinkID petri.PlaceID
}

func newBuilder(name string) *builder {
	return &builder{net: petri.NewNet(name), trans: make(map[string]petri.TransitionID)}
}

func (b *builder) transition(a string) petri.TransitionID {
	if t, ok := b.trans[a]; ok {
		return t
	}
	t := b.net.AddTransition(a, a)
	b.trans[a] = t
	return t
}

func (b *builder) source(start map[string]bool) {
	b.src = b.net.AddPlace("start")
	np := netPlace{id: b.src, in: map[string]bool{startMarker: true}, out: make(map[string]bool)}
	for _, a := range sortedSet(start) {
		b.net.AddInputArc(b.src, b.transition(a), 1)
		np.out[a] = true
	}
	b.places = append(b.places, np)
}

func (b *builder) place(pl Place) {
	id := b.net.AddPlace(pl.Name())
	np := netPlace{id: id, in: make(map[string]bool), out: make(map[string]bool)}
	for _, a := range pl.In {
		b.net.AddOutputArc(b.transition(a), id, 1)
		np.in[a] = true
	}
	for _, a := range pl.Out {
		b.net.AddInputArc(id, b.transition(a), 1)
		np.out[a] = true
	}
	b.places = append(b.places, np)
}

func (b *builder) sink(end map[string]bool) {
	b.sinkID = b.net.AddPlace("end")
	np := netPlace{id: b.sinkID, in: make(map[string]bool), out: map[string]bool{endMarker: true}}
	for _, a := range sortedSet(end) {
		b.net.AddOutputArc(b.transition(a), b.sinkID, 1)
		np.in[a] = true
	}
	b.places = append(b.places, np)
}

// attachLoop connects a length-one-loop activity with self-loop arcs to the
// places between its neighbours: every place whose input side holds all
// activities seen right before it and whose output side holds all
// activities seen right after it. Without such a place, places touching
// both neighbourhoods are used.
func (b *builder) attachLoop(a string, pre, post map[string]bool) {
	t := b.transition(a)
	var matched []petri.PlaceID
	for _, np := range b.places {
		if subset(pre, np.in) && subset(post, np.out) {
			matched = append(matched, np.id)
		}
	}
	if len(matched) == 0 {
		for _, np := range b.places {
			if intersects(pre, np.in) && intersects(post, np.out) {
				matched = append(matched, np.id)
			}
		}
	}
	for _, p := range matched {
		b.net.AddInputArc(p, t, 1)
		b.net.AddOutputArc(t, p, 1)
	}
}

func (b *builder) result() *petri.AcceptingNet {
	return &petri.AcceptingNet{
		Net:     b.net,
		Initial: petri.NewMarking(b.src),
		Final:   petri.NewMarking(b.sinkID),
	}
}

func lengthOneLoops(seqs [][]string) map[string]bool {
	out := make(map[string]bool)
	for _, s := range seqs {
		for i := 1; i < len(s); i++ {
			if s[i] == s[i-1] {
				out[s[i]] = true
			}
		}
	}
	return out
}

func withoutActivities(seqs [][]string, drop map[string]bool) [][]string {
	out := make([][]string, len(seqs))
	for i, s := range seqs {
		kept := make([]string, 0, len(s))
		for _, a := range s {
			if !drop[a] {
				kept = append(kept, a)
			}
		}
		out[i] = kept
	}
	return out
}

// loopNeighbours collects, for each occurrence of a, the nearest activity
// before and after it that is not itself a length-one loop.
func loopNeighbours(seqs [][]string, a string, loops map[string]bool) (pre, post map[string]bool) {
	pre, post = make(map[string]bool), make(map[string]bool)
	for _, s := range seqs {
		for i, x := range s {
			if x != a {
				continue
			}
			before := startMarker
			for j := i - 1; j >= 0; j-- {
				if !loops[s[j]] {
					before = s[j]
					break
				}
			}
			after := endMarker
			for j := i + 1; j < len(s); j++ {
				if !loops[s[j]] {
					after = s[j]
					break
				}
			}
			pre[before] = true
			post[after] = true
		}
	}
	return pre, post
}

func subset(a, b map[string]bool) bool {
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func intersects(a, b map[string]bool) bool {
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}
