package ptree

import (
	"strconv"

	"github.com/logflow/pmcore/pkg/petri"
)

// ToPetriNet translates the tree into a sound workflow net. Every subtree
// becomes a gadget between an entry and an exit place:
//
//   - a leaf is one transition, silent for tau;
//   - SEQUENCE chains its children through fresh places;
//   - XOR lets every child share the entry and exit places;
//   - PARALLEL forks and joins with silent transitions;
//   - LOOP enters a do part through a silent transition, returns from its
//     exit to its entry through the redo part and leaves silently;
//   - OR forks every child with a skip alternative and joins once at least
//     one child ran, tracked by a guard place.
func ToPetriNet(t *Tree) (*petri.AcceptingNet, error) {
	if err := Validate(t); err != nil {
		return nil, err
	}
	b := &netBuilder{net: petri.NewNet("process_tree")}
	source := b.net.AddPlace("source")
	sink := b.net.AddPlace("sink")
	b.translate(t, source, sink)
	return &petri.AcceptingNet{
		Net:     b.net,
		Initial: petri.NewMarking(source),
		Final:   petri.NewMarking(sink),
	}, nil
}

type netBuilder struct {
	net    *petri.Net
	places int
	taus   int
}

func (b *netBuilder) place() petri.PlaceID {
	b.places++
	return b.net.AddPlace("p_" + strconv.Itoa(b.places))
}

func (b *netBuilder) tau(kind string) petri.TransitionID {
	b.taus++
	return b.net.AddTransition(kind+"_"+strconv.Itoa(b.taus), "")
}

func (b *netBuilder) translate(t *Tree, in, out petri.PlaceID) {
	switch t.Operator {
	case OpNone:
		var tr petri.TransitionID
		if t.IsTau() {
			tr = b.tau("skip")
		} else {
			tr = b.net.AddTransition(t.Label, t.Label)
		}
		b.net.AddInputArc(in, tr, 1)
		b.net.AddOutputArc(tr, out, 1)

	case OpSequence:
		cur := in
		for i, c := range t.Children {
			next := out
			if i < len(t.Children)-1 {
				next = b.place()
			}
			b.translate(c, cur, next)
			cur = next
		}

	case OpXor:
		for _, c := range t.Children {
			b.translate(c, in, out)
		}

	case OpParallel:
		split := b.tau("split")
		join := b.tau("join")
		b.net.AddInputArc(in, split, 1)
		b.net.AddOutputArc(join, out, 1)
		for _, c := range t.Children {
			ci, co := b.place(), b.place()
			b.net.AddOutputArc(split, ci, 1)
			b.net.AddInputArc(co, join, 1)
			b.translate(c, ci, co)
		}

	case OpLoop:
		enter := b.tau("loop_enter")
		exit := b.tau("loop_exit")
		doIn, doOut := b.place(), b.place()
		b.net.AddInputArc(in, enter, 1)
		b.net.AddOutputArc(enter, doIn, 1)
		b.net.AddInputArc(doOut, exit, 1)
		b.net.AddOutputArc(exit, out, 1)
		b.translate(t.Children[0], doIn, doOut)
		b.translate(t.Children[1], doOut, doIn)

	case OpOr:
		split := b.tau("or_split")
		join := b.tau("or_join")
		guard, ran := b.place(), b.place()
		b.net.AddInputArc(in, split, 1)
		b.net.AddOutputArc(split, guard, 1)
		b.net.AddInputArc(ran, join, 1)
		b.net.AddOutputArc(join, out, 1)
		for _, c := range t.Children {
			pending, start, done := b.place(), b.place(), b.place()
			b.net.AddOutputArc(split, pending, 1)
			b.net.AddInputArc(done, join, 1)

			skip := b.tau("or_skip")
			b.net.AddInputArc(pending, skip, 1)
			b.net.AddOutputArc(skip, done, 1)

			// the first child to run consumes the guard, later ones need ran
			first := b.tau("or_first")
			b.net.AddInputArc(pending, first, 1)
			b.net.AddInputArc(guard, first, 1)
			b.net.AddOutputArc(first, start, 1)
			b.net.AddOutputArc(first, ran, 1)

			next := b.tau("or_next")
			b.net.AddInputArc(pending, next, 1)
			b.net.AddInputArc(ran, next, 1)
			b.net.AddOutputArc(next, start, 1)
			b.net.AddOutputArc(next, ran, 1)

			b.translate(c, start, done)
		}
	}
}
