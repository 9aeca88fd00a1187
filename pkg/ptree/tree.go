// Package ptree implements block-structured process trees.
package ptree

import (
	"sort"
)

// Operator is the kind of an internal node. Leaves have OpNone.
type Operator uint8

const (
	OpNone Operator = iota
	OpSequence
	OpXor
	OpParallel
	OpLoop
	OpOr
)

var operatorNames = map[Operator]string{
	OpNone:     "leaf",
	OpSequence: "sequence",
	OpXor:      "xor",
	OpParallel: "parallel",
	OpLoop:     "loop",
	OpOr:       "or",
}

func (o Operator) String() string {
	return operatorNames[o]
}

// Commutative reports whether the order of children is irrelevant.
func (o Operator) Commutative() bool {
	return o == OpXor || o == OpParallel || o == OpOr
}

// Tree is a process tree node. A leaf carries an activity label, or no
// label for tau. A loop has exactly two children: do and redo.
type Tree struct {
	Operator Operator
	Label    string
	Children []*Tree
	// Weight biases choice under XOR during playout; zero means uniform.
	Weight float64
}

// Leaf returns an activity leaf.
func Leaf(label string) *Tree { return &Tree{Label: label} }

// Tau returns a silent leaf.
func Tau() *Tree { return &Tree{} }

// Seq returns a sequence node.
func Seq(children ...*Tree) *Tree { return &Tree{Operator: OpSequence, Children: children} }

// Xor returns an exclusive choice node.
func Xor(children ...*Tree) *Tree { return &Tree{Operator: OpXor, Children: children} }

// Parallel returns a concurrency node.
func Parallel(children ...*Tree) *Tree { return &Tree{Operator: OpParallel, Children: children} }

// Or returns an inclusive choice node.
func Or(children ...*Tree) *Tree { return &Tree{Operator: OpOr, Children: children} }

// Loop returns a loop executing do, then any number of redo;do rounds.
func Loop(do, redo *Tree) *Tree { return &Tree{Operator: OpLoop, Children: []*Tree{do, redo}} }

// IsLeaf reports whether the node is a leaf.
func (t *Tree) IsLeaf() bool { return t.Operator == OpNone }

// IsTau reports whether the node is a silent leaf.
func (t *Tree) IsTau() bool { return t.Operator == OpNone && t.Label == "" }

// Walk visits the tree in pre-order with an explicit stack. Returning false
// from fn skips the children of the current node.
func Walk(t *Tree, fn func(*Tree) bool) {
	stack := []*Tree{t}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(n) {
			continue
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// Leaves returns the leaves from left to right, tau leaves included.
func Leaves(t *Tree) []*Tree {
	var out []*Tree
	Walk(t, func(n *Tree) bool {
		if n.IsLeaf() {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Activities returns the sorted set of visible labels.
func Activities(t *Tree) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range Leaves(t) {
		if !l.IsTau() && !seen[l.Label] {
			seen[l.Label] = true
			out = append(out, l.Label)
		}
	}
	sort.Strings(out)
	return out
}

// Size returns the number of nodes.
func Size(t *Tree) int {
	n := 0
	Walk(t, func(*Tree) bool { n++; return true })
	return n
}

// Depth returns the length of the longest root-to-leaf path in nodes.
func Depth(t *Tree) int {
	type frame struct {
		n *Tree
		d int
	}
	deepest := 0
	stack := []frame{{t, 1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.d > deepest {
			deepest = f.d
		}
		for _, c := range f.n.Children {
			stack = append(stack, frame{c, f.d + 1})
		}
	}
	return deepest
}

// Clone returns a deep copy.
func (t *Tree) Clone() *Tree {
	out := &Tree{Operator: t.Operator, Label: t.Label, Weight: t.Weight}
	if len(t.Children) > 0 {
		out.Children = make([]*Tree, len(t.Children))
		for i, c := range t.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}

// Equal reports structural equality, child order included.
func Equal(a, b *Tree) bool {
	if a.Operator != b.Operator || a.Label != b.Label || len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}
