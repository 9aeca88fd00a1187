package ptree

import (
	"sort"
)

// Sort returns a canonical copy of the tree: children of XOR, PARALLEL and
// OR nodes are ordered leaves first (tau before activities, activities
// alphabetically), then operator subtrees by their first leaf and, on ties,
// by their string form. Sort is idempotent.
func Sort(t *Tree) *Tree {
	out := t.Clone()
	sortInPlace(out)
	return out
}

func sortInPlace(t *Tree) {
	for _, c := range t.Children {
		sortInPlace(c)
	}
	if !t.Operator.Commutative() {
		return
	}
	keys := make(map[*Tree]sortKey, len(t.Children))
	for _, c := range t.Children {
		keys[c] = keyOf(c)
	}
	sort.SliceStable(t.Children, func(i, j int) bool {
		return keys[t.Children[i]].less(keys[t.Children[j]])
	})
}

type sortKey struct {
	operator bool
	first    leafKey
	repr     string
}

type leafKey struct {
	visible bool
	label   string
}

func (a leafKey) less(b leafKey) bool {
	if a.visible != b.visible {
		return !a.visible
	}
	return a.label < b.label
}

func keyOf(t *Tree) sortKey {
	k := sortKey{operator: !t.IsLeaf()}
	leaves := Leaves(t)
	if len(leaves) > 0 {
		k.first = leafKey{visible: !leaves[0].IsTau(), label: leaves[0].Label}
	}
	if k.operator {
		k.repr = t.String()
	}
	return k
}

func (a sortKey) less(b sortKey) bool {
	if a.operator != b.operator {
		return !a.operator
	}
	if a.first != b.first {
		return a.first.less(b.first)
	}
	return a.repr < b.repr
}
