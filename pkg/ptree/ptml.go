package ptree

import (
	"encoding/xml"
	"io"
	"strconv"

	"github.com/logflow/pmcore/pkg/errors"
)

type ptmlDoc struct {
	XMLName xml.Name    `xml:"ptml"`
	Tree    ptmlProcess `xml:"processTree"`
}

type ptmlProcess struct {
	ID        string       `xml:"id,attr"`
	Name      string       `xml:"name,attr"`
	Root      string       `xml:"root,attr"`
	Manual    []ptmlNode   `xml:"manualTask"`
	Automatic []ptmlNode   `xml:"automaticTask"`
	Sequence  []ptmlNode   `xml:"sequence"`
	Xor       []ptmlNode   `xml:"xor"`
	And       []ptmlNode   `xml:"and"`
	Or        []ptmlNode   `xml:"or"`
	XorLoop   []ptmlNode   `xml:"xorLoop"`
	Edges     []ptmlParent `xml:"parentsNode"`
}

type ptmlNode struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name,attr"`
}

type ptmlParent struct {
	ID     string `xml:"id,attr"`
	Source string `xml:"sourceId,attr"`
	Target string `xml:"targetId,attr"`
}

// WritePTML serializes the tree as PTML. Loops are written as xorLoop with
// do, redo and a tau exit child.
func WritePTML(w io.Writer, t *Tree, name string) error {
	p := &ptmlProcess{ID: "pt", Name: name}
	counter := 0
	nextID := func() string {
		counter++
		return "n" + strconv.Itoa(counter)
	}

	var emit func(n *Tree) string
	emit = func(n *Tree) string {
		id := nextID()
		node := ptmlNode{ID: id, Name: n.Label}
		switch n.Operator {
		case OpNone:
			if n.IsTau() {
				node.Name = "tau"
				p.Automatic = append(p.Automatic, node)
			} else {
				p.Manual = append(p.Manual, node)
			}
			return id
		case OpSequence:
			p.Sequence = append(p.Sequence, node)
		case OpXor:
			p.Xor = append(p.Xor, node)
		case OpParallel:
			p.And = append(p.And, node)
		case OpOr:
			p.Or = append(p.Or, node)
		case OpLoop:
			p.XorLoop = append(p.XorLoop, node)
		}
		children := n.Children
		if n.Operator == OpLoop {
			children = append(append([]*Tree(nil), n.Children...), Tau())
		}
		for _, c := range children {
			cid := emit(c)
			p.Edges = append(p.Edges, ptmlParent{ID: nextID(), Source: id, Target: cid})
		}
		return id
	}
	p.Root = emit(t)

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "write ptml")
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(ptmlDoc{Tree: *p}); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "write ptml")
	}
	return nil
}

// ReadPTML parses a PTML document. An xorLoop whose exit child is not tau
// becomes SEQUENCE(LOOP(do, redo), exit).
func ReadPTML(r io.Reader) (*Tree, error) {
	var doc ptmlDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "decode ptml")
	}
	p := doc.Tree
	nodes := make(map[string]*Tree)
	add := func(list []ptmlNode, mk func(ptmlNode) *Tree) {
		for _, n := range list {
			nodes[n.ID] = mk(n)
		}
	}
	add(p.Manual, func(n ptmlNode) *Tree { return Leaf(n.Name) })
	add(p.Automatic, func(ptmlNode) *Tree { return Tau() })
	add(p.Sequence, func(ptmlNode) *Tree { return &Tree{Operator: OpSequence} })
	add(p.Xor, func(ptmlNode) *Tree { return &Tree{Operator: OpXor} })
	add(p.And, func(ptmlNode) *Tree { return &Tree{Operator: OpParallel} })
	add(p.Or, func(ptmlNode) *Tree { return &Tree{Operator: OpOr} })
	add(p.XorLoop, func(ptmlNode) *Tree { return &Tree{Operator: OpLoop} })

	for _, e := range p.Edges {
		parent, ok1 := nodes[e.Source]
		child, ok2 := nodes[e.Target]
		if !ok1 || !ok2 {
			return nil, errors.New(errors.CodeMalformedTree, "edge references unknown node").WithContext("edge", e.ID)
		}
		parent.Children = append(parent.Children, child)
	}
	root, ok := nodes[p.Root]
	if !ok {
		return nil, errors.New(errors.CodeMalformedTree, "unknown root").WithContext("root", p.Root)
	}
	root = normalizeLoops(root)
	if err := Validate(root); err != nil {
		return nil, err
	}
	return root, nil
}

func normalizeLoops(t *Tree) *Tree {
	for i, c := range t.Children {
		t.Children[i] = normalizeLoops(c)
	}
	if t.Operator != OpLoop || len(t.Children) != 3 {
		return t
	}
	exit := t.Children[2]
	loop := Loop(t.Children[0], t.Children[1])
	if exit.IsTau() {
		return loop
	}
	return Seq(loop, exit)
}
