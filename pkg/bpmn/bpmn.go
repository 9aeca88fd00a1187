// Package bpmn converts process trees into BPMN 2.0 process diagrams. Only
// the process structure is produced; diagram interchange (layout) is left to
// modeling tools.
package bpmn

import (
	"strconv"

	"github.com/logflow/pmcore/pkg/ptree"
)

// NodeKind is the BPMN element type of a node.
type NodeKind int

const (
	StartEvent NodeKind = iota
	EndEvent
	Task
	ExclusiveGateway
	ParallelGateway
	InclusiveGateway
)

func (k NodeKind) String() string {
	switch k {
	case StartEvent:
		return "startEvent"
	case EndEvent:
		return "endEvent"
	case Task:
		return "task"
	case ExclusiveGateway:
		return "exclusiveGateway"
	case ParallelGateway:
		return "parallelGateway"
	case InclusiveGateway:
		return "inclusiveGateway"
	default:
		return "unknown"
	}
}

// Direction is the gatewayDirection of a gateway.
type Direction string

const (
	Unspecified Direction = "Unspecified"
	Diverging   Direction = "Diverging"
	Converging  Direction = "Converging"
)

// Node is a flow node.
type Node struct {
	ID        string
	Kind      NodeKind
	Name      string
	Direction Direction
}

// Flow is a sequence flow between two nodes.
type Flow struct {
	ID     string
	Source string
	Target string
}

// Diagram is a single BPMN process.
type Diagram struct {
	ID    string
	Name  string
	Nodes []Node
	Flows []Flow
}

// Node returns the node with the given id.
func (d *Diagram) Node(id string) (Node, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Count returns how many nodes of kind k the diagram has.
func (d *Diagram) Count(k NodeKind) int {
	c := 0
	for _, n := range d.Nodes {
		if n.Kind == k {
			c++
		}
	}
	return c
}

// Outgoing returns the targets of the flows leaving id, in flow order.
func (d *Diagram) Outgoing(id string) []string {
	var out []string
	for _, f := range d.Flows {
		if f.Source == id {
			out = append(out, f.Target)
		}
	}
	return out
}

// Incoming returns the sources of the flows entering id, in flow order.
func (d *Diagram) Incoming(id string) []string {
	var in []string
	for _, f := range d.Flows {
		if f.Target == id {
			in = append(in, f.Source)
		}
	}
	return in
}

// fragment is the single-entry single-exit part a subtree maps to. A
// fragment without nodes is a silent pass-through.
type fragment struct {
	entry, exit string
}

func (f fragment) empty() bool { return f.entry == "" }

type converter struct {
	d     *Diagram
	nodes int
	flows int
}

// Convert maps a process tree onto a BPMN process. Visible leaves become
// tasks, silent leaves disappear, and operators become pairs of split and
// join gateways: exclusive for choice and loop, parallel for parallel
// composition and inclusive for or. A loop is a converging exclusive
// gateway entering the do part and a diverging one that either leaves or
// takes the redo part back.
func Convert(t *ptree.Tree, name string) (*Diagram, error) {
	if err := ptree.Validate(t); err != nil {
		return nil, err
	}
	c := &converter{d: &Diagram{ID: "process", Name: name}}
	start := c.node(StartEvent, "start", "")
	body := c.convert(t)
	end := c.node(EndEvent, "end", "")
	c.connect(start, body, end)
	return c.d, nil
}

func (c *converter) node(kind NodeKind, name string, dir Direction) string {
	c.nodes++
	id := "node_" + strconv.Itoa(c.nodes)
	c.d.Nodes = append(c.d.Nodes, Node{ID: id, Kind: kind, Name: name, Direction: dir})
	return id
}

func (c *converter) flow(source, target string) {
	c.flows++
	c.d.Flows = append(c.d.Flows, Flow{ID: "flow_" + strconv.Itoa(c.flows), Source: source, Target: target})
}

// connect links from through f to to, or from to to directly when f is
// silent.
func (c *converter) connect(from string, f fragment, to string) {
	if f.empty() {
		c.flow(from, to)
		return
	}
	c.flow(from, f.entry)
	c.flow(f.exit, to)
}

func (c *converter) convert(t *ptree.Tree) fragment {
	switch t.Operator {
	case ptree.OpNone:
		if t.IsTau() {
			return fragment{}
		}
		id := c.node(Task, t.Label, "")
		return fragment{entry: id, exit: id}
	case ptree.OpSequence:
		var out fragment
		for _, child := range t.Children {
			f := c.convert(child)
			if f.empty() {
				continue
			}
			if out.empty() {
				out = f
				continue
			}
			c.flow(out.exit, f.entry)
			out.exit = f.exit
		}
		return out
	case ptree.OpLoop:
		join := c.node(ExclusiveGateway, "", Converging)
		do := c.convert(t.Children[0])
		split := c.node(ExclusiveGateway, "", Diverging)
		c.connect(join, do, split)
		for _, child := range t.Children[1:] {
			c.connect(split, c.convert(child), join)
		}
		return fragment{entry: join, exit: split}
	default:
		kind := ExclusiveGateway
		switch t.Operator {
		case ptree.OpParallel:
			kind = ParallelGateway
		case ptree.OpOr:
			kind = InclusiveGateway
		}
		split := c.node(kind, "", Diverging)
		parts := make([]fragment, len(t.Children))
		for i, child := range t.Children {
			parts[i] = c.convert(child)
		}
		join := c.node(kind, "", Converging)
		for _, f := range parts {
			c.connect(split, f, join)
		}
		return fragment{entry: split, exit: join}
	}
}
