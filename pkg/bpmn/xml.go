package bpmn

import (
	"encoding/xml"
	"io"

	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/ptree"
)

// Namespace is the BPMN 2.0 model namespace.
const Namespace = "http://www.omg.org/spec/BPMN/20100524/MODEL"

type xmlDefinitions struct {
	XMLName         xml.Name   `xml:"http://www.omg.org/spec/BPMN/20100524/MODEL definitions"`
	ID              string     `xml:"id,attr"`
	TargetNamespace string     `xml:"targetNamespace,attr"`
	Process         xmlProcess `xml:"process"`
}

type xmlProcess struct {
	ID           string    `xml:"id,attr"`
	Name         string    `xml:"name,attr,omitempty"`
	IsExecutable bool      `xml:"isExecutable,attr"`
	Start        []xmlNode `xml:"startEvent"`
	End          []xmlNode `xml:"endEvent"`
	Tasks        []xmlNode `xml:"task"`
	Exclusive    []xmlNode `xml:"exclusiveGateway"`
	Parallel     []xmlNode `xml:"parallelGateway"`
	Inclusive    []xmlNode `xml:"inclusiveGateway"`
	Flows        []xmlFlow `xml:"sequenceFlow"`
}

type xmlNode struct {
	ID        string   `xml:"id,attr"`
	Name      string   `xml:"name,attr,omitempty"`
	Direction string   `xml:"gatewayDirection,attr,omitempty"`
	Incoming  []string `xml:"incoming"`
	Outgoing  []string `xml:"outgoing"`
}

type xmlFlow struct {
	ID     string `xml:"id,attr"`
	Source string `xml:"sourceRef,attr"`
	Target string `xml:"targetRef,attr"`
}

// Write serializes d as a BPMN 2.0 definitions document.
func Write(w io.Writer, d *Diagram) error {
	p := xmlProcess{ID: d.ID, Name: d.Name}
	incoming := make(map[string][]string)
	outgoing := make(map[string][]string)
	for _, f := range d.Flows {
		outgoing[f.Source] = append(outgoing[f.Source], f.ID)
		incoming[f.Target] = append(incoming[f.Target], f.ID)
		p.Flows = append(p.Flows, xmlFlow(f))
	}
	for _, n := range d.Nodes {
		x := xmlNode{ID: n.ID, Name: n.Name, Direction: string(n.Direction), Incoming: incoming[n.ID], Outgoing: outgoing[n.ID]}
		switch n.Kind {
		case StartEvent:
			p.Start = append(p.Start, x)
		case EndEvent:
			p.End = append(p.End, x)
		case Task:
			p.Tasks = append(p.Tasks, x)
		case ExclusiveGateway:
			p.Exclusive = append(p.Exclusive, x)
		case ParallelGateway:
			p.Parallel = append(p.Parallel, x)
		case InclusiveGateway:
			p.Inclusive = append(p.Inclusive, x)
		}
	}
	doc := xmlDefinitions{ID: "definitions", TargetNamespace: "http://pmcore/bpmn", Process: p}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "write bpmn")
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "write bpmn")
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "write bpmn")
	}
	return nil
}

// WriteTree converts t and writes the resulting process.
func WriteTree(w io.Writer, t *ptree.Tree, name string) error {
	d, err := Convert(t, name)
	if err != nil {
		return err
	}
	return Write(w, d)
}

// Read parses the first process of a BPMN 2.0 document. Only the element
// types Write produces are read; sequence flows must connect known nodes.
func Read(r io.Reader) (*Diagram, error) {
	var doc xmlDefinitions
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "parse bpmn")
	}
	p := doc.Process
	d := &Diagram{ID: p.ID, Name: p.Name}
	known := make(map[string]bool)
	groups := []struct {
		kind  NodeKind
		nodes []xmlNode
	}{
		{StartEvent, p.Start},
		{EndEvent, p.End},
		{Task, p.Tasks},
		{ExclusiveGateway, p.Exclusive},
		{ParallelGateway, p.Parallel},
		{InclusiveGateway, p.Inclusive},
	}
	for _, g := range groups {
		for _, x := range g.nodes {
			if x.ID == "" || known[x.ID] {
				return nil, errors.New(errors.CodeInvalidFormat, "bpmn node without unique id").
					WithContext("id", x.ID)
			}
			known[x.ID] = true
			d.Nodes = append(d.Nodes, Node{ID: x.ID, Kind: g.kind, Name: x.Name, Direction: Direction(x.Direction)})
		}
	}
	for _, f := range p.Flows {
		if !known[f.Source] || !known[f.Target] {
			return nil, errors.New(errors.CodeInvalidFormat, "sequence flow references unknown node").
				WithContext("flow", f.ID)
		}
		d.Flows = append(d.Flows, Flow(f))
	}
	return d, nil
}
