package petri

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/logflow/pmcore/pkg/errors"
)

const (
	pnmlNetType     = "http://www.pnml.org/version-2009/grammar/pnmlcoremodel"
	pnmlInvisible   = "$invisible$"
	pnmlToolName    = "ProM"
	pnmlToolVersion = "6.4"
)

type pnmlDoc struct {
	XMLName xml.Name `xml:"pnml"`
	Net     pnmlNet  `xml:"net"`
}

type pnmlNet struct {
	ID          string           `xml:"id,attr"`
	Type        string           `xml:"type,attr,omitempty"`
	Name        *pnmlText        `xml:"name"`
	Pages       []pnmlPage       `xml:"page"`
	Places      []pnmlPlace      `xml:"place"`
	Transitions []pnmlTransition `xml:"transition"`
	Arcs        []pnmlArc        `xml:"arc"`
	Final       *pnmlFinal       `xml:"finalmarkings"`
}

type pnmlText struct {
	Text string `xml:"text"`
}

type pnmlPage struct {
	ID          string           `xml:"id,attr"`
	Places      []pnmlPlace      `xml:"place"`
	Transitions []pnmlTransition `xml:"transition"`
	Arcs        []pnmlArc        `xml:"arc"`
}

type pnmlPlace struct {
	ID      string    `xml:"id,attr"`
	Name    *pnmlText `xml:"name"`
	Initial *pnmlText `xml:"initialMarking"`
}

type pnmlTransition struct {
	ID    string         `xml:"id,attr"`
	Name  *pnmlText      `xml:"name"`
	Tools []pnmlToolInfo `xml:"toolspecific"`
}

type pnmlToolInfo struct {
	Tool     string `xml:"tool,attr"`
	Version  string `xml:"version,attr"`
	Activity string `xml:"activity,attr,omitempty"`
}

type pnmlArc struct {
	ID          string    `xml:"id,attr"`
	Source      string    `xml:"source,attr"`
	Target      string    `xml:"target,attr"`
	Inscription *pnmlText `xml:"inscription"`
}

type pnmlFinal struct {
	Markings []pnmlMarking `xml:"marking"`
}

type pnmlMarking struct {
	Places []pnmlMarkedPlace `xml:"place"`
}

type pnmlMarkedPlace struct {
	IDRef string `xml:"idref,attr"`
	Text  string `xml:"text"`
}

// WritePNML serializes an accepting net as PNML. Silent transitions carry
// the ProM invisible marker; the final marking is written as a
// finalmarkings element.
func WritePNML(w io.Writer, an *AcceptingNet) error {
	n := an.Net
	page := pnmlPage{ID: "n0"}
	for _, p := range n.Places() {
		pp := pnmlPlace{ID: placeXMLID(p.ID), Name: &pnmlText{Text: p.Name}}
		if k := an.Initial[p.ID]; k > 0 {
			pp.Initial = &pnmlText{Text: strconv.Itoa(k)}
		}
		page.Places = append(page.Places, pp)
	}
	for _, t := range n.Transitions() {
		pt := pnmlTransition{ID: transitionXMLID(t.ID)}
		if t.IsSilent() {
			pt.Name = &pnmlText{Text: t.Name}
			pt.Tools = []pnmlToolInfo{{Tool: pnmlToolName, Version: pnmlToolVersion, Activity: pnmlInvisible}}
		} else {
			pt.Name = &pnmlText{Text: t.Label}
		}
		page.Transitions = append(page.Transitions, pt)
	}
	for i, a := range n.Arcs() {
		pa := pnmlArc{ID: "a" + strconv.Itoa(i)}
		if a.Input {
			pa.Source, pa.Target = placeXMLID(a.Place), transitionXMLID(a.Transition)
		} else {
			pa.Source, pa.Target = transitionXMLID(a.Transition), placeXMLID(a.Place)
		}
		if a.Weight != 1 {
			pa.Inscription = &pnmlText{Text: strconv.Itoa(a.Weight)}
		}
		page.Arcs = append(page.Arcs, pa)
	}

	final := pnmlMarking{}
	for _, p := range an.Final.places() {
		final.Places = append(final.Places, pnmlMarkedPlace{IDRef: placeXMLID(p), Text: strconv.Itoa(an.Final[p])})
	}

	doc := pnmlDoc{Net: pnmlNet{
		ID:    "net1",
		Type:  pnmlNetType,
		Name:  &pnmlText{Text: n.Name},
		Pages: []pnmlPage{page},
		Final: &pnmlFinal{Markings: []pnmlMarking{final}},
	}}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "write pnml")
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "write pnml")
	}
	return nil
}

func placeXMLID(p PlaceID) string           { return "p" + strconv.Itoa(int(p)) }
func transitionXMLID(t TransitionID) string { return "t" + strconv.Itoa(int(t)) }

// ReadPNML parses a PNML document. Places, transitions and arcs may sit
// directly under the net or inside pages. When the document has no final
// marking and the net has a unique sink place, the final marking puts one
// token there.
func ReadPNML(r io.Reader) (*AcceptingNet, error) {
	var doc pnmlDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "decode pnml")
	}

	pages := append([]pnmlPage{{
		Places:      doc.Net.Places,
		Transitions: doc.Net.Transitions,
		Arcs:        doc.Net.Arcs,
	}}, doc.Net.Pages...)

	name := doc.Net.ID
	if doc.Net.Name != nil && doc.Net.Name.Text != "" {
		name = doc.Net.Name.Text
	}
	an := &AcceptingNet{Net: NewNet(name), Initial: Marking{}, Final: Marking{}}
	places := make(map[string]PlaceID)
	trans := make(map[string]TransitionID)

	for _, pg := range pages {
		for _, p := range pg.Places {
			pname := p.ID
			if p.Name != nil && p.Name.Text != "" {
				pname = p.Name.Text
			}
			id := an.Net.AddPlace(pname)
			places[p.ID] = id
			if p.Initial != nil {
				k, err := strconv.Atoi(strings.TrimSpace(p.Initial.Text))
				if err != nil {
					return nil, errors.Wrap(err, errors.CodeInvalidFormat, "invalid initial marking").WithContext("place", p.ID)
				}
				if k > 0 {
					an.Initial[id] = k
				}
			}
		}
		for _, t := range pg.Transitions {
			label := t.ID
			if t.Name != nil && t.Name.Text != "" {
				label = t.Name.Text
			}
			tname := label
			for _, tool := range t.Tools {
				if tool.Activity == pnmlInvisible {
					label = ""
				}
			}
			trans[t.ID] = an.Net.AddTransition(tname, label)
		}
	}

	for _, pg := range pages {
		for _, a := range pg.Arcs {
			weight := 1
			if a.Inscription != nil {
				k, err := strconv.Atoi(strings.TrimSpace(a.Inscription.Text))
				if err != nil || k < 1 {
					return nil, errors.New(errors.CodeMalformedNet, "invalid arc inscription").WithContext("arc", a.ID)
				}
				weight = k
			}
			if p, ok := places[a.Source]; ok {
				t, ok := trans[a.Target]
				if !ok {
					return nil, errors.New(errors.CodeMalformedNet, "arc target is not a transition").WithContext("arc", a.ID)
				}
				an.Net.AddInputArc(p, t, weight)
				continue
			}
			t, ok := trans[a.Source]
			p, ok2 := places[a.Target]
			if !ok || !ok2 {
				return nil, errors.New(errors.CodeMalformedNet, "arc endpoints unknown").WithContext("arc", a.ID)
			}
			an.Net.AddOutputArc(t, p, weight)
		}
	}

	if doc.Net.Final != nil && len(doc.Net.Final.Markings) > 0 {
		for _, mp := range doc.Net.Final.Markings[0].Places {
			p, ok := places[mp.IDRef]
			if !ok {
				return nil, errors.New(errors.CodeMalformedNet, "final marking references unknown place").WithContext("place", mp.IDRef)
			}
			k, err := strconv.Atoi(strings.TrimSpace(mp.Text))
			if err != nil {
				return nil, errors.Wrap(err, errors.CodeInvalidFormat, "invalid final marking").WithContext("place", mp.IDRef)
			}
			if k > 0 {
				an.Final[p] = k
			}
		}
	} else {
		var sinks []PlaceID
		for _, p := range an.Net.Places() {
			if len(an.Net.Consumers(p.ID)) == 0 {
				sinks = append(sinks, p.ID)
			}
		}
		if len(sinks) == 1 {
			an.Final[sinks[0]] = 1
		}
	}
	return an, nil
}
