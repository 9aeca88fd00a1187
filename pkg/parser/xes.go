package parser

import (
	"context"
	"encoding/xml"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/eventlog"
)

// XES attribute element names.
var xesAttributeElements = map[string]bool{
	"string":    true,
	"date":      true,
	"int":       true,
	"float":     true,
	"boolean":   true,
	"id":        true,
	"list":      true,
	"container": true,
}

// ReadXES parses an IEEE 1849 XES document. Dates must carry a UTC offset.
// Attributes with nested meta-attributes are stored as
// {"value": v, "children": {...}}; lists become []interface{} and
// containers nested Attributes.
func ReadXES(ctx context.Context, r io.Reader) (*eventlog.EventLog, error) {
	x := &xesReader{ctx: ctx, dec: xml.NewDecoder(r), l: eventlog.New()}
	if err := x.read(); err != nil {
		return nil, err
	}
	return x.l, nil
}

type xesReader struct {
	ctx context.Context
	dec *xml.Decoder
	l   *eventlog.EventLog
}

func (x *xesReader) token() (xml.Token, error) {
	tok, err := x.dec.Token()
	if err != nil {
		line, _ := x.dec.InputPos()
		return nil, errors.ParseError("xes", line, err)
	}
	return tok, nil
}

func (x *xesReader) read() error {
	sawLog := false
	for {
		tok, err := x.dec.Token()
		if err == io.EOF {
			if !sawLog {
				return errors.New(errors.CodeInvalidFormat, "xes document has no log element")
			}
			return nil
		}
		if err != nil {
			line, _ := x.dec.InputPos()
			return errors.ParseError("xes", line, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch name := se.Name.Local; {
		case name == "log":
			sawLog = true
		case name == "extension":
			x.l.Extensions = append(x.l.Extensions, eventlog.Extension{
				Name:   xmlAttr(se, "name"),
				Prefix: xmlAttr(se, "prefix"),
				URI:    xmlAttr(se, "uri"),
			})
			if err := x.dec.Skip(); err != nil {
				return errors.ParseError("xes", 0, err)
			}
		case name == "classifier":
			x.l.Classifiers = append(x.l.Classifiers, eventlog.Classifier{
				Name: xmlAttr(se, "name"),
				Keys: classifierKeys(xmlAttr(se, "keys")),
			})
			if err := x.dec.Skip(); err != nil {
				return errors.ParseError("xes", 0, err)
			}
		case name == "global":
			into := x.l.Globals.Event
			if xmlAttr(se, "scope") == "trace" {
				into = x.l.Globals.Trace
			}
			if err := x.children(se.Name.Local, into, nil); err != nil {
				return err
			}
		case name == "trace":
			if err := x.ctx.Err(); err != nil {
				return errors.ContextCanceled("parse")
			}
			tr, err := x.trace()
			if err != nil {
				return err
			}
			x.l.Append(tr)
		case xesAttributeElements[name]:
			key, v, err := x.attribute(se)
			if err != nil {
				return err
			}
			x.l.Attributes[key] = v
		default:
			if err := x.dec.Skip(); err != nil {
				return errors.ParseError("xes", 0, err)
			}
		}
	}
}

func (x *xesReader) trace() (*eventlog.Trace, error) {
	tr := &eventlog.Trace{Attributes: eventlog.Attributes{}}
	for {
		tok, err := x.token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "event":
				ev := eventlog.Event{Attributes: eventlog.Attributes{}}
				if err := x.children("event", ev.Attributes, nil); err != nil {
					return nil, err
				}
				tr.Events = append(tr.Events, ev)
			case xesAttributeElements[t.Name.Local]:
				key, v, err := x.attribute(t)
				if err != nil {
					return nil, err
				}
				tr.Attributes[key] = v
			default:
				if err := x.dec.Skip(); err != nil {
					return nil, errors.ParseError("xes", 0, err)
				}
			}
		case xml.EndElement:
			if t.Name.Local == "trace" {
				return tr, nil
			}
		}
	}
}

// children reads attribute elements until the end of the element named
// end, storing them by key into attrs and, when list is non-nil, also
// appending their values to it.
func (x *xesReader) children(end string, attrs eventlog.Attributes, list *[]interface{}) error {
	for {
		tok, err := x.token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "values" {
				// list wrapper: its items belong to the enclosing list
				if err := x.children("values", attrs, list); err != nil {
					return err
				}
				continue
			}
			if !xesAttributeElements[t.Name.Local] {
				if err := x.dec.Skip(); err != nil {
					return errors.ParseError("xes", 0, err)
				}
				continue
			}
			key, v, err := x.attribute(t)
			if err != nil {
				return err
			}
			if list != nil {
				*list = append(*list, v)
			}
			attrs[key] = v
		case xml.EndElement:
			if t.Name.Local == end {
				return nil
			}
		}
	}
}

// attribute reads one attribute element, nested attributes included.
func (x *xesReader) attribute(se xml.StartElement) (string, interface{}, error) {
	key, raw := xmlAttr(se, "key"), xmlAttr(se, "value")
	var value interface{}
	var err error
	switch se.Name.Local {
	case "string", "id":
		value = raw
	case "date":
		value, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return "", nil, errors.New(errors.CodeInvalidTimestamp, "xes date needs an ISO-8601 value with offset").
				WithContext("key", key).
				WithContext("value", raw)
		}
	case "int":
		value, err = strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	case "float":
		value, err = strconv.ParseFloat(strings.TrimSpace(raw), 64)
	case "boolean":
		value, err = strconv.ParseBool(strings.TrimSpace(raw))
	}
	if err != nil {
		return "", nil, errors.Wrap(err, errors.CodeInvalidFormat, "malformed xes attribute value").
			WithContext("type", se.Name.Local).
			WithContext("key", key)
	}

	children := eventlog.Attributes{}
	var items []interface{}
	var list *[]interface{}
	if se.Name.Local == "list" {
		list = &items
	}
	if err := x.children(se.Name.Local, children, list); err != nil {
		return "", nil, err
	}
	switch {
	case se.Name.Local == "list":
		if items == nil {
			items = []interface{}{}
		}
		value = items
	case se.Name.Local == "container":
		value = children
	case len(children) > 0:
		value = eventlog.Attributes{"value": value, "children": children}
	}
	return key, value, nil
}

func xmlAttr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// classifierKeys splits a classifier key list. Keys containing spaces are
// enclosed in single quotes.
func classifierKeys(s string) []string {
	var keys []string
	for s = strings.TrimSpace(s); s != ""; s = strings.TrimSpace(s) {
		if s[0] == '\'' {
			end := strings.IndexByte(s[1:], '\'')
			if end < 0 {
				keys = append(keys, s[1:])
				break
			}
			keys = append(keys, s[1:end+1])
			s = s[end+2:]
			continue
		}
		end := strings.IndexAny(s, " \t")
		if end < 0 {
			keys = append(keys, s)
			break
		}
		keys = append(keys, s[:end])
		s = s[end:]
	}
	return keys
}
