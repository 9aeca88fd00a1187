package parser

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/eventlog"
)

const xesDateLayout = "2006-01-02T15:04:05.000Z07:00"

// WriteXES serializes the log as an XES document that ReadXES reads back.
// Attribute keys are written in sorted order.
func WriteXES(w io.Writer, l *eventlog.EventLog) error {
	bw := bufio.NewWriter(w)
	x := &xesWriter{w: bw}
	x.line(0, `<?xml version="1.0" encoding="UTF-8"?>`)
	x.line(0, `<log xes.version="1.0" xes.features="nested-attributes">`)
	for _, e := range l.Extensions {
		x.line(1, fmt.Sprintf(`<extension name="%s" prefix="%s" uri="%s"/>`, esc(e.Name), esc(e.Prefix), esc(e.URI)))
	}
	for _, g := range []struct {
		scope string
		attrs eventlog.Attributes
	}{{"trace", l.Globals.Trace}, {"event", l.Globals.Event}} {
		if len(g.attrs) == 0 {
			continue
		}
		x.line(1, fmt.Sprintf(`<global scope="%s">`, g.scope))
		x.attributes(2, g.attrs)
		x.line(1, `</global>`)
	}
	for _, c := range l.Classifiers {
		keys := make([]string, len(c.Keys))
		for i, k := range c.Keys {
			if strings.ContainsAny(k, " \t") {
				k = "'" + k + "'"
			}
			keys[i] = k
		}
		x.line(1, fmt.Sprintf(`<classifier name="%s" keys="%s"/>`, esc(c.Name), esc(strings.Join(keys, " "))))
	}
	x.attributes(1, l.Attributes)
	for _, tr := range l.Traces {
		x.line(1, `<trace>`)
		x.attributes(2, tr.Attributes)
		for _, ev := range tr.Events {
			x.line(2, `<event>`)
			x.attributes(3, ev.Attributes)
			x.line(2, `</event>`)
		}
		x.line(1, `</trace>`)
	}
	x.line(0, `</log>`)
	if x.err == nil {
		x.err = bw.Flush()
	}
	if x.err != nil {
		return errors.Wrap(x.err, errors.CodeWriteFailed, "write xes")
	}
	return nil
}

type xesWriter struct {
	w   *bufio.Writer
	err error
}

func (x *xesWriter) line(depth int, s string) {
	if x.err != nil {
		return
	}
	_, x.err = x.w.WriteString(strings.Repeat("\t", depth) + s + "\n")
}

func (x *xesWriter) attributes(depth int, attrs eventlog.Attributes) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		x.attribute(depth, k, attrs[k])
	}
}

func (x *xesWriter) attribute(depth int, key string, v interface{}) {
	open := func(typ, value string) string {
		return fmt.Sprintf(`<%s key="%s" value="%s"`, typ, esc(key), esc(value))
	}
	switch val := v.(type) {
	case []interface{}:
		x.line(depth, fmt.Sprintf(`<list key="%s">`, esc(key)))
		x.line(depth+1, `<values>`)
		for i, item := range val {
			x.attribute(depth+2, strconv.Itoa(i), item)
		}
		x.line(depth+1, `</values>`)
		x.line(depth, `</list>`)
	case eventlog.Attributes:
		x.nested(depth, key, val)
	case map[string]interface{}:
		x.nested(depth, key, eventlog.Attributes(val))
	default:
		typ, s := xesScalar(v)
		x.line(depth, open(typ, s)+"/>")
	}
}

// nested writes a container, or a scalar with meta-attributes when the map
// has the {"value", "children"} shape ReadXES produces.
func (x *xesWriter) nested(depth int, key string, m eventlog.Attributes) {
	children, ok := m["children"].(eventlog.Attributes)
	if value, hasValue := m["value"]; ok && hasValue && len(m) == 2 {
		typ, s := xesScalar(value)
		x.line(depth, fmt.Sprintf(`<%s key="%s" value="%s">`, typ, esc(key), esc(s)))
		x.attributes(depth+1, children)
		x.line(depth, fmt.Sprintf(`</%s>`, typ))
		return
	}
	x.line(depth, fmt.Sprintf(`<container key="%s">`, esc(key)))
	x.attributes(depth+1, m)
	x.line(depth, `</container>`)
}

// xesScalar returns the element name and text of a scalar value.
func xesScalar(v interface{}) (string, string) {
	switch val := v.(type) {
	case time.Time:
		return "date", val.Format(xesDateLayout)
	case bool:
		return "boolean", strconv.FormatBool(val)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32:
		return "int", cast.ToString(val)
	case float32, float64:
		return "float", strconv.FormatFloat(cast.ToFloat64(val), 'g', -1, 64)
	}
	return "string", cast.ToString(v)
}

func esc(s string) string {
	var sb strings.Builder
	xml.EscapeText(&sb, []byte(s))
	return sb.String()
}
