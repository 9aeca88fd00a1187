package parser

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/logflow/pmcore/internal/model"
	"github.com/logflow/pmcore/internal/pool"
	"github.com/logflow/pmcore/pkg/errors"
)

// JSONLParser reads newline-delimited JSON: one object per event, keyed
// like the CSV columns. Numbers and booleans keep their type; nested
// objects and arrays are kept as their JSON text.
type JSONLParser struct {
	recordSource
	cfg Config
}

// NewJSONLParser creates a new JSONL parser.
func NewJSONLParser(cfg Config) *JSONLParser {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = pool.DefaultBufferSize
	}
	return &JSONLParser{recordSource: newRecordSource(), cfg: cfg}
}

// Parse implements RecordParser. Lines that are not JSON objects are
// skipped.
func (p *JSONLParser) Parse(ctx context.Context, r io.Reader, out chan<- *model.Record) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, p.cfg.BufferSize), 16*p.cfg.BufferSize)
	lineNum := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return errors.ContextCanceled("parse")
		}
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(line, &obj); err != nil {
			return errors.ParseError("jsonl", lineNum, err)
		}
		rec := p.records.Get()
		rec.Line = lineNum
		if err := p.fill(rec, obj); err != nil {
			p.records.Put(rec)
			return err
		}
		if err := p.send(ctx, out, rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.ParseError("jsonl", lineNum+1, err)
	}
	return nil
}

func (p *JSONLParser) fill(rec *model.Record, obj map[string]json.RawMessage) error {
	if _, ok := obj[p.cfg.CaseIDColumn]; !ok {
		return errors.MissingColumn(p.cfg.CaseIDColumn, nil).WithContext("row", rec.Line)
	}
	for key, raw := range obj {
		value, typ := jsonValue(raw)
		switch key {
		case p.cfg.CaseIDColumn:
			rec.CaseID = append(rec.CaseID[:0], value...)
		case p.cfg.ActivityColumn:
			rec.Activity = append(rec.Activity[:0], value...)
		case p.cfg.ResourceColumn:
			rec.Resource = append(rec.Resource[:0], value...)
		case p.cfg.LifecycleColumn:
			rec.Lifecycle = append(rec.Lifecycle[:0], value...)
		case p.cfg.TimestampColumn, p.cfg.StartColumn:
			if len(value) == 0 {
				continue
			}
			ns, err := pool.ParseTimestamp(value, p.cfg.TimestampFormat)
			if err != nil {
				return errors.InvalidTimestamp(string(value), rec.Line)
			}
			if key == p.cfg.TimestampColumn {
				rec.Timestamp, rec.HasTimestamp = ns, true
			} else {
				rec.Start, rec.HasStart = ns, true
			}
		default:
			if value != nil {
				rec.AddAttribute([]byte(key), value, typ)
			}
		}
	}
	return nil
}

// jsonValue returns the text of a JSON scalar and its attribute type.
// Strings are unquoted, null yields nil.
func jsonValue(raw json.RawMessage) ([]byte, model.AttrType) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, model.AttrTypeString
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return raw, model.AttrTypeString
		}
		return []byte(s), model.AttrTypeString
	case 't', 'f':
		return raw, model.AttrTypeBool
	case '{', '[':
		return raw, model.AttrTypeString
	}
	if bytes.ContainsAny(raw, ".eE") {
		return raw, model.AttrTypeFloat
	}
	return raw, model.AttrTypeInt
}
