package parser

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/logflow/pmcore/internal/model"
	"github.com/logflow/pmcore/internal/pool"
	"github.com/logflow/pmcore/pkg/errors"
)

// CSVParser reads one event per row. The header row names the columns;
// unnamed columns become string attributes.
type CSVParser struct {
	recordSource
	cfg     Config
	scanner *CSVScanner
}

// NewCSVParser creates a new CSV parser.
func NewCSVParser(cfg Config) *CSVParser {
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ','
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = pool.DefaultBufferSize
	}
	return &CSVParser{
		recordSource: newRecordSource(),
		cfg:          cfg,
		scanner:      NewCSVScanner(cfg.Delimiter),
	}
}

// columns maps the configured roles to header positions, -1 when absent.
type columns struct {
	caseID, activity, timestamp int
	start, resource, lifecycle  int
	names                       [][]byte
}

func (c columns) role(i int) bool {
	return i == c.caseID || i == c.activity || i == c.timestamp ||
		i == c.start || i == c.resource || i == c.lifecycle
}

// resolveColumns locates the configured columns in a header. The case id,
// activity and timestamp columns are required.
func resolveColumns(header []string, cfg Config) (columns, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[h] = i
	}
	find := func(name string) int {
		if i, ok := index[name]; ok && name != "" {
			return i
		}
		return -1
	}
	c := columns{
		caseID:    find(cfg.CaseIDColumn),
		activity:  find(cfg.ActivityColumn),
		timestamp: find(cfg.TimestampColumn),
		start:     find(cfg.StartColumn),
		resource:  find(cfg.ResourceColumn),
		lifecycle: find(cfg.LifecycleColumn),
	}
	for _, req := range []struct {
		name string
		idx  int
	}{{cfg.CaseIDColumn, c.caseID}, {cfg.ActivityColumn, c.activity}, {cfg.TimestampColumn, c.timestamp}} {
		if req.idx < 0 {
			return c, errors.MissingColumn(req.name, header)
		}
	}
	for _, h := range header {
		c.names = append(c.names, []byte(h))
	}
	return c, nil
}

// fill copies the fields of one row into rec.
func (c columns) fill(rec *model.Record, fields [][]byte, layout string) error {
	field := func(i int) []byte {
		if i < 0 || i >= len(fields) {
			return nil
		}
		return bytes.TrimSpace(fields[i])
	}
	rec.CaseID = append(rec.CaseID[:0], field(c.caseID)...)
	rec.Activity = append(rec.Activity[:0], field(c.activity)...)
	rec.Resource = append(rec.Resource[:0], field(c.resource)...)
	rec.Lifecycle = append(rec.Lifecycle[:0], field(c.lifecycle)...)

	if ts := field(c.timestamp); len(ts) > 0 {
		ns, err := pool.ParseTimestamp(ts, layout)
		if err != nil {
			return errors.InvalidTimestamp(string(ts), rec.Line)
		}
		rec.Timestamp, rec.HasTimestamp = ns, true
	}
	if st := field(c.start); len(st) > 0 {
		ns, err := pool.ParseTimestamp(st, layout)
		if err != nil {
			return errors.InvalidTimestamp(string(st), rec.Line)
		}
		rec.Start, rec.HasStart = ns, true
	}
	for i, name := range c.names {
		if c.role(i) {
			continue
		}
		if v := field(i); len(v) > 0 {
			rec.AddAttribute(name, v, model.AttrTypeString)
		}
	}
	return nil
}

// Parse implements RecordParser.
func (p *CSVParser) Parse(ctx context.Context, r io.Reader, out chan<- *model.Record) error {
	reader := bufio.NewReaderSize(r, p.cfg.BufferSize)

	headerLine, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return errors.ParseError("csv", 1, err)
	}
	headerLine = bytes.TrimPrefix(pool.TrimLineEnding(headerLine), []byte("\xef\xbb\xbf"))
	if len(headerLine) == 0 {
		return errors.New(errors.CodeInvalidFormat, "csv input has no header")
	}
	var header []string
	for _, f := range p.scanner.ScanLine(headerLine) {
		header = append(header, string(bytes.TrimSpace(f)))
	}
	cols, err := resolveColumns(header, p.cfg)
	if err != nil {
		return err
	}

	lineNum := 1
	for {
		if err := ctx.Err(); err != nil {
			return errors.ContextCanceled("parse")
		}
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return errors.ParseError("csv", lineNum+1, readErr)
		}
		if len(line) == 0 && readErr == io.EOF {
			return nil
		}
		lineNum++

		line = bytes.ToValidUTF8(pool.TrimLineEnding(line), []byte("�"))
		if len(bytes.TrimSpace(line)) > 0 {
			rec := p.records.Get()
			rec.Line = lineNum
			if err := cols.fill(rec, p.scanner.ScanLine(line), p.cfg.TimestampFormat); err != nil {
				p.records.Put(rec)
				return err
			}
			if err := p.send(ctx, out, rec); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
	}
}
