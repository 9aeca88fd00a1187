package parser

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/logflow/pmcore/internal/model"
	"github.com/logflow/pmcore/pkg/errors"
)

// Header aliases tried when a configured column is missing from a sheet.
var xlsxAliases = map[string][]string{
	"case":      {"case_id", "Case ID", "CaseID", "case"},
	"activity":  {"activity", "Activity", "event"},
	"timestamp": {"timestamp", "Timestamp", "time", "Complete Timestamp"},
	"start":     {"start", "Start Timestamp", "start_time"},
	"resource":  {"resource", "Resource"},
	"lifecycle": {"lifecycle", "Lifecycle"},
}

// XLSXParser reads the first sheet of an Excel workbook, one event per row.
type XLSXParser struct {
	recordSource
	cfg Config
}

// NewXLSXParser creates a new XLSX parser.
func NewXLSXParser(cfg Config) *XLSXParser {
	return &XLSXParser{recordSource: newRecordSource(), cfg: cfg}
}

// withAliases returns a copy of cfg whose column names match header,
// falling back to common aliases for columns the header lacks.
func (p *XLSXParser) withAliases(header []string) Config {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	pick := func(name, role string) string {
		if present[name] {
			return name
		}
		for _, alias := range xlsxAliases[role] {
			if present[alias] {
				return alias
			}
		}
		return name
	}
	cfg := p.cfg
	cfg.CaseIDColumn = pick(cfg.CaseIDColumn, "case")
	cfg.ActivityColumn = pick(cfg.ActivityColumn, "activity")
	cfg.TimestampColumn = pick(cfg.TimestampColumn, "timestamp")
	cfg.StartColumn = pick(cfg.StartColumn, "start")
	cfg.ResourceColumn = pick(cfg.ResourceColumn, "resource")
	cfg.LifecycleColumn = pick(cfg.LifecycleColumn, "lifecycle")
	return cfg
}

// Parse implements RecordParser. Files are opened by path; other readers
// are buffered in memory.
func (p *XLSXParser) Parse(ctx context.Context, r io.Reader, out chan<- *model.Record) error {
	var (
		book *excelize.File
		err  error
	)
	if f, ok := r.(*os.File); ok {
		book, err = excelize.OpenFile(f.Name())
	} else {
		book, err = excelize.OpenReader(r)
	}
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidFormat, "open xlsx workbook")
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return errors.New(errors.CodeInvalidFormat, "xlsx workbook has no sheets")
	}
	rows, err := book.Rows(sheets[0])
	if err != nil {
		return errors.Wrap(err, errors.CodeParseFailed, "read xlsx rows").WithContext("sheet", sheets[0])
	}
	defer rows.Close()

	if !rows.Next() {
		return errors.New(errors.CodeInvalidFormat, "xlsx sheet is empty").WithContext("sheet", sheets[0])
	}
	header, err := rows.Columns()
	if err != nil {
		return errors.ParseError("xlsx", 1, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	cfg := p.withAliases(header)
	cols, err := resolveColumns(header, cfg)
	if err != nil {
		return err
	}

	rowNum := 1
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return errors.ContextCanceled("parse")
		}
		rowNum++
		cells, err := rows.Columns()
		if err != nil {
			return errors.ParseError("xlsx", rowNum, err)
		}
		if blank(cells) {
			continue
		}
		fields := make([][]byte, len(cells))
		for i, c := range cells {
			fields[i] = []byte(c)
		}
		rec := p.records.Get()
		rec.Line = rowNum
		if err := cols.fill(rec, fields, cfg.TimestampFormat); err != nil {
			p.records.Put(rec)
			return err
		}
		if err := p.send(ctx, out, rec); err != nil {
			return err
		}
	}
	return rows.Error()
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
