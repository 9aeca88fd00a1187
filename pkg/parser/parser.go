// Package parser reads event logs from XES, CSV, JSONL and XLSX sources.
//
// The tabular readers stream rows as model.Record values; Assemble groups
// them into traces by case id and orders every trace by completion time.
// XES documents carry their own trace structure and are read directly.
package parser

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/logflow/pmcore/internal/model"
	"github.com/logflow/pmcore/pkg/config"
	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/eventlog"
)

// RecordParser streams the rows of a tabular source.
type RecordParser interface {
	// Parse reads from r and sends parsed records to out. It stops when
	// ctx is canceled. The caller closes out and owns the records.
	Parse(ctx context.Context, r io.Reader, out chan<- *model.Record) error
}

// Format represents a supported input format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatXES
	FormatJSONL
	FormatXLSX
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatXES:
		return "xes"
	case FormatJSONL:
		return "jsonl"
	case FormatXLSX:
		return "xlsx"
	default:
		return "unknown"
	}
}

// ParseFormat parses a format name.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "csv":
		return FormatCSV
	case "xes":
		return FormatXES
	case "json", "jsonl", "ndjson":
		return FormatJSONL
	case "xlsx", "excel":
		return FormatXLSX
	default:
		return FormatUnknown
	}
}

// FormatFromPath guesses the format from a file extension.
func FormatFromPath(path string) Format {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Config names the columns of tabular sources.
type Config struct {
	// BufferSize is the size of the read buffer in bytes.
	BufferSize int

	CaseIDColumn    string
	ActivityColumn  string
	TimestampColumn string
	// StartColumn, ResourceColumn and LifecycleColumn are optional.
	StartColumn     string
	ResourceColumn  string
	LifecycleColumn string

	// TimestampFormat is tried before the built-in layouts.
	TimestampFormat string

	// Delimiter is the CSV field delimiter.
	Delimiter byte

	// Keys are the attribute keys of the assembled log.
	Keys eventlog.Keys

	// Logger receives warnings about skipped cases. Nil discards them.
	Logger *log.Logger
}

// DefaultConfig returns the column names of the XES-flavored table
// convention.
func DefaultConfig() Config {
	return Config{
		BufferSize:      64 * 1024,
		CaseIDColumn:    "case:concept:name",
		ActivityColumn:  eventlog.KeyActivity,
		TimestampColumn: eventlog.KeyTimestamp,
		StartColumn:     eventlog.KeyStartTimestamp,
		ResourceColumn:  eventlog.KeyResource,
		LifecycleColumn: eventlog.KeyLifecycle,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		Delimiter:       ',',
		Keys:            eventlog.DefaultKeys(),
	}
}

// ConfigFromLog maps the log section of the configuration onto column
// names. The case id column is the case id key prefixed with "case:".
func ConfigFromLog(lc config.LogConfig, logger *log.Logger) Config {
	cfg := DefaultConfig()
	keys := eventlog.KeysFromConfig(lc)
	cfg.Keys = keys
	cfg.CaseIDColumn = "case:" + keys.CaseID
	cfg.ActivityColumn = keys.Activity
	cfg.TimestampColumn = keys.Timestamp
	cfg.StartColumn = keys.StartTimestamp
	cfg.ResourceColumn = keys.Resource
	cfg.LifecycleColumn = keys.Lifecycle
	cfg.Logger = logger
	return cfg
}

// NewParser creates a record parser for a tabular format.
func NewParser(format Format, cfg Config) (RecordParser, error) {
	switch format {
	case FormatCSV:
		return NewCSVParser(cfg), nil
	case FormatJSONL:
		return NewJSONLParser(cfg), nil
	case FormatXLSX:
		return NewXLSXParser(cfg), nil
	default:
		return nil, errors.New(errors.CodeInvalidFormat, "unsupported record format").
			WithContext("format", format.String())
	}
}

// Read parses an event log in the given format.
func Read(ctx context.Context, r io.Reader, format Format, cfg Config) (*eventlog.EventLog, error) {
	if format == FormatXES {
		return ReadXES(ctx, r)
	}
	p, err := NewParser(format, cfg)
	if err != nil {
		return nil, err
	}
	return Assemble(ctx, p, r, cfg)
}

// ReadFile opens path and parses it in the format its extension names.
func ReadFile(ctx context.Context, path string, cfg Config) (*eventlog.EventLog, error) {
	format := FormatFromPath(path)
	if format == FormatUnknown {
		return nil, errors.New(errors.CodeInvalidFormat, "unknown log file extension").
			WithContext("path", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeParseFailed, "open log file").WithContext("path", path)
	}
	defer f.Close()
	return Read(ctx, f, format, cfg)
}
