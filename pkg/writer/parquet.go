package writer

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/logflow/pmcore/pkg/errors"
)

// diagnosticsSchema returns the Arrow schema of Row with the footer
// metadata attached.
func diagnosticsSchema(meta map[string]string) *arrow.Schema {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = meta[k]
	}
	md := arrow.NewMetadata(keys, values)
	return arrow.NewSchema([]arrow.Field{
		{Name: "case_id", Type: arrow.BinaryTypes.String},
		{Name: "variant", Type: arrow.BinaryTypes.String},
		{Name: "events", Type: arrow.PrimitiveTypes.Int64},
		{Name: "replay_fitness", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "missing", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "remaining", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "consumed", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "produced", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "align_fitness", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "align_cost", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "deviations", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "visited_states", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "error", Type: arrow.BinaryTypes.String, Nullable: true},
	}, &md)
}

// ParquetWriter writes diagnostic rows to a Parquet file.
type ParquetWriter struct {
	cfg     Config
	schema  *arrow.Schema
	writer  *pqarrow.FileWriter
	builder *array.RecordBuilder

	mu          sync.Mutex
	pending     int
	rowsWritten int64
	closed      bool
}

// NewParquetWriter creates a writer emitting to output. Close closes output
// when it is an io.Closer.
func NewParquetWriter(output io.Writer, cfg Config) (*ParquetWriter, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	schema := diagnosticsSchema(cfg.Metadata)
	props := parquet.NewWriterProperties(
		parquet.WithCompression(codec(cfg.Compression)),
		parquet.WithDictionaryDefault(true),
		parquet.WithCreatedBy("pmcore"),
	)
	w, err := pqarrow.NewFileWriter(schema, output, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeWriteFailed, "create parquet writer")
	}
	return &ParquetWriter{
		cfg:     cfg,
		schema:  schema,
		writer:  w,
		builder: array.NewRecordBuilder(memory.NewGoAllocator(), schema),
	}, nil
}

func codec(c CompressionType) compress.Compression {
	switch c {
	case CompressionSnappy:
		return compress.Codecs.Snappy
	case CompressionGzip:
		return compress.Codecs.Gzip
	case CompressionZstd:
		return compress.Codecs.Zstd
	default:
		return compress.Codecs.Uncompressed
	}
}

// Write appends rows, flushing a record batch every BatchSize rows.
func (w *ParquetWriter) Write(ctx context.Context, rows []Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New(errors.CodeWriteFailed, "parquet writer is closed")
	}
	for i := range rows {
		if i%w.cfg.BatchSize == 0 {
			if err := ctx.Err(); err != nil {
				return errors.ContextCanceled("write parquet")
			}
		}
		w.append(&rows[i])
		w.pending++
		if w.pending >= w.cfg.BatchSize {
			if err := w.flushBatch(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *ParquetWriter) append(r *Row) {
	b := w.builder
	b.Field(0).(*array.StringBuilder).Append(r.CaseID)
	b.Field(1).(*array.StringBuilder).Append(r.Variant)
	b.Field(2).(*array.Int64Builder).Append(int64(r.Events))

	replayInts := []int{r.Missing, r.Remaining, r.Consumed, r.Produced}
	if r.HasReplay {
		b.Field(3).(*array.Float64Builder).Append(r.ReplayFitness)
		for i, v := range replayInts {
			b.Field(4+i).(*array.Int64Builder).Append(int64(v))
		}
	} else {
		b.Field(3).AppendNull()
		for i := range replayInts {
			b.Field(4+i).AppendNull()
		}
	}

	if r.HasAlignment {
		b.Field(8).(*array.Float64Builder).Append(r.AlignFitness)
		b.Field(9).(*array.Float64Builder).Append(r.AlignCost)
		b.Field(10).(*array.Int64Builder).Append(int64(r.Deviations))
		b.Field(11).(*array.Int64Builder).Append(int64(r.Visited))
	} else {
		for i := 8; i <= 11; i++ {
			b.Field(i).AppendNull()
		}
	}

	if r.Error != "" {
		b.Field(12).(*array.StringBuilder).Append(r.Error)
	} else {
		b.Field(12).AppendNull()
	}
}

func (w *ParquetWriter) flushBatch() error {
	if w.pending == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	if err := w.writer.Write(rec); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "write record batch")
	}
	w.rowsWritten += int64(w.pending)
	w.pending = 0
	return nil
}

// Flush writes buffered rows as a record batch.
func (w *ParquetWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushBatch()
}

// Close flushes pending rows and writes the file footer.
func (w *ParquetWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	defer w.builder.Release()
	if err := w.flushBatch(); err != nil {
		return err
	}
	if err := w.writer.Close(); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "close parquet writer")
	}
	return nil
}

// RowsWritten returns the number of rows flushed so far.
func (w *ParquetWriter) RowsWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowsWritten
}
