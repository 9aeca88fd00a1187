// Package writer exports per-trace conformance diagnostics as Parquet.
package writer

import (
	"strings"

	"github.com/logflow/pmcore/pkg/pmpt"
)

// Config holds writer configuration.
type Config struct {
	// BatchSize is the number of rows per record batch.
	BatchSize int

	// Compression codec of the Parquet pages.
	Compression CompressionType

	// Metadata is written as key-value pairs into the file footer.
	Metadata map[string]string
}

// CompressionType represents Parquet compression options.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionGzip
	CompressionZstd
)

// String returns the compression type name.
func (c CompressionType) String() string {
	switch c {
	case CompressionSnappy:
		return "snappy"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	default:
		return "none"
	}
}

// ParseCompression parses a compression name; unknown names mean none.
func ParseCompression(s string) CompressionType {
	switch strings.ToLower(s) {
	case "snappy":
		return CompressionSnappy
	case "gzip":
		return CompressionGzip
	case "zstd":
		return CompressionZstd
	default:
		return CompressionNone
	}
}

// DefaultConfig returns snappy-compressed output in batches of 4096 rows.
func DefaultConfig() Config {
	return Config{
		BatchSize:   4096,
		Compression: CompressionSnappy,
		Metadata:    map[string]string{},
	}
}

// AttachPrefixTree stores the manifest of t in the footer under
// pmpt.ParquetMetadataKey.
func (c *Config) AttachPrefixTree(t *pmpt.Tree) error {
	s, err := t.ToParquetMetadata()
	if err != nil {
		return err
	}
	if c.Metadata == nil {
		c.Metadata = map[string]string{}
	}
	c.Metadata[pmpt.ParquetMetadataKey] = s
	return nil
}
