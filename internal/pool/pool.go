// Package pool provides record reuse for the ingestion readers and the
// bounded worker pool shared by the per-trace analyses.
package pool

import (
	"sync"

	"github.com/logflow/pmcore/internal/model"
)

// DefaultBufferSize is the default read buffer size of the line readers.
const DefaultBufferSize = 64 * 1024

// RecordPool manages reusable Record structs.
type RecordPool struct {
	pool sync.Pool
}

// NewRecordPool creates a new record pool.
func NewRecordPool() *RecordPool {
	rp := &RecordPool{}
	rp.pool.New = func() any {
		return &model.Record{
			CaseID:     make([]byte, 0, 64),
			Activity:   make([]byte, 0, 128),
			Resource:   make([]byte, 0, 64),
			Attributes: make([]model.Attribute, 0, 8),
		}
	}
	return rp
}

// Get retrieves a record from the pool.
func (p *RecordPool) Get() *model.Record {
	return p.pool.Get().(*model.Record)
}

// Put returns a record to the pool.
func (p *RecordPool) Put(r *model.Record) {
	r.Reset()
	p.pool.Put(r)
}
