// Package model defines the raw ingestion record produced by the tabular
// readers before rows are assembled into traces.
package model

// Record is one parsed row. Byte slices are reused through a pool, so
// consumers copy what they keep.
type Record struct {
	// Line is the 1-based source row, header included.
	Line int

	CaseID   []byte
	Activity []byte

	// Timestamp is the completion time in nanoseconds since the Unix
	// epoch; HasTimestamp is false when the row left it empty.
	Timestamp    int64
	HasTimestamp bool

	// Start is the optional start time in nanoseconds; HasStart tells
	// whether the row carried one.
	Start    int64
	HasStart bool

	Resource  []byte
	Lifecycle []byte

	// Attributes holds the remaining columns.
	Attributes []Attribute
}

// Attribute is a typed column value.
type Attribute struct {
	Key   []byte
	Value []byte
	Type  AttrType
}

// AttrType indicates the semantic type of an attribute value.
type AttrType uint8

const (
	AttrTypeString AttrType = iota
	AttrTypeInt
	AttrTypeFloat
	AttrTypeBool
	AttrTypeTimestamp
)

// Reset clears the record for reuse from a pool.
func (r *Record) Reset() {
	r.Line = 0
	r.CaseID = r.CaseID[:0]
	r.Activity = r.Activity[:0]
	r.Timestamp, r.HasTimestamp = 0, false
	r.Start, r.HasStart = 0, false
	r.Resource = r.Resource[:0]
	r.Lifecycle = r.Lifecycle[:0]
	r.Attributes = r.Attributes[:0]
}

// AddAttribute appends a copy of key and value.
func (r *Record) AddAttribute(key, value []byte, typ AttrType) {
	r.Attributes = append(r.Attributes, Attribute{
		Key:   append([]byte(nil), key...),
		Value: append([]byte(nil), value...),
		Type:  typ,
	})
}
