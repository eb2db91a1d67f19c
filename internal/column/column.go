// Package column provides the columnar per-document value contract the
// scoring core scans over: forward-only cursors, immutable segments, and an
// atomically swappable snapshot of all sealed segments.
package column

import "math"

// NoMoreDocs is returned by Advance when a cursor is exhausted.
const NoMoreDocs = math.MaxInt32

// Kind is the doc-values representation of a field within a segment.
type Kind int

// Field representation kinds.
const (
	KindNone      Kind = iota // field has no values in this segment
	KindBinary                // single-valued binary column
	KindSortedSet             // multi-valued set column
)

// BinaryCursor iterates a single-valued binary column in document order.
// Cursors only move forward; they are owned by exactly one evaluation stream.
type BinaryCursor interface {
	// DocID returns the current document, -1 before the first Advance, or
	// NoMoreDocs after exhaustion.
	DocID() int
	// Advance moves to the first document >= target that has a value and
	// returns its id, or NoMoreDocs.
	Advance(target int) (int, error)
	// Value returns the payload at the current document. Storage-owned; the
	// caller must not retain or mutate it.
	Value() ([]byte, error)
}

// SetCursor iterates a multi-valued binary column in document order.
type SetCursor interface {
	DocID() int
	Advance(target int) (int, error)
	// Values returns all payloads at the current document. No defined order.
	// Storage-owned; the caller must not retain or mutate them.
	Values() ([][]byte, error)
}

// Segment is one immutable contiguous document range.
type Segment interface {
	// MaxDoc returns the number of documents in the segment; valid local
	// document ids are [0, MaxDoc).
	MaxDoc() int
	// ExternalID maps a local document id to the resource identifier.
	ExternalID(doc int) string
	// DocValuesKind reports how a field is represented in this segment.
	DocValuesKind(field string) Kind
	// BinaryDocValues opens a fresh forward-only cursor over a single-valued
	// field.
	BinaryDocValues(field string) (BinaryCursor, error)
	// SortedSetDocValues opens a fresh forward-only cursor over a
	// multi-valued field.
	SortedSetDocValues(field string) (SetCursor, error)
}
