// Package binval translates opaque feature byte vectors between their
// external base64 form, in-memory buffers, and columnar storage values.
package binval

import (
	"encoding/base64"
	"fmt"

	"github.com/imgdex/imgdex/internal/domain"
)

// EncodeExternal renders bytes in the external representation: standard
// base64 alphabet, no line wrapping.
func EncodeExternal(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeExternal parses the external base64 representation.
func DecodeExternal(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedBase64, err)
	}
	return b, nil
}

// ColumnValue is one per-document byte payload bound for columnar storage.
type ColumnValue struct {
	bytes       []byte
	multiValued bool
}

// ToColumnValue wraps a byte payload for storage. multiValued marks the value
// as one element of a set-valued column; identical payloads for the same
// document collapse under set semantics, so callers must not rely on
// duplicate preservation.
func ToColumnValue(b []byte, multiValued bool) ColumnValue {
	cp := make([]byte, len(b))
	copy(cp, b)
	return ColumnValue{bytes: cp, multiValued: multiValued}
}

// FromColumnValue returns a defensive copy of the stored payload. Mutating
// the result never affects storage-owned memory.
func FromColumnValue(v ColumnValue) []byte {
	cp := make([]byte, len(v.bytes))
	copy(cp, v.bytes)
	return cp
}

// MultiValued reports whether the value belongs to a set-valued column.
func (v ColumnValue) MultiValued() bool { return v.multiValued }

// Len returns the payload length.
func (v ColumnValue) Len() int { return len(v.bytes) }

// FieldSchema describes the storage configuration of one binary field.
type FieldSchema struct {
	Name        string
	DocValues   bool
	Indexed     bool
	Stored      bool
	MultiValued bool
}

// CheckSchema validates a binary field configuration at schema-load time.
// Binary feature fields are scanned linearly at query time, so they must
// live in doc-values storage and nowhere else.
func CheckSchema(fs FieldSchema) error {
	if fs.Indexed || fs.Stored {
		return fmt.Errorf("%w: field %q cannot be indexed or stored", domain.ErrSchemaConfig, fs.Name)
	}
	if !fs.DocValues {
		return fmt.Errorf("%w: field %q needs doc values enabled", domain.ErrSchemaConfig, fs.Name)
	}
	return nil
}

// SortField always fails: opaque byte payloads have no defined total order.
func SortField(field string) error {
	return fmt.Errorf("%w: field %q", domain.ErrUnsupportedSort, field)
}
