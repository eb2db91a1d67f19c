package column

import (
	"fmt"

	"github.com/imgdex/imgdex/internal/binval"
	"github.com/imgdex/imgdex/internal/domain"
)

// binaryColumn holds one value per document; docs is strictly ascending.
type binaryColumn struct {
	docs []int
	vals [][]byte
}

// setColumn holds a value set per document; docs is strictly ascending.
type setColumn struct {
	docs []int
	vals [][][]byte
}

// MemSegment is the in-memory Segment implementation. Immutable after Seal.
type MemSegment struct {
	ids    []string
	binary map[string]*binaryColumn
	sorted map[string]*setColumn
}

var _ Segment = (*MemSegment)(nil)

// MaxDoc returns the document count.
func (s *MemSegment) MaxDoc() int { return len(s.ids) }

// ExternalID maps a local doc id to its resource identifier.
func (s *MemSegment) ExternalID(doc int) string { return s.ids[doc] }

// DocValuesKind reports the field representation in this segment.
func (s *MemSegment) DocValuesKind(field string) Kind {
	if _, ok := s.binary[field]; ok {
		return KindBinary
	}
	if _, ok := s.sorted[field]; ok {
		return KindSortedSet
	}
	return KindNone
}

// BinaryDocValues opens a cursor over a single-valued field.
func (s *MemSegment) BinaryDocValues(field string) (BinaryCursor, error) {
	col, ok := s.binary[field]
	if !ok {
		return nil, fmt.Errorf("%w: no binary column %q", domain.ErrNotRegistered, field)
	}
	return &memBinaryCursor{col: col, doc: -1}, nil
}

// SortedSetDocValues opens a cursor over a multi-valued field.
func (s *MemSegment) SortedSetDocValues(field string) (SetCursor, error) {
	col, ok := s.sorted[field]
	if !ok {
		return nil, fmt.Errorf("%w: no set column %q", domain.ErrNotRegistered, field)
	}
	return &memSetCursor{col: col, doc: -1}, nil
}

type memBinaryCursor struct {
	col *binaryColumn
	idx int
	doc int
}

func (c *memBinaryCursor) DocID() int { return c.doc }

func (c *memBinaryCursor) Advance(target int) (int, error) {
	if c.doc == NoMoreDocs || target <= c.doc {
		return c.doc, nil
	}
	for c.idx < len(c.col.docs) && c.col.docs[c.idx] < target {
		c.idx++
	}
	if c.idx == len(c.col.docs) {
		c.doc = NoMoreDocs
	} else {
		c.doc = c.col.docs[c.idx]
	}
	return c.doc, nil
}

func (c *memBinaryCursor) Value() ([]byte, error) {
	if c.doc < 0 || c.doc == NoMoreDocs {
		return nil, fmt.Errorf("cursor not positioned on a document")
	}
	return c.col.vals[c.idx], nil
}

type memSetCursor struct {
	col *setColumn
	idx int
	doc int
}

func (c *memSetCursor) DocID() int { return c.doc }

func (c *memSetCursor) Advance(target int) (int, error) {
	if c.doc == NoMoreDocs || target <= c.doc {
		return c.doc, nil
	}
	for c.idx < len(c.col.docs) && c.col.docs[c.idx] < target {
		c.idx++
	}
	if c.idx == len(c.col.docs) {
		c.doc = NoMoreDocs
	} else {
		c.doc = c.col.docs[c.idx]
	}
	return c.doc, nil
}

func (c *memSetCursor) Values() ([][]byte, error) {
	if c.doc < 0 || c.doc == NoMoreDocs {
		return nil, fmt.Errorf("cursor not positioned on a document")
	}
	return c.col.vals[c.idx], nil
}

// SegmentBuilder accumulates documents and seals them into a MemSegment.
// Not safe for concurrent use; ownership follows the ingest path.
type SegmentBuilder struct {
	ids    []string
	binary map[string]*binaryColumn
	sorted map[string]*setColumn
	sealed bool
}

// NewSegmentBuilder creates an empty builder.
func NewSegmentBuilder() *SegmentBuilder {
	return &SegmentBuilder{
		binary: make(map[string]*binaryColumn),
		sorted: make(map[string]*setColumn),
	}
}

// NumDocs returns the number of documents added so far.
func (b *SegmentBuilder) NumDocs() int { return len(b.ids) }

// AddDocument appends one document with its column values and returns the
// local doc id. A field is single- or multi-valued segment-wide; mixing the
// two, or multiple values on a single-valued field, is a schema error.
// Duplicate payloads on a multi-valued field collapse (set semantics).
func (b *SegmentBuilder) AddDocument(externalID string, fields map[string][]binval.ColumnValue) (int, error) {
	if b.sealed {
		return 0, domain.ErrSegmentSealed
	}

	// Validate every field before touching any column: a rejected document
	// must leave no partial appends behind.
	for field, vals := range fields {
		if len(vals) == 0 {
			continue
		}
		multi := vals[0].MultiValued()
		for _, v := range vals[1:] {
			if v.MultiValued() != multi {
				return 0, fmt.Errorf("%w: field %q mixes cardinalities", domain.ErrSchemaConfig, field)
			}
		}
		if multi {
			if _, ok := b.binary[field]; ok {
				return 0, fmt.Errorf("%w: field %q is single-valued in this segment", domain.ErrSchemaConfig, field)
			}
		} else {
			if _, ok := b.sorted[field]; ok {
				return 0, fmt.Errorf("%w: field %q is multi-valued in this segment", domain.ErrSchemaConfig, field)
			}
			if len(vals) > 1 {
				return 0, fmt.Errorf("%w: field %q has %d values but is single-valued", domain.ErrSchemaConfig, field, len(vals))
			}
		}
	}

	doc := len(b.ids)
	for field, vals := range fields {
		if len(vals) == 0 {
			continue
		}
		if vals[0].MultiValued() {
			col := b.sorted[field]
			if col == nil {
				col = &setColumn{}
				b.sorted[field] = col
			}
			col.docs = append(col.docs, doc)
			col.vals = append(col.vals, dedupe(vals))
		} else {
			col := b.binary[field]
			if col == nil {
				col = &binaryColumn{}
				b.binary[field] = col
			}
			col.docs = append(col.docs, doc)
			col.vals = append(col.vals, binval.FromColumnValue(vals[0]))
		}
	}
	b.ids = append(b.ids, externalID)
	return doc, nil
}

// Seal freezes the builder into an immutable segment.
func (b *SegmentBuilder) Seal() *MemSegment {
	b.sealed = true
	return &MemSegment{ids: b.ids, binary: b.binary, sorted: b.sorted}
}

// dedupe collapses identical payloads, preserving first-seen order.
func dedupe(vals []binval.ColumnValue) [][]byte {
	seen := make(map[string]bool, len(vals))
	out := make([][]byte, 0, len(vals))
	for _, v := range vals {
		raw := binval.FromColumnValue(v)
		key := string(raw)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, raw)
	}
	return out
}
