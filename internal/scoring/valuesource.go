// Package scoring computes per-document visual distances between stored
// feature vectors and a query-supplied reference vector.
package scoring

import (
	"bytes"
	"fmt"
	"math"

	"github.com/imgdex/imgdex/internal/binval"
	"github.com/imgdex/imgdex/internal/column"
	"github.com/imgdex/imgdex/internal/domain/feature"
	"github.com/imgdex/imgdex/internal/registry"
)

// DefaultFallbackDistance is the score of documents without a usable stored
// vector when the request does not override it: maximally dissimilar.
const DefaultFallbackDistance = float64(math.MaxFloat32)

// ValueSource is the per-query scoring plan: one target field, one decoded
// reference vector, an aggregation policy, and the fallback distance.
// Immutable after construction; safe to share across segment workers.
type ValueSource struct {
	field     string
	reference []byte
	agg       Aggregation
	fallback  float64
	factory   feature.Factory
	ref       feature.Descriptor
	desc      string
}

// NewValueSource resolves the feature implementation for the target field
// and decodes the reference vector. Both failures are request-level
// configuration errors, raised here rather than per document.
func NewValueSource(
	reg *registry.Registry, field string, reference []byte, agg Aggregation, fallback float64,
) (*ValueSource, error) {
	factory, err := reg.ByFeatureField(field)
	if err != nil {
		return nil, err
	}

	ref := factory()
	if err := ref.SetBytes(reference); err != nil {
		return nil, fmt.Errorf("reference vector for %q: %w", field, err)
	}

	refCopy := make([]byte, len(reference))
	copy(refCopy, reference)

	vs := &ValueSource{
		field:     field,
		reference: refCopy,
		agg:       agg,
		fallback:  fallback,
		factory:   factory,
		ref:       ref,
	}
	// Computed once so query-plan caching and diagnostics stay cheap.
	vs.desc = fmt.Sprintf("lirefunc(%s,'%s',%s,%g)",
		field, binval.EncodeExternal(refCopy), vs.agg, fallback)
	return vs, nil
}

// Field returns the target feature field.
func (vs *ValueSource) Field() string { return vs.field }

// Fallback returns the configured fallback distance.
func (vs *ValueSource) Fallback() float64 { return vs.fallback }

// Description returns the deterministic plan key, derived from the four
// identity fields at construction time.
func (vs *ValueSource) Description() string { return vs.desc }

// Equal reports plan identity: same field, byte-exact reference, same
// aggregation, bit-exact fallback. Hosts use this to reuse compiled plans.
func (vs *ValueSource) Equal(other *ValueSource) bool {
	if other == nil {
		return false
	}
	return vs.field == other.field &&
		bytes.Equal(vs.reference, other.reference) &&
		vs.agg == other.agg &&
		math.Float64bits(vs.fallback) == math.Float64bits(other.fallback)
}

// Scorer opens a per-segment document scorer. Each call returns fresh
// mutable state (scratch descriptor, cursor, cache); nothing is shared
// between segments or between concurrent scorers.
func (vs *ValueSource) Scorer(seg column.Segment) (*DocScorer, error) {
	s := &DocScorer{
		vs:           vs,
		scratch:      vs.factory(),
		lastDoc:      -1,
		lastComputed: -1,
	}
	switch seg.DocValuesKind(vs.field) {
	case column.KindBinary:
		cur, err := seg.BinaryDocValues(vs.field)
		if err != nil {
			return nil, fmt.Errorf("open binary doc values %q: %w", vs.field, err)
		}
		s.bin = cur
	case column.KindSortedSet:
		cur, err := seg.SortedSetDocValues(vs.field)
		if err != nil {
			return nil, fmt.Errorf("open set doc values %q: %w", vs.field, err)
		}
		s.set = cur
	case column.KindNone:
		// Every document scores the fallback distance.
	}
	return s, nil
}
