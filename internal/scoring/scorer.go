package scoring

import (
	"fmt"

	"github.com/imgdex/imgdex/internal/column"
	"github.com/imgdex/imgdex/internal/domain"
	"github.com/imgdex/imgdex/internal/domain/feature"
)

// DocScorer evaluates one segment, one document at a time, in ascending doc
// order. All state is exclusively owned: never share a scorer across
// goroutines or segments.
type DocScorer struct {
	vs      *ValueSource
	scratch feature.Descriptor
	bin     column.BinaryCursor
	set     column.SetCursor

	distances    []float64
	lastDoc      int
	lastComputed int
	current      float64
}

// Score returns the distance of doc to the reference vector.
//
// Repeated calls for the same doc return the cached value without
// re-decoding. Backwards access fails with domain.ErrOutOfOrder. Documents
// without a usable stored value score the fallback distance; every document
// has a defined score.
func (s *DocScorer) Score(doc int) (float64, error) {
	if doc < s.lastDoc {
		return 0, &domain.OutOfOrderError{LastDoc: s.lastDoc, Doc: doc}
	}
	s.lastDoc = doc
	if doc == s.lastComputed {
		return s.current, nil
	}

	switch {
	case s.bin != nil:
		cur := s.bin.DocID()
		if doc > cur {
			var err error
			if cur, err = s.bin.Advance(doc); err != nil {
				return 0, fmt.Errorf("advance %q to doc %d: %w", s.vs.field, doc, err)
			}
		}
		if cur == doc {
			s.current = s.scoreSingle()
		} else {
			s.current = s.vs.fallback
		}
	case s.set != nil:
		cur := s.set.DocID()
		if doc > cur {
			var err error
			if cur, err = s.set.Advance(doc); err != nil {
				return 0, fmt.Errorf("advance %q to doc %d: %w", s.vs.field, doc, err)
			}
		}
		if cur == doc {
			s.current = s.scoreMulti()
		} else {
			s.current = s.vs.fallback
		}
	default:
		s.current = s.vs.fallback
	}
	// Marked computed only once the cursor work succeeded, so a failed
	// advance is retried instead of served from the cache.
	s.lastComputed = doc
	return s.current, nil
}

// scoreSingle decodes the one stored payload into the scratch descriptor.
// Empty or corrupt payloads fall back rather than failing the scan.
func (s *DocScorer) scoreSingle() float64 {
	raw, err := s.bin.Value()
	if err != nil || len(raw) == 0 {
		return s.vs.fallback
	}
	if err := s.scratch.SetBytes(raw); err != nil {
		return s.vs.fallback
	}
	d, err := s.scratch.Distance(s.vs.ref)
	if err != nil {
		return s.vs.fallback
	}
	return d
}

// scoreMulti computes one distance per stored payload and combines them.
// Empty and corrupt payloads are skipped; a lone distance bypasses the
// aggregation since one value per document is the common case.
func (s *DocScorer) scoreMulti() float64 {
	raws, err := s.set.Values()
	if err != nil {
		return s.vs.fallback
	}
	s.distances = s.distances[:0]
	for _, raw := range raws {
		if len(raw) == 0 {
			continue
		}
		if err := s.scratch.SetBytes(raw); err != nil {
			continue
		}
		d, err := s.scratch.Distance(s.vs.ref)
		if err != nil {
			continue
		}
		s.distances = append(s.distances, d)
	}
	switch len(s.distances) {
	case 0:
		return s.vs.fallback
	case 1:
		return s.distances[0]
	default:
		return s.vs.agg.Combine(s.distances)
	}
}
