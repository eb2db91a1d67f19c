package feature

import "math"

// ByteHistogram is a descriptor over uint8 bins with L1 (city block) distance.
// The classical global features (color layout, edge histogram, JCD, ...) all
// serialize to fixed-size byte histograms and compare bin-by-bin.
type ByteHistogram struct {
	variant string
	bins    []byte
}

// NewByteHistogram returns a factory for byte histograms of the given variant.
func NewByteHistogram(variant string) Factory {
	return func() Descriptor { return &ByteHistogram{variant: variant} }
}

// Variant returns the feature variant name.
func (h *ByteHistogram) Variant() string { return h.variant }

// Serialize returns a copy of the raw bins.
func (h *ByteHistogram) Serialize() []byte {
	out := make([]byte, len(h.bins))
	copy(out, h.bins)
	return out
}

// SetBytes replaces the bins from a stored payload.
func (h *ByteHistogram) SetBytes(b []byte) error {
	if len(b) == 0 {
		return errEmptyPayload(h.variant)
	}
	h.bins = append(h.bins[:0], b...)
	return nil
}

// SetBins replaces the bins directly (extraction side).
func (h *ByteHistogram) SetBins(bins []byte) {
	h.bins = append(h.bins[:0], bins...)
}

// Distance is the L1 distance over bins.
func (h *ByteHistogram) Distance(other Descriptor) (float64, error) {
	o, ok := other.(*ByteHistogram)
	if !ok {
		return 0, errVariantMismatch(h.variant, other)
	}
	if len(h.bins) != len(o.bins) {
		return 0, errLengthMismatch(h.variant, len(h.bins), len(o.bins))
	}
	var sum float64
	for i := range h.bins {
		sum += math.Abs(float64(h.bins[i]) - float64(o.bins[i]))
	}
	return sum, nil
}

// Vector returns the bins as float64s.
func (h *ByteHistogram) Vector() []float64 {
	v := make([]float64, len(h.bins))
	for i, b := range h.bins {
		v[i] = float64(b)
	}
	return v
}
