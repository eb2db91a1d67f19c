package feature

import (
	"encoding/binary"
	"math"
)

// DoubleVector is a float64 descriptor compared by cosine distance.
// Serialized as little-endian IEEE 754 doubles.
type DoubleVector struct {
	variant string
	vals    []float64
}

// NewDoubleVector returns a factory for float64 cosine-distance descriptors.
func NewDoubleVector(variant string) Factory {
	return func() Descriptor { return &DoubleVector{variant: variant} }
}

// Variant returns the feature variant name.
func (d *DoubleVector) Variant() string { return d.variant }

// Serialize encodes the values as little-endian float64s.
func (d *DoubleVector) Serialize() []byte {
	out := make([]byte, 8*len(d.vals))
	for i, v := range d.vals {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

// SetBytes decodes little-endian float64s.
func (d *DoubleVector) SetBytes(b []byte) error {
	if len(b) == 0 {
		return errEmptyPayload(d.variant)
	}
	if len(b)%8 != 0 {
		return errPayloadSize(d.variant, len(b), 8)
	}
	d.vals = d.vals[:0]
	for i := 0; i < len(b); i += 8 {
		d.vals = append(d.vals, math.Float64frombits(binary.LittleEndian.Uint64(b[i:])))
	}
	return nil
}

// SetValues replaces the values directly (extraction side).
func (d *DoubleVector) SetValues(vals []float64) {
	d.vals = append(d.vals[:0], vals...)
}

// Distance is the cosine distance (1 - cosine similarity).
func (d *DoubleVector) Distance(other Descriptor) (float64, error) {
	o, ok := other.(*DoubleVector)
	if !ok {
		return 0, errVariantMismatch(d.variant, other)
	}
	if len(d.vals) != len(o.vals) {
		return 0, errLengthMismatch(d.variant, len(d.vals), len(o.vals))
	}
	return cosineDistance(d.vals, o.vals), nil
}

// Vector returns the underlying values.
func (d *DoubleVector) Vector() []float64 { return d.vals }

// ShortVector is an int16 descriptor compared by cosine distance.
// Serialized as little-endian int16s.
type ShortVector struct {
	variant string
	vals    []int16
}

// NewShortVector returns a factory for int16 cosine-distance descriptors.
func NewShortVector(variant string) Factory {
	return func() Descriptor { return &ShortVector{variant: variant} }
}

// Variant returns the feature variant name.
func (s *ShortVector) Variant() string { return s.variant }

// Serialize encodes the values as little-endian int16s.
func (s *ShortVector) Serialize() []byte {
	out := make([]byte, 2*len(s.vals))
	for i, v := range s.vals {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// SetBytes decodes little-endian int16s.
func (s *ShortVector) SetBytes(b []byte) error {
	if len(b) == 0 {
		return errEmptyPayload(s.variant)
	}
	if len(b)%2 != 0 {
		return errPayloadSize(s.variant, len(b), 2)
	}
	s.vals = s.vals[:0]
	for i := 0; i < len(b); i += 2 {
		s.vals = append(s.vals, int16(binary.LittleEndian.Uint16(b[i:])))
	}
	return nil
}

// SetValues replaces the values directly (extraction side).
func (s *ShortVector) SetValues(vals []int16) {
	s.vals = append(s.vals[:0], vals...)
}

// Distance is the cosine distance (1 - cosine similarity).
func (s *ShortVector) Distance(other Descriptor) (float64, error) {
	o, ok := other.(*ShortVector)
	if !ok {
		return 0, errVariantMismatch(s.variant, other)
	}
	if len(s.vals) != len(o.vals) {
		return 0, errLengthMismatch(s.variant, len(s.vals), len(o.vals))
	}
	return cosineDistance(s.Vector(), o.Vector()), nil
}

// Vector returns the values as float64s.
func (s *ShortVector) Vector() []float64 {
	v := make([]float64, len(s.vals))
	for i, x := range s.vals {
		v[i] = float64(x)
	}
	return v
}

// IntVector is an int32 descriptor compared by Euclidean distance.
// Serialized as little-endian int32s.
type IntVector struct {
	variant string
	vals    []int32
}

// NewIntVector returns a factory for int32 Euclidean-distance descriptors.
func NewIntVector(variant string) Factory {
	return func() Descriptor { return &IntVector{variant: variant} }
}

// Variant returns the feature variant name.
func (iv *IntVector) Variant() string { return iv.variant }

// Serialize encodes the values as little-endian int32s.
func (iv *IntVector) Serialize() []byte {
	out := make([]byte, 4*len(iv.vals))
	for i, v := range iv.vals {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
	}
	return out
}

// SetBytes decodes little-endian int32s.
func (iv *IntVector) SetBytes(b []byte) error {
	if len(b) == 0 {
		return errEmptyPayload(iv.variant)
	}
	if len(b)%4 != 0 {
		return errPayloadSize(iv.variant, len(b), 4)
	}
	iv.vals = iv.vals[:0]
	for i := 0; i < len(b); i += 4 {
		iv.vals = append(iv.vals, int32(binary.LittleEndian.Uint32(b[i:])))
	}
	return nil
}

// SetValues replaces the values directly (extraction side).
func (iv *IntVector) SetValues(vals []int32) {
	iv.vals = append(iv.vals[:0], vals...)
}

// Distance is the Euclidean distance.
func (iv *IntVector) Distance(other Descriptor) (float64, error) {
	o, ok := other.(*IntVector)
	if !ok {
		return 0, errVariantMismatch(iv.variant, other)
	}
	if len(iv.vals) != len(o.vals) {
		return 0, errLengthMismatch(iv.variant, len(iv.vals), len(o.vals))
	}
	var sum float64
	for i := range iv.vals {
		d := float64(iv.vals[i]) - float64(o.vals[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Vector returns the values as float64s.
func (iv *IntVector) Vector() []float64 {
	v := make([]float64, len(iv.vals))
	for i, x := range iv.vals {
		v[i] = float64(x)
	}
	return v
}

// cosineDistance returns 1 - cos(a, b). Zero-magnitude vectors are maximally
// dissimilar to everything, including each other.
func cosineDistance(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
