package feature

import (
	"fmt"

	"github.com/imgdex/imgdex/internal/domain"
)

// Descriptor is the capability surface of a global image feature: an opaque
// numeric vector that can round-trip through bytes and measure its distance
// to another vector of the same variant. Implementations are not safe for
// concurrent mutation; each evaluation stream owns its own scratch instance.
type Descriptor interface {
	// Variant identifies the concrete feature this descriptor carries
	// (e.g. "ColorLayout"). Stable per factory.
	Variant() string
	// Serialize returns the byte representation. The caller owns the slice.
	Serialize() []byte
	// SetBytes replaces the descriptor content from a byte representation.
	SetBytes(b []byte) error
	// Distance computes the dissimilarity to another descriptor of the same
	// variant. 0 means identical.
	Distance(other Descriptor) (float64, error)
	// Vector exposes the numeric form consumed by hash generation.
	Vector() []float64
}

// Factory produces a fresh, empty descriptor of one variant.
type Factory func() Descriptor

func errEmptyPayload(variant string) error {
	return fmt.Errorf("%w: %s: empty payload", domain.ErrCorruptPayload, variant)
}

func errPayloadSize(variant string, n, elem int) error {
	return fmt.Errorf("%w: %s: payload length %d not a multiple of %d",
		domain.ErrCorruptPayload, variant, n, elem)
}

func errVariantMismatch(want string, other Descriptor) error {
	return fmt.Errorf("%w: cannot compare %s with %s",
		domain.ErrCorruptPayload, want, other.Variant())
}

func errLengthMismatch(variant string, a, b int) error {
	return fmt.Errorf("%w: %s: vector length mismatch %d vs %d",
		domain.ErrCorruptPayload, variant, a, b)
}
