// Package extract builds index rows from images: it runs the registered
// feature set against a decoded image and emits histogram and hash field
// values under the fixed naming convention.
package extract

import (
	"fmt"
	"image"
	"io"

	// Register the decoders the import path accepts.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/imgdex/imgdex/internal/binval"
	"github.com/imgdex/imgdex/internal/domain"
	"github.com/imgdex/imgdex/internal/domain/feature"
	"github.com/imgdex/imgdex/internal/hashing"
	"github.com/imgdex/imgdex/internal/registry"
)

// Extractor computes a feature descriptor from a decoded image. The
// algorithms live in an external feature-analysis library; this core only
// consumes the produced descriptors.
type Extractor interface {
	Extract(img image.Image, d feature.Descriptor) error
}

// DecodeImage decodes an input image. Failure is a hard error for the
// import pipeline, never silently skipped.
func DecodeImage(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrImageDecode, err)
	}
	return img, nil
}

// RowBuilder emits one row per image with the configured feature set.
type RowBuilder struct {
	reg       *registry.Registry
	hashes    *hashing.Manager
	extractor Extractor
	codes     []string
}

// NewRowBuilder creates a row builder over the given feature codes; an empty
// list means every registered code.
func NewRowBuilder(reg *registry.Registry, hashes *hashing.Manager, extractor Extractor, codes []string) *RowBuilder {
	if len(codes) == 0 {
		codes = reg.Codes()
	}
	return &RowBuilder{reg: reg, hashes: hashes, extractor: extractor, codes: codes}
}

// BuildRow runs every configured feature against the image and assembles the
// field map: <code>_hi with the base64 payload, <code>_ha with the
// bit-sampling tokens, and <code>_ms with the pivot posting where a pivot
// set is loaded.
func (b *RowBuilder) BuildRow(id string, img image.Image) (domain.Row, error) {
	row := domain.Row{ID: id, Fields: make(map[string][]string, 3*len(b.codes))}
	for _, code := range b.codes {
		factory, err := b.reg.ByCode(code)
		if err != nil {
			return domain.Row{}, err
		}
		d := factory()
		if err := b.extractor.Extract(img, d); err != nil {
			return domain.Row{}, fmt.Errorf("extract %q for %q: %w", code, id, err)
		}

		// Emit under the code the registry knows the variant by; catches a
		// factory producing a foreign variant.
		emitCode, err := b.reg.CodeForVariant(d.Variant())
		if err != nil {
			return domain.Row{}, err
		}

		row.Fields[registry.FeatureField(emitCode)] = []string{binval.EncodeExternal(d.Serialize())}

		tokens, err := b.hashes.HashTokens(d)
		if err != nil {
			return domain.Row{}, fmt.Errorf("hash %q for %q: %w", emitCode, id, err)
		}
		row.Fields[registry.HashField(emitCode)] = tokens

		msTokens, ok, err := b.hashes.MetricSpacesTokens(emitCode, d)
		if err != nil {
			return domain.Row{}, fmt.Errorf("metric spaces %q for %q: %w", emitCode, id, err)
		}
		if ok {
			row.Fields[registry.MetricSpacesField(emitCode)] = msTokens
		}
	}
	return row, nil
}
