// Package registry maps short feature codes to descriptor factories and to
// the index field names storing their histograms and hashes.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/imgdex/imgdex/internal/domain"
	"github.com/imgdex/imgdex/internal/domain/feature"
)

// Field name postfixes. Part of the on-index compatibility contract.
const (
	FeatureFieldPostfix      = "_hi" // histogram bytes
	HashFieldPostfix         = "_ha" // bit-sampling hash tokens
	MetricSpacesFieldPostfix = "_ms" // metric-space posting tokens
)

// Builder collects registrations before the registry is frozen.
// Not safe for concurrent use; registration happens once at startup.
type Builder struct {
	codes map[string]feature.Factory
	order []string
}

// New creates an empty registry builder.
func New() *Builder {
	return &Builder{codes: make(map[string]feature.Factory)}
}

// Register adds a feature code with its descriptor factory.
// Codes are two lowercase letters by convention.
func (b *Builder) Register(code string, f feature.Factory) error {
	if len(code) != 2 {
		return fmt.Errorf("%w: code %q must be two characters", domain.ErrInvalidFieldName, code)
	}
	if _, ok := b.codes[code]; ok {
		return fmt.Errorf("%w: %q", domain.ErrDuplicateCode, code)
	}
	b.codes[code] = f
	b.order = append(b.order, code)
	return nil
}

// Freeze builds the immutable registry snapshot. The derived lookup maps are
// never mutated afterwards, so the result is safe for unsynchronized
// concurrent reads.
func (b *Builder) Freeze() *Registry {
	r := &Registry{
		byCode:         make(map[string]feature.Factory, len(b.codes)),
		byFeatureField: make(map[string]feature.Factory, len(b.codes)),
		byHashField:    make(map[string]feature.Factory, len(b.codes)),
		variantToCode:  make(map[string]string, len(b.codes)),
		codes:          append([]string(nil), b.order...),
	}
	sort.Strings(r.codes)
	for code, f := range b.codes {
		r.byCode[code] = f
		r.byFeatureField[code+FeatureFieldPostfix] = f
		r.byHashField[code+HashFieldPostfix] = f
		r.variantToCode[f().Variant()] = code
	}
	return r
}

// Registry is the frozen code table. Read-only after Freeze.
type Registry struct {
	byCode         map[string]feature.Factory
	byFeatureField map[string]feature.Factory
	byHashField    map[string]feature.Factory
	variantToCode  map[string]string
	codes          []string
}

// Codes returns all registered codes in sorted order.
func (r *Registry) Codes() []string {
	return append([]string(nil), r.codes...)
}

// ByCode resolves the factory for a feature code.
func (r *Registry) ByCode(code string) (feature.Factory, error) {
	f, ok := r.byCode[code]
	if !ok {
		return nil, fmt.Errorf("%w: code %q", domain.ErrNotRegistered, code)
	}
	return f, nil
}

// ByFeatureField resolves the factory for a histogram field name.
func (r *Registry) ByFeatureField(field string) (feature.Factory, error) {
	f, ok := r.byFeatureField[field]
	if !ok {
		return nil, fmt.Errorf("%w: feature field %q", domain.ErrNotRegistered, field)
	}
	return f, nil
}

// ByHashField resolves the factory for a hash field name.
func (r *Registry) ByHashField(field string) (feature.Factory, error) {
	f, ok := r.byHashField[field]
	if !ok {
		return nil, fmt.Errorf("%w: hash field %q", domain.ErrNotRegistered, field)
	}
	return f, nil
}

// CodeForVariant is the reverse lookup used when emitting extraction rows.
func (r *Registry) CodeForVariant(variant string) (string, error) {
	code, ok := r.variantToCode[variant]
	if !ok {
		return "", fmt.Errorf("%w: variant %q", domain.ErrNotRegistered, variant)
	}
	return code, nil
}

// String renders the diagnostic registration table.
func (r *Registry) String() string {
	var sb strings.Builder
	sb.WriteString("registered features:\ncode\thash field\tfeature field\tvariant\n")
	for _, code := range r.codes {
		fmt.Fprintf(&sb, "%s\t%s\t%s\t%s\n",
			code, HashField(code), FeatureField(code), r.byCode[code]().Variant())
	}
	return sb.String()
}

// FeatureField derives the histogram field name for a code.
func FeatureField(code string) string { return code + FeatureFieldPostfix }

// HashField derives the hash field name for a code.
func HashField(code string) string { return code + HashFieldPostfix }

// MetricSpacesField derives the metric-space posting field name for a code.
func MetricSpacesField(code string) string { return code + MetricSpacesFieldPostfix }

// FeatureFieldForHashField converts "<code>_ha" into "<code>_hi".
func FeatureFieldForHashField(hashField string) (string, error) {
	code, ok := strings.CutSuffix(hashField, HashFieldPostfix)
	if !ok || code == "" {
		return "", fmt.Errorf("%w: %q is not a hash field", domain.ErrInvalidFieldName, hashField)
	}
	return code + FeatureFieldPostfix, nil
}

// HashFieldForFeatureField converts "<code>_hi" into "<code>_ha".
func HashFieldForFeatureField(featureField string) (string, error) {
	code, ok := strings.CutSuffix(featureField, FeatureFieldPostfix)
	if !ok || code == "" {
		return "", fmt.Errorf("%w: %q is not a feature field", domain.ErrInvalidFieldName, featureField)
	}
	return code + HashFieldPostfix, nil
}

// CodeForField strips a known postfix from a field name.
func CodeForField(field string) (string, error) {
	for _, postfix := range []string{FeatureFieldPostfix, HashFieldPostfix, MetricSpacesFieldPostfix} {
		if code, ok := strings.CutSuffix(field, postfix); ok && code != "" {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: %q has no known postfix", domain.ErrInvalidFieldName, field)
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide registry with the standard feature set.
// Built once; immutable afterwards.
func Default() *Registry {
	defaultOnce.Do(func() {
		b := New()
		// Classical features from the first implementation.
		mustRegister(b, "cl", feature.NewByteHistogram("ColorLayout"))
		mustRegister(b, "eh", feature.NewByteHistogram("EdgeHistogram"))
		mustRegister(b, "jc", feature.NewByteHistogram("JCD"))
		mustRegister(b, "oh", feature.NewByteHistogram("OpponentHistogram"))
		mustRegister(b, "ph", feature.NewByteHistogram("PHOG"))
		// Additional global features.
		mustRegister(b, "ac", feature.NewByteHistogram("AutoColorCorrelogram"))
		mustRegister(b, "ad", feature.NewByteHistogram("ACCID"))
		mustRegister(b, "ce", feature.NewByteHistogram("CEDD"))
		mustRegister(b, "fc", feature.NewByteHistogram("FCTH"))
		mustRegister(b, "fo", feature.NewByteHistogram("FuzzyOpponentHistogram"))
		mustRegister(b, "jh", feature.NewByteHistogram("JointHistogram"))
		mustRegister(b, "sc", feature.NewIntVector("ScalableColor"))
		mustRegister(b, "pc", feature.NewByteHistogram("SPCEDD"))
		// Generic features filled with whatever one prefers.
		mustRegister(b, "df", feature.NewDoubleVector("DoubleVectorCosine"))
		mustRegister(b, "if", feature.NewIntVector("GenericIntVector"))
		mustRegister(b, "sf", feature.NewShortVector("ShortVectorCosine"))
		defaultReg = b.Freeze()
	})
	return defaultReg
}

func mustRegister(b *Builder, code string, f feature.Factory) {
	if err := b.Register(code, f); err != nil {
		panic(err)
	}
}

// DefaultFeatureCodes returns the feature set extracted from images when no
// explicit selection is configured: the five classical features. Callers
// own the returned slice.
func DefaultFeatureCodes() []string {
	return []string{"cl", "eh", "jc", "oh", "ph"}
}
