package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRegistered signals a feature code or field with no registry entry.
	ErrNotRegistered = errors.New("feature not registered")
	// ErrDuplicateCode signals a second registration under an existing code.
	ErrDuplicateCode = errors.New("duplicate feature code")
	// ErrInvalidFieldName signals a field name outside the postfix convention.
	ErrInvalidFieldName = errors.New("invalid field name")
	// ErrMalformedBase64 signals an undecodable external byte representation.
	ErrMalformedBase64 = errors.New("malformed base64 value")
	// ErrSchemaConfig signals a field configured outside doc-values storage.
	ErrSchemaConfig = errors.New("invalid schema configuration")
	// ErrUnsupportedSort signals an attempt to sort on opaque binary values.
	ErrUnsupportedSort = errors.New("sorting unsupported for binary values")
	// ErrUnknownAggregation signals an unrecognized aggregation policy name.
	ErrUnknownAggregation = errors.New("unknown aggregation policy")
	// ErrCorruptPayload signals a byte payload a descriptor cannot decode.
	ErrCorruptPayload = errors.New("corrupt feature payload")
	// ErrRowNotFound signals a missing stored row.
	ErrRowNotFound = errors.New("row not found")
	// ErrPreloadFailed signals missing or corrupt hashing reference data.
	ErrPreloadFailed = errors.New("hash reference data preload failed")
	// ErrImageDecode signals an undecodable input image at extraction time.
	ErrImageDecode = errors.New("image decode failed")
	// ErrSegmentSealed signals a write to an already sealed segment.
	ErrSegmentSealed = errors.New("segment already sealed")
)

// ErrOutOfOrder is the sentinel matched by errors.Is for OutOfOrderError.
var ErrOutOfOrder = errors.New("out-of-order document access")

// OutOfOrderError reports a backwards document access on a per-segment
// scorer. It indicates a caller bug, never a data problem.
type OutOfOrderError struct {
	LastDoc int
	Doc     int
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("docs were sent out-of-order: lastDoc=%d vs doc=%d", e.LastDoc, e.Doc)
}

func (e *OutOfOrderError) Unwrap() error { return ErrOutOfOrder }
