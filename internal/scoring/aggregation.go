package scoring

import (
	"fmt"
	"strings"

	"github.com/imgdex/imgdex/internal/domain"
)

// Aggregation combines the distances of multiple stored vectors for one
// document into a single score.
type Aggregation string

// Aggregation policies.
const (
	// Avg is the arithmetic mean over all distances.
	Avg Aggregation = "avg"
	// Min keeps the smallest distance: any one sub-image matching suffices.
	Min Aggregation = "min"
	// Max keeps the largest distance: all sub-images must match well.
	Max Aggregation = "max"
)

// ParseAggregation parses a policy name, case-insensitively.
func ParseAggregation(s string) (Aggregation, error) {
	switch Aggregation(strings.ToLower(s)) {
	case Avg:
		return Avg, nil
	case Min:
		return Min, nil
	case Max:
		return Max, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownAggregation, s)
	}
}

// Combine folds the distances into one value. vals must be non-empty.
func (a Aggregation) Combine(vals []float64) float64 {
	switch a {
	case Min:
		v := vals[0]
		for _, x := range vals[1:] {
			if x < v {
				v = x
			}
		}
		return v
	case Max:
		v := vals[0]
		for _, x := range vals[1:] {
			if x > v {
				v = x
			}
		}
		return v
	default: // Avg
		var sum float64
		for _, x := range vals {
			sum += x
		}
		return sum / float64(len(vals))
	}
}
