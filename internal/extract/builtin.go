package extract

import (
	"fmt"
	"image"
	"math"

	"github.com/imgdex/imgdex/internal/domain/feature"
)

// BuiltinExtractor computes coarse global statistics straight from pixels.
// Edge-oriented variants get a gradient orientation histogram, everything
// else a quantized RGB histogram. It covers all registered descriptor kinds,
// so the service can index images without an external analysis library.
type BuiltinExtractor struct{}

// NewBuiltinExtractor creates the pixel-statistics extractor.
func NewBuiltinExtractor() *BuiltinExtractor { return &BuiltinExtractor{} }

// edgeVariants use the gradient histogram instead of the color histogram.
var edgeVariants = map[string]bool{
	"EdgeHistogram": true,
	"PHOG":          true,
}

// Extract fills the descriptor from the image.
func (e *BuiltinExtractor) Extract(img image.Image, d feature.Descriptor) error {
	var counts []float64
	if edgeVariants[d.Variant()] {
		counts = gradientHistogram(img)
	} else {
		counts = rgbHistogram(img)
	}

	switch t := d.(type) {
	case *feature.ByteHistogram:
		t.SetBins(scaleToBytes(counts))
	case *feature.DoubleVector:
		t.SetValues(normalize(counts))
	case *feature.IntVector:
		vals := make([]int32, len(counts))
		for i, c := range counts {
			if c > math.MaxInt32 {
				c = math.MaxInt32
			}
			vals[i] = int32(c)
		}
		t.SetValues(vals)
	case *feature.ShortVector:
		vals := make([]int16, len(counts))
		for i, c := range counts {
			if c > math.MaxInt16 {
				c = math.MaxInt16
			}
			vals[i] = int16(c)
		}
		t.SetValues(vals)
	default:
		return fmt.Errorf("no builtin extraction for descriptor %T (%s)", d, d.Variant())
	}
	return nil
}

// rgbHistogram counts pixels in a 4x4x4 quantized RGB cube (64 bins).
func rgbHistogram(img image.Image) []float64 {
	counts := make([]float64, 64)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			bin := (r>>14)<<4 | (g>>14)<<2 | bl>>14
			counts[bin]++
		}
	}
	return counts
}

// gradientHistogram bins luminance gradient orientation (8 directions) by
// magnitude (8 levels), 64 bins total.
func gradientHistogram(img image.Image) []float64 {
	counts := make([]float64, 64)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y-1; y++ {
		for x := b.Min.X; x < b.Max.X-1; x++ {
			l := luminance(img, x, y)
			dx := luminance(img, x+1, y) - l
			dy := luminance(img, x, y+1) - l
			mag := math.Hypot(dx, dy)
			if mag == 0 {
				continue
			}
			ori := int((math.Atan2(dy, dx) + math.Pi) / (2 * math.Pi) * 8)
			if ori > 7 {
				ori = 7
			}
			lvl := int(mag / 65536 * 8)
			if lvl > 7 {
				lvl = 7
			}
			counts[ori*8+lvl]++
		}
	}
	return counts
}

func luminance(img image.Image, x, y int) float64 {
	r, g, b, _ := img.At(x, y).RGBA()
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// scaleToBytes maps counts linearly onto 0..255 with the max bin at 255.
func scaleToBytes(counts []float64) []byte {
	var max float64
	for _, c := range counts {
		if c > max {
			max = c
		}
	}
	out := make([]byte, len(counts))
	if max == 0 {
		return out
	}
	for i, c := range counts {
		out[i] = byte(c / max * 255)
	}
	return out
}

// normalize scales counts to sum 1.
func normalize(counts []float64) []float64 {
	var sum float64
	for _, c := range counts {
		sum += c
	}
	out := make([]float64, len(counts))
	if sum == 0 {
		return out
	}
	for i, c := range counts {
		out[i] = c / sum
	}
	return out
}
