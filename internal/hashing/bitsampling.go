package hashing

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// BitSampling holds the projection parameters for locality-sensitive hash
// generation: per hash bundle, a list of sampled dimensions with their
// decision thresholds. Read-only after load.
type BitSampling struct {
	numHashes int
	bits      int
	dim       int
	indices   [][]int32
	cuts      [][]float64
}

// maximum sane header values, guards against corrupt files
const (
	maxHashes = 4096
	maxBits   = 62
	maxDim    = 1 << 20
)

// loadBitSampling parses the bit-sampling parameter file: three little-endian
// int32s (numHashes, bitsPerHash, dimensions) followed by
// numHashes*bitsPerHash records of (int32 dimension index, float64 cut).
func loadBitSampling(r io.Reader) (*BitSampling, error) {
	var header [3]int32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	numHashes, bits, dim := int(header[0]), int(header[1]), int(header[2])
	if numHashes <= 0 || numHashes > maxHashes || bits <= 0 || bits > maxBits || dim <= 0 || dim > maxDim {
		return nil, fmt.Errorf("implausible header: hashes=%d bits=%d dim=%d", numHashes, bits, dim)
	}

	bs := &BitSampling{
		numHashes: numHashes,
		bits:      bits,
		dim:       dim,
		indices:   make([][]int32, numHashes),
		cuts:      make([][]float64, numHashes),
	}
	for i := 0; i < numHashes; i++ {
		bs.indices[i] = make([]int32, bits)
		bs.cuts[i] = make([]float64, bits)
		for j := 0; j < bits; j++ {
			var idx int32
			var cut float64
			if err := binary.Read(r, binary.LittleEndian, &idx); err != nil {
				return nil, fmt.Errorf("read index [%d][%d]: %w", i, j, err)
			}
			if err := binary.Read(r, binary.LittleEndian, &cut); err != nil {
				return nil, fmt.Errorf("read cut [%d][%d]: %w", i, j, err)
			}
			if idx < 0 || int(idx) >= dim {
				return nil, fmt.Errorf("index %d out of range [0,%d)", idx, dim)
			}
			bs.indices[i][j] = idx
			bs.cuts[i][j] = cut
		}
	}
	return bs, nil
}

// NumHashes returns the number of hash tokens produced per vector.
func (b *BitSampling) NumHashes() int { return b.numHashes }

// Hashes projects a feature vector onto the loaded bit samples, one integer
// token per bundle. Vectors shorter than the sampled dimension treat missing
// components as zero.
func (b *BitSampling) Hashes(vec []float64) []int64 {
	out := make([]int64, b.numHashes)
	for i := 0; i < b.numHashes; i++ {
		var h int64
		for j := 0; j < b.bits; j++ {
			h <<= 1
			idx := int(b.indices[i][j])
			v := 0.0
			if idx < len(vec) {
				v = vec[idx]
			}
			if v > b.cuts[i][j] && !math.IsNaN(v) {
				h |= 1
			}
		}
		out[i] = h
	}
	return out
}
