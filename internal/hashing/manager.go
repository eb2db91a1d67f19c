// Package hashing loads the process-wide reference data for approximate
// hash generation: bit-sampling projections and per-feature metric-space
// pivot sets. Loaded once before indexing begins, read-only afterwards.
package hashing

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/imgdex/imgdex/internal/domain"
	"github.com/imgdex/imgdex/internal/domain/feature"
	"github.com/imgdex/imgdex/internal/registry"
)

// BitSamplingFileName is the bit-sampling parameter file inside the
// resource directory. Part of the deployment contract.
const BitSamplingFileName = "bitsampling.bin.gz"

// PivotFileName derives the pivot set file name for a feature code.
func PivotFileName(code string) string { return code + ".msd.gz" }

// Config names the resource set to preload.
type Config struct {
	// Dir is the resource directory bundled with the deployment.
	Dir string
	// PivotCodes lists the feature codes with a pivot set file. Every listed
	// file must exist; a missing resource aborts startup.
	PivotCodes []string
}

// Manager owns the loaded hash state. Init must complete before any
// concurrent indexing or hash-based scoring starts; afterwards all reads are
// unsynchronized and safe.
type Manager struct {
	cfg    Config
	reg    *registry.Registry
	logger *zap.Logger

	mu     sync.Mutex
	loaded bool
	bs     *BitSampling
	pivots map[string]*PivotSet
}

// NewManager creates an uninitialized preload manager.
func NewManager(reg *registry.Registry, cfg Config, logger *zap.Logger) *Manager {
	return &Manager{cfg: cfg, reg: reg, logger: logger, pivots: make(map[string]*PivotSet)}
}

// Init loads the fixed resource list. Idempotent on success; any missing or
// corrupt resource fails the whole initialization — there is no degraded
// mode with partial hash capability.
func (m *Manager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return nil
	}

	bs, err := m.loadBitSamplingFile()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrPreloadFailed, BitSamplingFileName, err)
	}

	pivots := make(map[string]*PivotSet, len(m.cfg.PivotCodes))
	for _, code := range m.cfg.PivotCodes {
		factory, err := m.reg.ByCode(code)
		if err != nil {
			return fmt.Errorf("%w: pivot set for unregistered code %q", domain.ErrPreloadFailed, code)
		}
		ps, err := m.loadPivotFile(code, factory)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrPreloadFailed, PivotFileName(code), err)
		}
		pivots[code] = ps
	}

	m.bs = bs
	m.pivots = pivots
	m.loaded = true
	m.logger.Info("hash reference data loaded",
		zap.Int("hashes_per_vector", bs.NumHashes()),
		zap.Int("pivot_sets", len(pivots)),
		zap.String("dir", m.cfg.Dir),
	)
	return nil
}

// Ready reports whether Init has completed successfully.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// HashTokens produces the bit-sampling hash tokens for a descriptor.
func (m *Manager) HashTokens(d feature.Descriptor) ([]string, error) {
	if !m.loaded {
		return nil, fmt.Errorf("%w: not initialized", domain.ErrPreloadFailed)
	}
	hashes := m.bs.Hashes(d.Vector())
	tokens := make([]string, len(hashes))
	for i, h := range hashes {
		tokens[i] = strconv.FormatInt(h, 10)
	}
	return tokens, nil
}

// MetricSpacesTokens produces the pivot posting tokens for a descriptor, or
// (nil, false, nil) when no pivot set is loaded for the code.
func (m *Manager) MetricSpacesTokens(code string, d feature.Descriptor) ([]string, bool, error) {
	if !m.loaded {
		return nil, false, fmt.Errorf("%w: not initialized", domain.ErrPreloadFailed)
	}
	ps, ok := m.pivots[code]
	if !ok {
		return nil, false, nil
	}
	tokens, err := ps.Posting(d)
	if err != nil {
		return nil, false, fmt.Errorf("posting for %q: %w", code, err)
	}
	return tokens, true, nil
}

func (m *Manager) loadBitSamplingFile() (*BitSampling, error) {
	return withGzipFile(filepath.Join(m.cfg.Dir, BitSamplingFileName), loadBitSampling)
}

func (m *Manager) loadPivotFile(code string, factory feature.Factory) (*PivotSet, error) {
	return withGzipFile(filepath.Join(m.cfg.Dir, PivotFileName(code)), func(r io.Reader) (*PivotSet, error) {
		return loadPivotSet(r, factory)
	})
}

func withGzipFile[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return zero, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return zero, fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	return parse(gz)
}
