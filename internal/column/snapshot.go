package column

import (
	"sync"
	"sync/atomic"

	"github.com/imgdex/imgdex/internal/binval"
)

// Snapshot is an immutable ordered list of sealed segments. Scoring runs
// against one snapshot for its whole lifetime; ingest publishes new
// snapshots without disturbing readers.
type Snapshot struct {
	segments []Segment
}

// Segments returns the segment list. Callers must not mutate it.
func (s *Snapshot) Segments() []Segment { return s.segments }

// NumDocs returns the total document count across segments.
func (s *Snapshot) NumDocs() int {
	n := 0
	for _, seg := range s.segments {
		n += seg.MaxDoc()
	}
	return n
}

// Manager owns the live snapshot and the open segment under construction.
// Readers take lock-free snapshots; writers serialize on a mutex.
type Manager struct {
	mu      sync.Mutex
	open    *SegmentBuilder
	sealed  []Segment
	segSize int
	current atomic.Pointer[Snapshot]
}

// NewManager creates a snapshot manager. segSize bounds how many documents
// accumulate in the open segment before it is sealed automatically.
func NewManager(segSize int) *Manager {
	m := &Manager{open: NewSegmentBuilder(), segSize: segSize}
	m.current.Store(&Snapshot{})
	return m
}

// Current returns the live snapshot.
func (m *Manager) Current() *Snapshot {
	return m.current.Load()
}

// Docs returns the document count visible in the live snapshot.
func (m *Manager) Docs() int {
	return m.current.Load().NumDocs()
}

// Add buffers one document into the open segment. The document becomes
// visible to scoring after the next Publish (or automatic seal).
func (m *Manager) Add(externalID string, fields map[string][]binval.ColumnValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.open.AddDocument(externalID, fields); err != nil {
		return err
	}
	if m.segSize > 0 && m.open.NumDocs() >= m.segSize {
		m.sealLocked()
		m.publishLocked()
	}
	return nil
}

// Publish seals the open segment (if non-empty) and swaps in a new snapshot.
func (m *Manager) Publish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sealLocked()
	m.publishLocked()
}

// Reset discards all segments (used when rebuilding from the row store).
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = NewSegmentBuilder()
	m.sealed = nil
	m.publishLocked()
}

func (m *Manager) sealLocked() {
	if m.open.NumDocs() == 0 {
		return
	}
	m.sealed = append(m.sealed, m.open.Seal())
	m.open = NewSegmentBuilder()
}

func (m *Manager) publishLocked() {
	segs := make([]Segment, len(m.sealed))
	copy(segs, m.sealed)
	m.current.Store(&Snapshot{segments: segs})
}
