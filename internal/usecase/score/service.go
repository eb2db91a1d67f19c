// Package score ranks indexed documents by visual distance to a reference
// feature vector.
package score

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/imgdex/imgdex/internal/column"
	"github.com/imgdex/imgdex/internal/metrics"
	"github.com/imgdex/imgdex/internal/registry"
	"github.com/imgdex/imgdex/internal/scoring"
)

// Request carries one scoring query. Reference is the already-decoded
// byte vector.
type Request struct {
	Field       string
	Reference   []byte
	Aggregation scoring.Aggregation
	Fallback    float64
	Limit       int
}

// Hit is one scored document. Lower score means more similar.
type Hit struct {
	ID    string
	Score float64
}

// Service evaluates scoring requests against the live snapshot.
type Service struct {
	reg    *registry.Registry
	snaps  SnapshotSource
	logger *zap.Logger
}

// New creates a scoring service.
func New(reg *registry.Registry, snaps SnapshotSource, logger *zap.Logger) *Service {
	return &Service{reg: reg, snaps: snaps, logger: logger}
}

// Score builds the scoring plan once and drives one scorer per segment.
// Segments evaluate in parallel; each scorer owns its state, so no
// synchronization is needed beyond collecting results.
func (s *Service) Score(ctx context.Context, req Request) ([]Hit, error) {
	start := time.Now()

	vs, err := scoring.NewValueSource(s.reg, req.Field, req.Reference, req.Aggregation, req.Fallback)
	if err != nil {
		metrics.ScoreRequestsTotal.WithLabelValues(req.Field, string(req.Aggregation), "error").Inc()
		return nil, err
	}

	snap := s.snaps.Current()
	segments := snap.Segments()

	segHits := make([][]Hit, len(segments))
	segErrs := make([]error, len(segments))

	var wg sync.WaitGroup
	for i, seg := range segments {
		wg.Add(1)
		go func(i int, seg column.Segment) {
			defer wg.Done()
			segHits[i], segErrs[i] = scoreSegment(ctx, vs, seg)
		}(i, seg)
	}
	wg.Wait()

	var hits []Hit
	for i := range segments {
		if segErrs[i] != nil {
			metrics.ScoreRequestsTotal.WithLabelValues(req.Field, string(req.Aggregation), "error").Inc()
			return nil, fmt.Errorf("segment %d: %w", i, segErrs[i])
		}
		hits = append(hits, segHits[i]...)
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score < hits[b].Score
		}
		return hits[a].ID < hits[b].ID
	})
	if req.Limit > 0 && len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}

	metrics.ScoreRequestsTotal.WithLabelValues(req.Field, string(req.Aggregation), "ok").Inc()
	metrics.ScoredDocumentsTotal.WithLabelValues(req.Field).Add(float64(snap.NumDocs()))
	metrics.ScoreDuration.WithLabelValues(req.Field).Observe(time.Since(start).Seconds())

	s.logger.Debug("scored snapshot",
		zap.String("plan", vs.Description()),
		zap.Int("segments", len(segments)),
		zap.Int("documents", snap.NumDocs()),
		zap.Duration("took", time.Since(start)),
	)
	return hits, nil
}

// scoreSegment walks one segment in ascending doc order.
func scoreSegment(ctx context.Context, vs *scoring.ValueSource, seg column.Segment) ([]Hit, error) {
	scorer, err := vs.Scorer(seg)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, seg.MaxDoc())
	for doc := 0; doc < seg.MaxDoc(); doc++ {
		if doc%1024 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		sc, err := scorer.Score(doc)
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{ID: seg.ExternalID(doc), Score: sc})
	}
	return hits, nil
}
