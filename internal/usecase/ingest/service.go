// Package ingest turns images and precomputed rows into persisted,
// scannable index state.
package ingest

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/imgdex/imgdex/internal/binval"
	"github.com/imgdex/imgdex/internal/domain"
	"github.com/imgdex/imgdex/internal/extract"
	"github.com/imgdex/imgdex/internal/metrics"
	"github.com/imgdex/imgdex/internal/registry"
)

// Service runs extraction, persists rows, and feeds the column snapshot.
type Service struct {
	rows        RowStore
	cols        Columns
	builder     *extract.RowBuilder
	reg         *registry.Registry
	multiValued map[string]bool
	logger      *zap.Logger
}

// New creates an ingest service.
func New(rows RowStore, cols Columns, builder *extract.RowBuilder, reg *registry.Registry, logger *zap.Logger) *Service {
	return &Service{
		rows:        rows,
		cols:        cols,
		builder:     builder,
		reg:         reg,
		multiValued: make(map[string]bool),
		logger:      logger,
	}
}

// WithMultiValuedFields marks histogram fields that hold one vector per
// sub-image instead of a single whole-image vector.
func (s *Service) WithMultiValuedFields(fields []string) *Service {
	for _, f := range fields {
		s.multiValued[f] = true
	}
	return s
}

// IngestImage decodes the image, extracts the registered feature set, and
// indexes the resulting row. A broken image fails the call; nothing is
// skipped silently.
func (s *Service) IngestImage(ctx context.Context, id string, r io.Reader) (domain.Row, error) {
	img, err := extract.DecodeImage(r)
	if err != nil {
		metrics.ExtractionsTotal.WithLabelValues("error").Inc()
		return domain.Row{}, err
	}

	row, err := s.builder.BuildRow(id, img)
	if err != nil {
		metrics.ExtractionsTotal.WithLabelValues("error").Inc()
		return domain.Row{}, err
	}
	metrics.ExtractionsTotal.WithLabelValues("ok").Inc()

	if err := s.indexRows(ctx, []domain.Row{row}); err != nil {
		return domain.Row{}, err
	}
	return row, nil
}

// IngestRows indexes precomputed rows (bulk import path). Histogram payloads
// are validated eagerly so a malformed import fails before anything is
// stored.
func (s *Service) IngestRows(ctx context.Context, rowsIn []domain.Row) error {
	for _, row := range rowsIn {
		if row.ID == "" {
			return fmt.Errorf("%w: row without id", domain.ErrInvalidFieldName)
		}
		if _, err := s.columnValues(row); err != nil {
			return fmt.Errorf("row %s: %w", row.ID, err)
		}
	}
	return s.indexRows(ctx, rowsIn)
}

// Reload rebuilds the snapshot from the row store, e.g. at startup.
func (s *Service) Reload(ctx context.Context) error {
	ids, err := s.rows.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}

	s.cols.Reset()
	for _, id := range ids {
		row, err := s.rows.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("reload %s: %w", id, err)
		}
		vals, err := s.columnValues(row)
		if err != nil {
			s.logger.Warn("skipping corrupt stored row", zap.String("id", id), zap.Error(err))
			continue
		}
		if err := s.cols.Add(id, vals); err != nil {
			return fmt.Errorf("reload %s: %w", id, err)
		}
	}
	s.cols.Publish()
	metrics.SnapshotDocuments.Set(float64(s.cols.Docs()))

	s.logger.Info("snapshot rebuilt", zap.Int("documents", len(ids)))
	return nil
}

func (s *Service) indexRows(ctx context.Context, rowsIn []domain.Row) error {
	if err := s.rows.PutMulti(ctx, rowsIn); err != nil {
		return err
	}
	for _, row := range rowsIn {
		vals, err := s.columnValues(row)
		if err != nil {
			return fmt.Errorf("row %s: %w", row.ID, err)
		}
		if err := s.cols.Add(row.ID, vals); err != nil {
			return fmt.Errorf("row %s: %w", row.ID, err)
		}
	}
	s.cols.Publish()
	metrics.SnapshotDocuments.Set(float64(s.cols.Docs()))
	return nil
}

// columnValues picks the histogram fields out of a row and decodes them
// into column payloads. Hash token fields stay in the row store only; the
// column snapshot serves distance scanning, not token lookup.
func (s *Service) columnValues(row domain.Row) (map[string][]binval.ColumnValue, error) {
	out := make(map[string][]binval.ColumnValue)
	for field, vals := range row.Fields {
		if !strings.HasSuffix(field, registry.FeatureFieldPostfix) {
			continue
		}
		if _, err := s.reg.ByFeatureField(field); err != nil {
			return nil, err
		}
		multi := s.multiValued[field]
		if !multi && len(vals) > 1 {
			return nil, fmt.Errorf("%w: field %q has %d values but is single-valued",
				domain.ErrSchemaConfig, field, len(vals))
		}
		cvs := make([]binval.ColumnValue, 0, len(vals))
		for _, v := range vals {
			raw, err := binval.DecodeExternal(v)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", field, err)
			}
			cvs = append(cvs, binval.ToColumnValue(raw, multi))
		}
		out[field] = cvs
	}
	return out, nil
}
