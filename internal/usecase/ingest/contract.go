package ingest

import (
	"context"

	"github.com/imgdex/imgdex/internal/binval"
	"github.com/imgdex/imgdex/internal/domain"
)

// RowStore persists extracted rows.
type RowStore interface {
	Put(ctx context.Context, row domain.Row) error
	PutMulti(ctx context.Context, rows []domain.Row) error
	Get(ctx context.Context, id string) (domain.Row, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// Columns receives histogram payloads for the scannable snapshot.
type Columns interface {
	Add(externalID string, fields map[string][]binval.ColumnValue) error
	Publish()
	Reset()
	Docs() int
}
