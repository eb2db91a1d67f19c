// Package rows persists extracted feature rows in the hash store.
package rows

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/imgdex/imgdex/internal/db"
	"github.com/imgdex/imgdex/internal/domain"
)

const keyPrefix = "imgdex:row:"

// valueSeparator joins multi-valued field entries inside one hash field.
// The unit separator never occurs in base64 payloads or hash tokens.
const valueSeparator = "\x1f"

// store is the consumer interface for row persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo stores rows as one hash per document.
type Repo struct {
	store store
}

// New creates a rows repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Put stores one row.
func (r *Repo) Put(ctx context.Context, row domain.Row) error {
	if err := r.store.HSet(ctx, keyPrefix+row.ID, flatten(row)); err != nil {
		return fmt.Errorf("put row %s: %w", row.ID, err)
	}
	return nil
}

// PutMulti stores multiple rows in one pipelined round-trip.
func (r *Repo) PutMulti(ctx context.Context, rowsIn []domain.Row) error {
	if len(rowsIn) == 0 {
		return nil
	}
	items := make([]db.HashSetItem, len(rowsIn))
	for i, row := range rowsIn {
		items[i] = db.HashSetItem{Key: keyPrefix + row.ID, Fields: flatten(row)}
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("put %d rows: %w", len(rowsIn), err)
	}
	return nil
}

// Get fetches one row by id.
func (r *Repo) Get(ctx context.Context, id string) (domain.Row, error) {
	m, err := r.store.HGetAll(ctx, keyPrefix+id)
	if err != nil {
		return domain.Row{}, fmt.Errorf("get row %s: %w", id, err)
	}
	if len(m) == 0 {
		return domain.Row{}, fmt.Errorf("%w: %s", domain.ErrRowNotFound, id)
	}
	return unflatten(id, m), nil
}

// Delete removes one row.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if err := r.store.Del(ctx, keyPrefix+id); err != nil {
		return fmt.Errorf("delete row %s: %w", id, err)
	}
	return nil
}

// ListIDs returns all stored row ids in sorted order.
func (r *Repo) ListIDs(ctx context.Context) ([]string, error) {
	keys, err := r.store.Scan(ctx, keyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, keyPrefix))
	}
	sort.Strings(ids)
	return ids, nil
}

func flatten(row domain.Row) map[string]string {
	fields := make(map[string]string, len(row.Fields))
	for name, vals := range row.Fields {
		fields[name] = strings.Join(vals, valueSeparator)
	}
	return fields
}

func unflatten(id string, m map[string]string) domain.Row {
	row := domain.Row{ID: id, Fields: make(map[string][]string, len(m))}
	for name, joined := range m {
		row.Fields[name] = strings.Split(joined, valueSeparator)
	}
	return row
}
