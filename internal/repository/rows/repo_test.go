package rows

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/imgdex/imgdex/internal/db"
	"github.com/imgdex/imgdex/internal/domain"
)

// fakeStore is an in-memory hash store.
type fakeStore struct {
	data map[string]map[string]string
	err  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]map[string]string)}
}

func (f *fakeStore) HSet(_ context.Context, key string, fields map[string]string) error {
	if f.err != nil {
		return f.err
	}
	m := f.data[key]
	if m == nil {
		m = make(map[string]string)
		f.data[key] = m
	}
	for k, v := range fields {
		m[k] = v
	}
	return nil
}

func (f *fakeStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	for _, it := range items {
		if err := f.HSet(ctx, it.Key, it.Fields); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]string, len(f.data[key]))
	for k, v := range f.data[key] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) Del(_ context.Context, key string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.data, key)
	return nil
}

func (f *fakeStore) Scan(_ context.Context, pattern string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func TestPutGet_RoundTrip(t *testing.T) {
	repo := New(newFakeStore())
	ctx := context.Background()

	row := domain.Row{ID: "img-1", Fields: map[string][]string{
		"cl_hi": {"AQI="},
		"cl_ha": {"17", "42", "99"},
	}}
	if err := repo.Put(ctx, row); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := repo.Get(ctx, "img-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "img-1" {
		t.Errorf("ID = %q", got.ID)
	}
	if len(got.Fields["cl_hi"]) != 1 || got.Fields["cl_hi"][0] != "AQI=" {
		t.Errorf("cl_hi = %v", got.Fields["cl_hi"])
	}
	// Multi-valued fields survive the flatten/unflatten cycle intact.
	ha := got.Fields["cl_ha"]
	if len(ha) != 3 || ha[0] != "17" || ha[1] != "42" || ha[2] != "99" {
		t.Errorf("cl_ha = %v", ha)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := New(newFakeStore())
	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrRowNotFound) {
		t.Fatalf("got %v, want ErrRowNotFound", err)
	}
}

func TestPutMulti_ListIDs(t *testing.T) {
	repo := New(newFakeStore())
	ctx := context.Background()

	rows := []domain.Row{
		{ID: "b", Fields: map[string][]string{"cl_hi": {"AQI="}}},
		{ID: "a", Fields: map[string][]string{"cl_hi": {"AQI="}}},
		{ID: "c", Fields: map[string][]string{"cl_hi": {"AQI="}}},
	}
	if err := repo.PutMulti(ctx, rows); err != nil {
		t.Fatalf("PutMulti: %v", err)
	}
	if err := repo.PutMulti(ctx, nil); err != nil {
		t.Fatalf("PutMulti(nil): %v", err)
	}

	ids, err := repo.ListIDs(ctx)
	if err != nil {
		t.Fatalf("ListIDs: %v", err)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Errorf("ids = %v, want sorted [a b c]", ids)
	}
}

func TestDelete(t *testing.T) {
	store := newFakeStore()
	repo := New(store)
	ctx := context.Background()

	if err := repo.Put(ctx, domain.Row{ID: "x", Fields: map[string][]string{"cl_hi": {"AQI="}}}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Delete(ctx, "x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(ctx, "x"); !errors.Is(err, domain.ErrRowNotFound) {
		t.Fatalf("after delete: got %v, want ErrRowNotFound", err)
	}
}

func TestStoreErrorsPropagate(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection refused")
	repo := New(store)
	ctx := context.Background()

	if err := repo.Put(ctx, domain.Row{ID: "x"}); err == nil {
		t.Error("Put should propagate store error")
	}
	if _, err := repo.Get(ctx, "x"); err == nil {
		t.Error("Get should propagate store error")
	}
	if _, err := repo.ListIDs(ctx); err == nil {
		t.Error("ListIDs should propagate store error")
	}
}
