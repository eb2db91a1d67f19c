package ingest

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/imgdex/imgdex/internal/binval"
	"github.com/imgdex/imgdex/internal/domain"
	"github.com/imgdex/imgdex/internal/extract"
	"github.com/imgdex/imgdex/internal/hashing"
	"github.com/imgdex/imgdex/internal/registry"
)

// --- Mocks ---

type mockRowStore struct {
	rows     map[string]domain.Row
	putCalls int
	listErr  error
	getErr   error
	putErr   error
}

func newMockRowStore() *mockRowStore {
	return &mockRowStore{rows: make(map[string]domain.Row)}
}

func (m *mockRowStore) Put(_ context.Context, row domain.Row) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.putCalls++
	m.rows[row.ID] = row
	return nil
}

func (m *mockRowStore) PutMulti(ctx context.Context, rows []domain.Row) error {
	for _, r := range rows {
		if err := m.Put(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockRowStore) Get(_ context.Context, id string) (domain.Row, error) {
	if m.getErr != nil {
		return domain.Row{}, m.getErr
	}
	row, ok := m.rows[id]
	if !ok {
		return domain.Row{}, domain.ErrRowNotFound
	}
	return row, nil
}

func (m *mockRowStore) ListIDs(_ context.Context) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	ids := make([]string, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	return ids, nil
}

type mockColumns struct {
	added     []string
	fields    []map[string][]binval.ColumnValue
	published int
	resets    int
	addErr    error
}

func (m *mockColumns) Add(externalID string, fields map[string][]binval.ColumnValue) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.added = append(m.added, externalID)
	m.fields = append(m.fields, fields)
	return nil
}

func (m *mockColumns) Publish() { m.published++ }
func (m *mockColumns) Reset()   { m.resets++ }
func (m *mockColumns) Docs() int {
	return len(m.added)
}

// --- Helpers ---

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func newService(t *testing.T, store *mockRowStore, cols *mockColumns) *Service {
	t.Helper()
	return New(store, cols, nil, registry.Default(), zap.NewNop())
}

// --- IngestRows ---

func TestIngestRows_StoresAndIndexes(t *testing.T) {
	store := newMockRowStore()
	cols := &mockColumns{}
	svc := newService(t, store, cols)

	rows := []domain.Row{
		{ID: "a", Fields: map[string][]string{
			"cl_hi": {b64([]byte{1, 2})},
			"cl_ha": {"17", "42"},
		}},
		{ID: "b", Fields: map[string][]string{
			"cl_hi": {b64([]byte{3, 4})},
		}},
	}
	if err := svc.IngestRows(context.Background(), rows); err != nil {
		t.Fatalf("IngestRows: %v", err)
	}

	if len(store.rows) != 2 {
		t.Errorf("stored %d rows, want 2", len(store.rows))
	}
	if len(cols.added) != 2 {
		t.Fatalf("indexed %d docs, want 2", len(cols.added))
	}
	if cols.published != 1 {
		t.Errorf("published %d times, want 1", cols.published)
	}

	// Only histogram fields reach the columns; hash tokens stay in the store.
	fields := cols.fields[0]
	if _, ok := fields["cl_hi"]; !ok {
		t.Error("cl_hi not indexed")
	}
	if _, ok := fields["cl_ha"]; ok {
		t.Error("cl_ha leaked into the column snapshot")
	}
}

func TestIngestRows_RejectsBeforeStoring(t *testing.T) {
	store := newMockRowStore()
	cols := &mockColumns{}
	svc := newService(t, store, cols)

	tests := []struct {
		name string
		row  domain.Row
		want error
	}{
		{"missing id", domain.Row{Fields: map[string][]string{"cl_hi": {b64([]byte{1})}}}, domain.ErrInvalidFieldName},
		{"unregistered field", domain.Row{ID: "a", Fields: map[string][]string{"zz_hi": {b64([]byte{1})}}}, domain.ErrNotRegistered},
		{"bad base64", domain.Row{ID: "a", Fields: map[string][]string{"cl_hi": {"!!!"}}}, domain.ErrMalformedBase64},
		{"two values on single-valued", domain.Row{ID: "a", Fields: map[string][]string{
			"cl_hi": {b64([]byte{1}), b64([]byte{2})},
		}}, domain.ErrSchemaConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.IngestRows(context.Background(), []domain.Row{tt.row})
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if len(store.rows) != 0 {
				t.Error("row stored despite validation failure")
			}
			if len(cols.added) != 0 {
				t.Error("row indexed despite validation failure")
			}
		})
	}
}

func TestIngestRows_MultiValuedField(t *testing.T) {
	store := newMockRowStore()
	cols := &mockColumns{}
	svc := newService(t, store, cols).WithMultiValuedFields([]string{"cl_hi"})

	row := domain.Row{ID: "a", Fields: map[string][]string{
		"cl_hi": {b64([]byte{1, 2}), b64([]byte{3, 4})},
	}}
	if err := svc.IngestRows(context.Background(), []domain.Row{row}); err != nil {
		t.Fatalf("IngestRows: %v", err)
	}

	vals := cols.fields[0]["cl_hi"]
	if len(vals) != 2 {
		t.Fatalf("indexed %d values, want 2", len(vals))
	}
	for _, v := range vals {
		if !v.MultiValued() {
			t.Error("value not marked multi-valued")
		}
	}
}

// --- Reload ---

func TestReload_RebuildsSnapshot(t *testing.T) {
	store := newMockRowStore()
	store.rows["a"] = domain.Row{ID: "a", Fields: map[string][]string{"cl_hi": {b64([]byte{1, 2})}}}
	store.rows["b"] = domain.Row{ID: "b", Fields: map[string][]string{"cl_hi": {b64([]byte{3, 4})}}}
	cols := &mockColumns{}
	svc := newService(t, store, cols)

	if err := svc.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if cols.resets != 1 {
		t.Errorf("resets = %d, want 1", cols.resets)
	}
	if len(cols.added) != 2 {
		t.Errorf("indexed %d docs, want 2", len(cols.added))
	}
	if cols.published != 1 {
		t.Errorf("published %d times, want 1", cols.published)
	}
}

func TestReload_SkipsCorruptRows(t *testing.T) {
	store := newMockRowStore()
	store.rows["good"] = domain.Row{ID: "good", Fields: map[string][]string{"cl_hi": {b64([]byte{1})}}}
	store.rows["bad"] = domain.Row{ID: "bad", Fields: map[string][]string{"cl_hi": {"!!!"}}}
	cols := &mockColumns{}
	svc := newService(t, store, cols)

	if err := svc.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if len(cols.added) != 1 || cols.added[0] != "good" {
		t.Errorf("indexed %v, want only the good row", cols.added)
	}
}

func TestReload_ListError(t *testing.T) {
	store := newMockRowStore()
	store.listErr = errors.New("scan failed")
	svc := newService(t, store, &mockColumns{})

	if err := svc.Reload(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

// --- IngestImage ---

func testHashManager(t *testing.T) *hashing.Manager {
	t.Helper()
	dir := t.TempDir()

	var raw bytes.Buffer
	for _, v := range []int32{1, 1, 4} {
		if err := binary.Write(&raw, binary.LittleEndian, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := binary.Write(&raw, binary.LittleEndian, int32(0)); err != nil {
		t.Fatal(err)
	}
	if err := binary.Write(&raw, binary.LittleEndian, float64(1)); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, hashing.BitSamplingFileName)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write(raw.Bytes()); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	m := hashing.NewManager(registry.Default(), hashing.Config{Dir: dir}, zap.NewNop())
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	return m
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestIngestImage_EndToEnd(t *testing.T) {
	store := newMockRowStore()
	cols := &mockColumns{}
	builder := extract.NewRowBuilder(
		registry.Default(), testHashManager(t), extract.NewBuiltinExtractor(), []string{"cl"})
	svc := New(store, cols, builder, registry.Default(), zap.NewNop())

	row, err := svc.IngestImage(context.Background(), "img-1", bytes.NewReader(pngBytes(t)))
	if err != nil {
		t.Fatalf("IngestImage: %v", err)
	}
	if row.ID != "img-1" {
		t.Errorf("ID = %q", row.ID)
	}
	if _, ok := row.Fields["cl_hi"]; !ok {
		t.Error("cl_hi missing from extracted row")
	}
	if _, ok := store.rows["img-1"]; !ok {
		t.Error("row not persisted")
	}
	if len(cols.added) != 1 {
		t.Errorf("indexed %d docs, want 1", len(cols.added))
	}
}

func TestIngestImage_BrokenImage(t *testing.T) {
	store := newMockRowStore()
	cols := &mockColumns{}
	builder := extract.NewRowBuilder(
		registry.Default(), testHashManager(t), extract.NewBuiltinExtractor(), []string{"cl"})
	svc := New(store, cols, builder, registry.Default(), zap.NewNop())

	_, err := svc.IngestImage(context.Background(), "img-1", bytes.NewReader([]byte("garbage")))
	if !errors.Is(err, domain.ErrImageDecode) {
		t.Fatalf("got %v, want ErrImageDecode", err)
	}
	if len(store.rows) != 0 {
		t.Error("broken image persisted a row")
	}
}
