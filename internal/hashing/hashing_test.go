package hashing

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/imgdex/imgdex/internal/domain"
	"github.com/imgdex/imgdex/internal/domain/feature"
	"github.com/imgdex/imgdex/internal/registry"
)

// writeBitSampling renders the binary bit-sampling format: header
// (numHashes, bits, dim) then (index, cut) records.
func writeBitSampling(t *testing.T, numHashes, bits, dim int, indices [][]int32, cuts [][]float64) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, v := range []int32{int32(numHashes), int32(bits), int32(dim)} {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < numHashes; i++ {
		for j := 0; j < bits; j++ {
			if err := binary.Write(&buf, binary.LittleEndian, indices[i][j]); err != nil {
				t.Fatal(err)
			}
			if err := binary.Write(&buf, binary.LittleEndian, cuts[i][j]); err != nil {
				t.Fatal(err)
			}
		}
	}
	return buf.Bytes()
}

func gzipToFile(t *testing.T, path string, raw []byte) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	if _, err := gz.Write(raw); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
}

func defaultBitSamplingBytes(t *testing.T) []byte {
	// 2 hash bundles, 2 bits each, over 3 dimensions. Cut 0.5 everywhere.
	indices := [][]int32{{0, 1}, {1, 2}}
	cuts := [][]float64{{0.5, 0.5}, {0.5, 0.5}}
	return writeBitSampling(t, 2, 2, 3, indices, cuts)
}

func TestLoadBitSampling_Hashes(t *testing.T) {
	bs, err := loadBitSampling(bytes.NewReader(defaultBitSamplingBytes(t)))
	if err != nil {
		t.Fatal(err)
	}
	if bs.NumHashes() != 2 {
		t.Fatalf("NumHashes = %d, want 2", bs.NumHashes())
	}

	// vec[0]>cut, vec[1]<cut, vec[2]>cut.
	hashes := bs.Hashes([]float64{1, 0, 1})
	if hashes[0] != 2 { // bits: dim0=1, dim1=0
		t.Errorf("hash[0] = %d, want 2", hashes[0])
	}
	if hashes[1] != 1 { // bits: dim1=0, dim2=1
		t.Errorf("hash[1] = %d, want 1", hashes[1])
	}

	// Missing dimensions read as zero.
	hashes = bs.Hashes([]float64{1})
	if hashes[0] != 2 || hashes[1] != 0 {
		t.Errorf("short vector hashes = %v, want [2 0]", hashes)
	}
}

func TestLoadBitSampling_RejectsCorrupt(t *testing.T) {
	// Implausible header.
	raw := writeBitSampling(t, 1, 1, 1, [][]int32{{0}}, [][]float64{{0}})
	bad := make([]byte, len(raw))
	copy(bad, raw)
	binary.LittleEndian.PutUint32(bad[0:], uint32(maxHashes+1))
	if _, err := loadBitSampling(bytes.NewReader(bad)); err == nil {
		t.Error("oversized hash count accepted")
	}

	// Truncated body.
	if _, err := loadBitSampling(bytes.NewReader(raw[:len(raw)-4])); err == nil {
		t.Error("truncated file accepted")
	}

	// Index out of range.
	copy(bad, raw)
	binary.LittleEndian.PutUint32(bad[12:], uint32(5))
	if _, err := loadBitSampling(bytes.NewReader(bad)); err == nil {
		t.Error("out-of-range index accepted")
	}
}

func pivotSetText(payloads ...[]byte) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "msd cl %d %d\n", len(payloads), 2)
	for _, p := range payloads {
		sb.WriteString(base64.StdEncoding.EncodeToString(p))
		sb.WriteString("\n")
	}
	return sb.String()
}

func TestLoadPivotSet_Posting(t *testing.T) {
	factory := feature.NewByteHistogram("ColorLayout")
	// Three pivots at L1 distances 0, 2 and 4 from {5, 5}.
	text := pivotSetText([]byte{5, 5}, []byte{5, 7}, []byte{5, 1})

	ps, err := loadPivotSet(strings.NewReader(text), factory)
	if err != nil {
		t.Fatal(err)
	}
	if ps.Code() != "cl" {
		t.Errorf("Code = %q, want cl", ps.Code())
	}

	query := factory()
	if err := query.SetBytes([]byte{5, 5}); err != nil {
		t.Fatal(err)
	}
	tokens, err := ps.Posting(query)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"R000000", "R000001"}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, tokens[i], want[i])
		}
	}
}

func TestLoadPivotSet_TieBreaksByIndex(t *testing.T) {
	factory := feature.NewByteHistogram("ColorLayout")
	// Both pivots equidistant from the query.
	text := pivotSetText([]byte{4, 5}, []byte{6, 5})

	ps, err := loadPivotSet(strings.NewReader(text), factory)
	if err != nil {
		t.Fatal(err)
	}
	query := factory()
	if err := query.SetBytes([]byte{5, 5}); err != nil {
		t.Fatal(err)
	}
	tokens, err := ps.Posting(query)
	if err != nil {
		t.Fatal(err)
	}
	if tokens[0] != "R000000" || tokens[1] != "R000001" {
		t.Errorf("tie break by index failed: %v", tokens)
	}
}

func TestLoadPivotSet_Malformed(t *testing.T) {
	factory := feature.NewByteHistogram("ColorLayout")
	cases := []string{
		"",                        // no header
		"not a header\nAQI=\n",    // bad header
		"msd cl 2 3\nAQI=\nAQI=",  // posting length > count
		"msd cl 2 1\nAQI=\n",      // pivot count short
		"msd cl 1 1\n!!!bad64\n",  // bad base64
		"msd cl 1 1\n\n",          // empty payload
	}
	for _, text := range cases {
		if _, err := loadPivotSet(strings.NewReader(text), factory); err == nil {
			t.Errorf("accepted malformed pivot file %q", text)
		}
	}
}

func TestManager_InitAndTokens(t *testing.T) {
	dir := t.TempDir()
	gzipToFile(t, filepath.Join(dir, BitSamplingFileName), defaultBitSamplingBytes(t))
	gzipToFile(t, filepath.Join(dir, PivotFileName("cl")),
		[]byte(pivotSetText([]byte{5, 5}, []byte{5, 7}, []byte{5, 1})))

	m := NewManager(registry.Default(), Config{Dir: dir, PivotCodes: []string{"cl"}}, zap.NewNop())
	if m.Ready() {
		t.Fatal("Ready before Init")
	}
	if err := m.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !m.Ready() {
		t.Fatal("not Ready after Init")
	}
	// Idempotent.
	if err := m.Init(); err != nil {
		t.Fatalf("second Init: %v", err)
	}

	d := feature.NewByteHistogram("ColorLayout")()
	if err := d.SetBytes([]byte{255, 0, 255}); err != nil {
		t.Fatal(err)
	}

	tokens, err := m.HashTokens(d)
	if err != nil {
		t.Fatalf("HashTokens: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("got %d hash tokens, want 2", len(tokens))
	}
	if tokens[0] != "2" || tokens[1] != "1" {
		t.Errorf("hash tokens = %v, want [2 1]", tokens)
	}

	d2 := feature.NewByteHistogram("ColorLayout")()
	if err := d2.SetBytes([]byte{5, 5}); err != nil {
		t.Fatal(err)
	}
	ms, ok, err := m.MetricSpacesTokens("cl", d2)
	if err != nil {
		t.Fatalf("MetricSpacesTokens: %v", err)
	}
	if !ok {
		t.Fatal("pivot set for cl not loaded")
	}
	if len(ms) != 2 || ms[0] != "R000000" {
		t.Errorf("posting tokens = %v", ms)
	}

	// Codes without a pivot file report absence, not an error.
	_, ok, err = m.MetricSpacesTokens("eh", d2)
	if err != nil || ok {
		t.Errorf("MetricSpacesTokens(eh) = ok=%v err=%v, want absent", ok, err)
	}
}

func TestManager_InitFailures(t *testing.T) {
	logger := zap.NewNop()

	// Missing bit-sampling file.
	m := NewManager(registry.Default(), Config{Dir: t.TempDir()}, logger)
	if err := m.Init(); !errors.Is(err, domain.ErrPreloadFailed) {
		t.Fatalf("missing resources: got %v, want ErrPreloadFailed", err)
	}
	if m.Ready() {
		t.Error("Ready after failed Init")
	}

	// Not gzip.
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, BitSamplingFileName), []byte("plain"), 0o600); err != nil {
		t.Fatal(err)
	}
	m = NewManager(registry.Default(), Config{Dir: dir}, logger)
	if err := m.Init(); !errors.Is(err, domain.ErrPreloadFailed) {
		t.Fatalf("non-gzip resource: got %v, want ErrPreloadFailed", err)
	}

	// Pivot set for an unregistered code.
	dir = t.TempDir()
	gzipToFile(t, filepath.Join(dir, BitSamplingFileName), defaultBitSamplingBytes(t))
	m = NewManager(registry.Default(), Config{Dir: dir, PivotCodes: []string{"zz"}}, logger)
	if err := m.Init(); !errors.Is(err, domain.ErrPreloadFailed) {
		t.Fatalf("unregistered pivot code: got %v, want ErrPreloadFailed", err)
	}

	// Missing pivot file for a registered code.
	m = NewManager(registry.Default(), Config{Dir: dir, PivotCodes: []string{"cl"}}, logger)
	if err := m.Init(); !errors.Is(err, domain.ErrPreloadFailed) {
		t.Fatalf("missing pivot file: got %v, want ErrPreloadFailed", err)
	}
}

func TestManager_TokensBeforeInit(t *testing.T) {
	m := NewManager(registry.Default(), Config{Dir: t.TempDir()}, zap.NewNop())
	d := feature.NewByteHistogram("ColorLayout")()
	if err := d.SetBytes([]byte{1}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.HashTokens(d); !errors.Is(err, domain.ErrPreloadFailed) {
		t.Errorf("HashTokens before Init: got %v", err)
	}
	if _, _, err := m.MetricSpacesTokens("cl", d); !errors.Is(err, domain.ErrPreloadFailed) {
		t.Errorf("MetricSpacesTokens before Init: got %v", err)
	}
}
