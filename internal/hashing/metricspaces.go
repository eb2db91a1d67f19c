package hashing

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/imgdex/imgdex/internal/binval"
	"github.com/imgdex/imgdex/internal/domain/feature"
)

// PivotSet holds the metric-space reference pivots for one feature code.
// A vector's approximate position is encoded as the identifiers of its
// nearest pivots, in distance order. Read-only after load.
type PivotSet struct {
	code          string
	pivots        []feature.Descriptor
	postingLength int
}

// loadPivotSet parses a pivot set file: a header line
// "msd <code> <count> <postingLength>" followed by count base64-encoded
// pivot payloads, one per line. Payloads are validated against the
// descriptor factory of the code they belong to.
func loadPivotSet(r io.Reader, factory feature.Factory) (*PivotSet, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !sc.Scan() {
		return nil, fmt.Errorf("missing header line")
	}
	var code string
	var count, postingLength int
	header := sc.Text()
	if _, err := fmt.Sscanf(header, "msd %s %d %d", &code, &count, &postingLength); err != nil {
		return nil, fmt.Errorf("malformed header %q: %w", header, err)
	}
	if count <= 0 || postingLength <= 0 || postingLength > count {
		return nil, fmt.Errorf("implausible header %q", header)
	}

	ps := &PivotSet{code: code, postingLength: postingLength}
	for i := 0; i < count; i++ {
		if !sc.Scan() {
			return nil, fmt.Errorf("expected %d pivots, got %d", count, i)
		}
		raw, err := binval.DecodeExternal(strings.TrimSpace(sc.Text()))
		if err != nil {
			return nil, fmt.Errorf("pivot %d: %w", i, err)
		}
		d := factory()
		if err := d.SetBytes(raw); err != nil {
			return nil, fmt.Errorf("pivot %d: %w", i, err)
		}
		ps.pivots = append(ps.pivots, d)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read pivots: %w", err)
	}
	return ps, nil
}

// Code returns the feature code this pivot set indexes.
func (p *PivotSet) Code() string { return p.code }

// Posting encodes a descriptor as its nearest pivot tokens, nearest first.
func (p *PivotSet) Posting(d feature.Descriptor) ([]string, error) {
	type ranked struct {
		idx  int
		dist float64
	}
	rs := make([]ranked, 0, len(p.pivots))
	for i, pivot := range p.pivots {
		dist, err := d.Distance(pivot)
		if err != nil {
			return nil, fmt.Errorf("distance to pivot %d: %w", i, err)
		}
		rs = append(rs, ranked{idx: i, dist: dist})
	}
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].dist != rs[j].dist {
			return rs[i].dist < rs[j].dist
		}
		return rs[i].idx < rs[j].idx
	})

	tokens := make([]string, 0, p.postingLength)
	for _, r := range rs[:p.postingLength] {
		tokens = append(tokens, fmt.Sprintf("R%06d", r.idx))
	}
	return tokens, nil
}
