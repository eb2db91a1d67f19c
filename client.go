// Package imgdex embeds the image retrieval engine as an SDK: extract
// features from images, persist rows in Redis, and score documents by
// visual distance, all in-process.
package imgdex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/imgdex/imgdex/internal/column"
	dbRedis "github.com/imgdex/imgdex/internal/db/redis"
	"github.com/imgdex/imgdex/internal/domain"
	"github.com/imgdex/imgdex/internal/extract"
	"github.com/imgdex/imgdex/internal/hashing"
	"github.com/imgdex/imgdex/internal/registry"
	rowsrepo "github.com/imgdex/imgdex/internal/repository/rows"
	"github.com/imgdex/imgdex/internal/scoring"
	ingestuc "github.com/imgdex/imgdex/internal/usecase/ingest"
	scoreuc "github.com/imgdex/imgdex/internal/usecase/score"
)

const defaultReadinessTimeout = 10 * time.Second

// Row is one indexed document: histogram payloads in base64 plus hash
// token fields, keyed by field name.
type Row struct {
	ID     string
	Fields map[string][]string
}

// Hit is one scored document. Lower score means more similar.
type Hit struct {
	ID    string
	Score float64
}

// ScoreRequest ranks indexed documents by distance to a reference vector.
type ScoreRequest struct {
	// Field is the histogram field to scan, e.g. "cl_hi".
	Field string
	// Reference is the raw serialized descriptor to compare against.
	Reference []byte
	// Aggregation folds multi-valued fields: "avg" (default), "min", "max".
	Aggregation string
	// Fallback is the distance for documents without a value.
	// Zero means the maximum distance.
	Fallback float64
	// Limit caps the result list. Zero returns every document.
	Limit int
}

// Client is the imgdex SDK entry point.
type Client struct {
	store     *dbRedis.Store
	reg       *registry.Registry
	hashes    *hashing.Manager
	cols      *column.Manager
	ingestSvc *ingestuc.Service
	scoreSvc  *scoreuc.Service
}

// New creates an imgdex Client, connects to Redis, and rebuilds the
// in-memory column snapshot from the persisted rows.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{segmentSize: 4096}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("imgdex: redis address required (use WithRedis)")
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.addrs,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("imgdex: create store: %w", err)
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("imgdex: store not ready: %w", err)
	}

	c, err := wireClient(ctx, store, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

func wireClient(ctx context.Context, store *dbRedis.Store, cfg *clientConfig) (*Client, error) {
	reg := registry.Default()

	// Hash reference data is needed for image extraction only; scoring and
	// precomputed-row import run without it.
	var hashes *hashing.Manager
	if cfg.resourceDir != "" {
		hashes = hashing.NewManager(reg, hashing.Config{
			Dir:        cfg.resourceDir,
			PivotCodes: cfg.pivotCodes,
		}, cfg.logger)
		if err := hashes.Init(); err != nil {
			return nil, fmt.Errorf("imgdex: load hash reference data: %w", err)
		}
	}

	cols := column.NewManager(cfg.segmentSize)
	rowRepo := rowsrepo.New(store)

	var builder *extract.RowBuilder
	if hashes != nil {
		builder = extract.NewRowBuilder(reg, hashes, extract.NewBuiltinExtractor(), cfg.resolvedFeatureCodes())
	}

	ingestSvc := ingestuc.New(rowRepo, cols, builder, reg, cfg.logger).
		WithMultiValuedFields(cfg.multiValued)
	scoreSvc := scoreuc.New(reg, cols, cfg.logger)

	if err := ingestSvc.Reload(ctx); err != nil {
		return nil, fmt.Errorf("imgdex: rebuild snapshot: %w", err)
	}

	return &Client{
		store:     store,
		reg:       reg,
		hashes:    hashes,
		cols:      cols,
		ingestSvc: ingestSvc,
		scoreSvc:  scoreSvc,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks store connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// IngestImage decodes the image, extracts the configured feature set, and
// indexes the row. Requires WithResourceDir.
func (c *Client) IngestImage(ctx context.Context, id string, r io.Reader) (Row, error) {
	if c.hashes == nil {
		return Row{}, errors.New("imgdex: image ingestion needs hash reference data (use WithResourceDir)")
	}
	row, err := c.ingestSvc.IngestImage(ctx, id, r)
	if err != nil {
		return Row{}, fmt.Errorf("ingest image: %w", err)
	}
	return Row{ID: row.ID, Fields: row.Fields}, nil
}

// IngestRows indexes precomputed rows (bulk import path).
func (c *Client) IngestRows(ctx context.Context, rows []Row) error {
	in := make([]domain.Row, len(rows))
	for i, r := range rows {
		in[i] = domain.Row{ID: r.ID, Fields: r.Fields}
	}
	if err := c.ingestSvc.IngestRows(ctx, in); err != nil {
		return fmt.Errorf("ingest rows: %w", err)
	}
	return nil
}

// Score ranks indexed documents by distance to the reference vector,
// closest first.
func (c *Client) Score(ctx context.Context, req ScoreRequest) ([]Hit, error) {
	agg := scoring.Avg
	if req.Aggregation != "" {
		var err error
		if agg, err = scoring.ParseAggregation(req.Aggregation); err != nil {
			return nil, fmt.Errorf("score: %w", err)
		}
	}
	fallback := req.Fallback
	if fallback == 0 {
		fallback = scoring.DefaultFallbackDistance
	}

	hits, err := c.scoreSvc.Score(ctx, scoreuc.Request{
		Field:       req.Field,
		Reference:   req.Reference,
		Aggregation: agg,
		Fallback:    fallback,
		Limit:       req.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	out := make([]Hit, len(hits))
	for i, h := range hits {
		out[i] = Hit{ID: h.ID, Score: h.Score}
	}
	return out, nil
}

// Reload rebuilds the column snapshot from the persisted rows.
func (c *Client) Reload(ctx context.Context) error {
	if err := c.ingestSvc.Reload(ctx); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

// NumDocs returns the document count visible to scoring.
func (c *Client) NumDocs() int {
	return c.cols.Docs()
}
