// Package chi exposes the scoring and ingest API over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/imgdex/imgdex/internal/binval"
	"github.com/imgdex/imgdex/internal/domain"
	"github.com/imgdex/imgdex/internal/registry"
	"github.com/imgdex/imgdex/internal/scoring"
	healthuc "github.com/imgdex/imgdex/internal/usecase/health"
	ingestuc "github.com/imgdex/imgdex/internal/usecase/ingest"
	scoreuc "github.com/imgdex/imgdex/internal/usecase/score"
)

// Defaults applied to scoring requests that omit optional parameters.
type Defaults struct {
	Aggregation scoring.Aggregation
	Fallback    float64
	Limit       int
	MaxLimit    int
}

// Server routes API requests to the use case services.
type Server struct {
	score    *scoreuc.Service
	ingest   *ingestuc.Service
	health   *healthuc.Service
	reg      *registry.Registry
	defaults Defaults
	logger   *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(
	score *scoreuc.Service,
	ingest *ingestuc.Service,
	health *healthuc.Service,
	reg *registry.Registry,
	defaults Defaults,
	logger *zap.Logger,
) *Server {
	if defaults.Fallback == 0 {
		defaults.Fallback = scoring.DefaultFallbackDistance
	}
	return &Server{
		score:    score,
		ingest:   ingest,
		health:   health,
		reg:      reg,
		defaults: defaults,
		logger:   logger,
	}
}

// Routes mounts all handlers on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/registry", s.handleRegistry)
	r.Post("/score", s.handleScore)
	r.Post("/images/{id}", s.handleIngestImage)
	r.Post("/rows", s.handleIngestRows)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// scoreRequest is the wire form of a scoring query.
type scoreRequest struct {
	Field       string   `json:"field"`
	Reference   string   `json:"reference"` // base64, standard alphabet
	Aggregation string   `json:"aggregation,omitempty"`
	Fallback    *float64 `json:"fallback,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}

type scoreHit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type scoreResponse struct {
	Hits []scoreHit `json:"hits"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if req.Field == "" || req.Reference == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "field and reference are required")
		return
	}

	reference, err := binval.DecodeExternal(req.Reference)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed_reference", safeMessage(err))
		return
	}

	agg := s.defaults.Aggregation
	if req.Aggregation != "" {
		if agg, err = scoring.ParseAggregation(req.Aggregation); err != nil {
			writeError(w, http.StatusBadRequest, "unknown_aggregation", safeMessage(err))
			return
		}
	}

	fallback := s.defaults.Fallback
	if req.Fallback != nil {
		fallback = *req.Fallback
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.defaults.Limit
	}
	if s.defaults.MaxLimit > 0 && limit > s.defaults.MaxLimit {
		limit = s.defaults.MaxLimit
	}

	hits, err := s.score.Score(r.Context(), scoreuc.Request{
		Field:       req.Field,
		Reference:   reference,
		Aggregation: agg,
		Fallback:    fallback,
		Limit:       limit,
	})
	if err != nil {
		s.writeDomainError(w, err, "score")
		return
	}

	out := scoreResponse{Hits: make([]scoreHit, len(hits))}
	for i, h := range hits {
		out.Hits[i] = scoreHit{ID: h.ID, Score: h.Score}
	}
	writeJSON(w, http.StatusOK, out)
}

type ingestImageResponse struct {
	ID     string   `json:"id"`
	Fields []string `json:"fields"`
}

func (s *Server) handleIngestImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "image id is required")
		return
	}

	row, err := s.ingest.IngestImage(r.Context(), id, r.Body)
	if err != nil {
		s.writeDomainError(w, err, "ingest image")
		return
	}

	fields := make([]string, 0, len(row.Fields))
	for name := range row.Fields {
		fields = append(fields, name)
	}
	writeJSON(w, http.StatusCreated, ingestImageResponse{ID: row.ID, Fields: fields})
}

// rowsRequest imports precomputed rows: histogram payloads base64-encoded,
// hash fields as token lists.
type rowsRequest struct {
	Rows []rowPayload `json:"rows"`
}

type rowPayload struct {
	ID     string              `json:"id"`
	Fields map[string][]string `json:"fields"`
}

func (s *Server) handleIngestRows(w http.ResponseWriter, r *http.Request) {
	var req rowsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if len(req.Rows) == 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "rows is required")
		return
	}

	rowsIn := make([]domain.Row, len(req.Rows))
	for i, rp := range req.Rows {
		rowsIn[i] = domain.Row{ID: rp.ID, Fields: rp.Fields}
	}

	if err := s.ingest.IngestRows(r.Context(), rowsIn); err != nil {
		s.writeDomainError(w, err, "ingest rows")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"indexed": len(rowsIn)})
}

type registryEntry struct {
	Code         string `json:"code"`
	FeatureField string `json:"feature_field"`
	HashField    string `json:"hash_field"`
	Variant      string `json:"variant"`
}

func (s *Server) handleRegistry(w http.ResponseWriter, _ *http.Request) {
	codes := s.reg.Codes()
	out := make([]registryEntry, 0, len(codes))
	for _, code := range codes {
		factory, err := s.reg.ByCode(code)
		if err != nil {
			continue
		}
		out = append(out, registryEntry{
			Code:         code,
			FeatureField: registry.FeatureField(code),
			HashField:    registry.HashField(code),
			Variant:      factory().Variant(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeDomainError maps domain sentinels to HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, domain.ErrNotRegistered):
		writeError(w, http.StatusBadRequest, "not_registered", safeMessage(err))
	case errors.Is(err, domain.ErrMalformedBase64):
		writeError(w, http.StatusBadRequest, "malformed_value", safeMessage(err))
	case errors.Is(err, domain.ErrCorruptPayload):
		writeError(w, http.StatusBadRequest, "corrupt_payload", safeMessage(err))
	case errors.Is(err, domain.ErrSchemaConfig):
		writeError(w, http.StatusBadRequest, "schema_config", safeMessage(err))
	case errors.Is(err, domain.ErrUnknownAggregation):
		writeError(w, http.StatusBadRequest, "unknown_aggregation", safeMessage(err))
	case errors.Is(err, domain.ErrInvalidFieldName):
		writeError(w, http.StatusBadRequest, "invalid_field_name", safeMessage(err))
	case errors.Is(err, domain.ErrImageDecode):
		writeError(w, http.StatusBadRequest, "image_decode_failed", safeMessage(err))
	case errors.Is(err, domain.ErrRowNotFound):
		writeError(w, http.StatusNotFound, "row_not_found", safeMessage(err))
	default:
		s.logger.Error("request failed", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// safeMessage returns the error text for client-facing 4xx responses.
func safeMessage(err error) string {
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
