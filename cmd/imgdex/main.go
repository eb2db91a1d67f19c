package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/imgdex/imgdex/internal/binval"
	"github.com/imgdex/imgdex/internal/column"
	"github.com/imgdex/imgdex/internal/config"
	dbRedis "github.com/imgdex/imgdex/internal/db/redis"
	"github.com/imgdex/imgdex/internal/extract"
	"github.com/imgdex/imgdex/internal/hashing"
	logpkg "github.com/imgdex/imgdex/internal/logger"
	"github.com/imgdex/imgdex/internal/metrics"
	"github.com/imgdex/imgdex/internal/registry"
	rowsrepo "github.com/imgdex/imgdex/internal/repository/rows"
	"github.com/imgdex/imgdex/internal/scoring"
	chiTransport "github.com/imgdex/imgdex/internal/transport/chi"
	healthuc "github.com/imgdex/imgdex/internal/usecase/health"
	ingestuc "github.com/imgdex/imgdex/internal/usecase/ingest"
	scoreuc "github.com/imgdex/imgdex/internal/usecase/score"
	"github.com/imgdex/imgdex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting imgdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.Strings("feature_codes", cfg.Schema.FeatureCodes),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create row store", zap.Error(err))
	}
	defer store.Close()

	// Wait for the row store to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Row store not ready", zap.Error(err))
	}
	logger.Info("Connected to row store")

	// Register scoring metrics explicitly (no init())
	metrics.RegisterScoringMetrics()

	reg := registry.Default()
	for _, code := range cfg.Schema.FeatureCodes {
		if _, err := reg.ByCode(code); err != nil {
			logger.Fatal("Unknown feature code in schema", zap.String("code", code), zap.Error(err))
		}
	}
	logger.Debug("feature registry frozen", zap.String("table", reg.String()))

	// Histogram fields must live in doc-values storage only; reject a
	// misconfigured schema before serving anything.
	for _, f := range cfg.Schema.Fields {
		err := binval.CheckSchema(binval.FieldSchema{
			Name:        f.Name,
			DocValues:   f.DocValues == nil || *f.DocValues,
			Indexed:     f.Indexed,
			Stored:      f.Stored,
			MultiValued: f.MultiValued,
		})
		if err != nil {
			logger.Fatal("Invalid field schema", zap.Error(err))
		}
	}

	// Hash reference data loads before indexing starts; a missing resource
	// is fatal, there is no degraded mode.
	hashes := hashing.NewManager(reg, hashing.Config{
		Dir:        cfg.Resources.Dir,
		PivotCodes: cfg.Resources.PivotCodes,
	}, logger)
	if err := hashes.Init(); err != nil {
		logger.Fatal("Failed to load hash reference data", zap.Error(err))
	}

	// Create repositories and the column snapshot
	rowRepo := rowsrepo.New(store)
	cols := column.NewManager(cfg.Schema.SegmentSize)
	builder := extract.NewRowBuilder(reg, hashes, extract.NewBuiltinExtractor(), cfg.Schema.FeatureCodes)

	// Create use case services
	ingestSvc := ingestuc.New(rowRepo, cols, builder, reg, logger).
		WithMultiValuedFields(cfg.MultiValuedFields())
	scoreSvc := scoreuc.New(reg, cols, logger)
	healthSvc := healthuc.New(store, hashes)

	// Rebuild the in-memory snapshot from persisted rows
	if err := ingestSvc.Reload(ctx); err != nil {
		logger.Fatal("Failed to rebuild snapshot from row store", zap.Error(err))
	}

	defaultAgg, err := scoring.ParseAggregation(cfg.Scoring.DefaultAggregation)
	if err != nil {
		logger.Fatal("Invalid default aggregation", zap.Error(err))
	}
	fallback := cfg.Scoring.DefaultFallback
	if fallback == 0 {
		fallback = scoring.DefaultFallbackDistance
	}

	// Create chi server
	server := chiTransport.NewServer(scoreSvc, ingestSvc, healthSvc, reg, chiTransport.Defaults{
		Aggregation: defaultAgg,
		Fallback:    fallback,
		Limit:       cfg.Scoring.DefaultLimit,
		MaxLimit:    cfg.Scoring.MaxLimit,
	}, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
