package metrics

import "github.com/prometheus/client_golang/prometheus"

// Scoring and extraction Prometheus metrics.
var (
	ScoreRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imgdex",
			Name:      "score_requests_total",
			Help:      "Total number of distance scoring requests",
		},
		[]string{"field", "aggregation", "status"},
	)

	ScoreDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "imgdex",
			Name:      "score_duration_seconds",
			Help:      "Distance scoring duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"field"},
	)

	ScoredDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imgdex",
			Name:      "scored_documents_total",
			Help:      "Documents evaluated by distance scoring",
		},
		[]string{"field"},
	)

	ExtractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imgdex",
			Name:      "extractions_total",
			Help:      "Total number of image feature extractions",
		},
		[]string{"status"},
	)

	SnapshotDocuments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "imgdex",
			Name:      "snapshot_documents",
			Help:      "Documents visible in the live snapshot",
		},
	)
)

// RegisterScoringMetrics registers the scoring metric set explicitly
// (no init()).
func RegisterScoringMetrics() {
	prometheus.MustRegister(
		ScoreRequestsTotal,
		ScoreDuration,
		ScoredDocumentsTotal,
		ExtractionsTotal,
		SnapshotDocuments,
	)
}
