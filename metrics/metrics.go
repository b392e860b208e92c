package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// IngestsTotal counts ingested evidence items by kind and outcome.
	IngestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cleanproof",
		Subsystem: "pipeline",
		Name:      "ingests_total",
		Help:      "Total number of ingested evidence items, labeled by kind (complaint|proof) and result.",
	}, []string{"kind", "result"})

	// VerificationsTotal counts completed verification runs by verdict.
	VerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cleanproof",
		Subsystem: "pipeline",
		Name:      "verifications_total",
		Help:      "Total number of completed verification runs, labeled by verdict.",
	}, []string{"verdict"})

	// VerificationDurationSeconds is end-to-end time per verification run.
	VerificationDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cleanproof",
		Subsystem: "pipeline",
		Name:      "verification_duration_seconds",
		Help:      "End-to-end time to verify a proof, including assessor calls.",
		// Keep buckets fairly coarse to avoid high-cardinality time series.
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60, 120},
	})

	// RecycledDetectedTotal counts proofs flagged as recycled at ingestion.
	RecycledDetectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cleanproof",
		Subsystem: "pipeline",
		Name:      "recycled_detected_total",
		Help:      "Total number of proofs flagged as recycled photos at ingestion.",
	})

	// AssessorFallbackTotal counts verification runs that fell back to a
	// conservative assessment after an assessor or parse failure.
	AssessorFallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cleanproof",
		Subsystem: "pipeline",
		Name:      "assessor_fallback_total",
		Help:      "Total number of verification runs that used the conservative fallback assessment.",
	})

	// ReviewQueueInsertsTotal counts proofs routed to the human review queue.
	ReviewQueueInsertsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cleanproof",
		Subsystem: "pipeline",
		Name:      "review_queue_inserts_total",
		Help:      "Total number of proofs enqueued for human review.",
	})
)

// Register registers pipeline metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			IngestsTotal,
			VerificationsTotal,
			VerificationDurationSeconds,
			RecycledDetectedTotal,
			AssessorFallbackTotal,
			ReviewQueueInsertsTotal,
		)
	})
}
