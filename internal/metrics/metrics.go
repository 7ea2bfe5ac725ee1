package metrics

import (
	"github.com/ppiankov/truthcast/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "truthcast"

// Provider request outcomes
const (
	OutcomeOK          = "ok"
	OutcomeCached      = "cached"
	OutcomeTimeout     = "timeout"
	OutcomeUnavailable = "unavailable"
)

// Metrics holds the pipeline's prometheus collectors
type Metrics struct {
	Verdicts           *prometheus.CounterVec
	FlaggedVerdicts    prometheus.Counter
	ProviderRequests   *prometheus.CounterVec
	ProviderUp         *prometheus.GaugeVec
	ClaimCheckDuration prometheus.Histogram
	ActiveSessions     *prometheus.GaugeVec
	AbandonedChecks    prometheus.Counter
	PersistenceRetries prometheus.Counter
	ExtractionFailures prometheus.Counter
}

// New registers all collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Verdicts produced, by label.",
		}, []string{"label"}),
		FlaggedVerdicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flagged_verdicts_total",
			Help:      "Verdicts flagged for review.",
		}),
		ProviderRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Source provider calls, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		ProviderUp: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_up",
			Help:      "Result of the last provider health probe (1 = reachable).",
		}, []string{"provider"}),
		ClaimCheckDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "claim_check_duration_seconds",
			Help:      "Time to search and synthesize one claim.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		ActiveSessions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Verification sessions currently running, by kind.",
		}, []string{"kind"}),
		AbandonedChecks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "abandoned_checks_total",
			Help:      "Claim checks dropped when a live session ended.",
		}),
		PersistenceRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_retries_total",
			Help:      "Store operations retried after a failure.",
		}),
		ExtractionFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_failures_total",
			Help:      "Transcript units whose claim extraction failed.",
		}),
	}
}

// NewNop returns collectors registered on a private registry
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// ObserveVerdict records a persisted verdict
func (m *Metrics) ObserveVerdict(v model.Verdict) {
	m.Verdicts.WithLabelValues(string(v.Label)).Inc()
	if v.IsFlagged {
		m.FlaggedVerdicts.Inc()
	}
	if v.ProcessingTimeMs > 0 {
		m.ClaimCheckDuration.Observe(float64(v.ProcessingTimeMs) / 1000)
	}
}

// ProviderResult records one provider call
func (m *Metrics) ProviderResult(provider, outcome string) {
	m.ProviderRequests.WithLabelValues(provider, outcome).Inc()
}

// SetProviderUp records a health probe result
func (m *Metrics) SetProviderUp(provider string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.ProviderUp.WithLabelValues(provider).Set(v)
}
