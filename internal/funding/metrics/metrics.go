package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the funding ledger.
type Metrics struct {
	// Admit outcomes by result ("admitted", "exceeds_target", "below_minimum",
	// "expired", "limit_reached", "conflict", "error")
	AdmitOutcome *prometheus.CounterVec

	// Campaign terminal transitions by kind
	CampaignTransitions *prometheus.CounterVec

	// Optimistic-concurrency retries during admit
	ContentionRetries prometheus.Counter

	// Admit latency including contention retries
	AdmitLatency prometheus.Histogram
}

// New creates a Metrics instance with all ledger metrics registered.
func New() *Metrics {
	return &Metrics{
		AdmitOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wishwell_funding_admit_outcomes_total",
			Help: "Contribution admit outcomes by result",
		}, []string{"result"}),

		CampaignTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wishwell_funding_campaign_transitions_total",
			Help: "Campaign terminal transitions by kind",
		}, []string{"kind"}),

		ContentionRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wishwell_funding_admit_contention_retries_total",
			Help: "Admit attempts replayed after an optimistic-concurrency conflict",
		}),

		AdmitLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "wishwell_funding_admit_duration_seconds",
			Help:    "Duration of contribution admission including retries",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementAdmitOutcome records one admit result.
func (m *Metrics) IncrementAdmitOutcome(result string) {
	if m != nil {
		m.AdmitOutcome.WithLabelValues(result).Inc()
	}
}

// IncrementTransition records a terminal campaign transition.
func (m *Metrics) IncrementTransition(kind string) {
	if m != nil {
		m.CampaignTransitions.WithLabelValues(kind).Inc()
	}
}

// IncrementContention records one optimistic-concurrency replay.
func (m *Metrics) IncrementContention() {
	if m != nil {
		m.ContentionRetries.Inc()
	}
}

// ObserveAdmitLatency records the duration of one admit call.
func (m *Metrics) ObserveAdmitLatency(d time.Duration) {
	if m != nil {
		m.AdmitLatency.Observe(d.Seconds())
	}
}
