// Package metrics holds the Prometheus collectors for classification runs.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "goclassify"

type Metrics struct {
	attempts *prometheus.CounterVec
	latency  prometheus.Histogram
	inFlight prometheus.Gauge
	calls    *prometheus.CounterVec
	items    *prometheus.CounterVec
	runs     prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_attempts_total",
			Help:      "Remote classification attempts by result.",
		}, []string{"result"}),
		latency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_attempt_duration_seconds",
			Help:      "Duration of single remote classification attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "llm_in_flight",
			Help:      "Remote calls currently holding a concurrency slot.",
		}),
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Classify calls by final result after retries.",
		}, []string{"result"}),
		items: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Processed inputs by outcome and error kind.",
		}, []string{"outcome", "error_kind"}),
		runs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed orchestrator runs.",
		}),
	}
}

func (m *Metrics) ObserveAttempt(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
	m.latency.Observe(d.Seconds())
}

func (m *Metrics) SlotAcquired() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) SlotReleased() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

func (m *Metrics) ObserveCall(result string) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveItem(outcome, errorKind string) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(outcome, errorKind).Inc()
}

func (m *Metrics) ObserveRun() {
	if m == nil {
		return
	}
	m.runs.Inc()
}
