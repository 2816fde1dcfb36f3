package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	SessionEvents     *prometheus.CounterVec
	MenuDecisions     *prometheus.CounterVec
	ProficiencyEvents *prometheus.CounterVec
	StoreErrors       *prometheus.CounterVec
	TimeoutOvershoot  prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		MenuDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "menu_decisions_total",
			Help:      "Menu policy verdicts by rendered type.",
		}, []string{"type"}),
		ProficiencyEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proficiency_events_total",
			Help:      "Proficiency counter updates by event kind.",
		}, []string{"kind"}),
		StoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Key-value store failures by operation.",
		}, []string{"op"}),
		TimeoutOvershoot: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_timeout_overshoot_seconds",
			Help:      "How far past its soft timeout a session was when reaped.",
			Buckets:   []float64{1, 10, 60, 300, 1800, 7200, 86400},
		}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
