package metrics

import (
	"errors"

	"capillaire/internal/store"

	"github.com/prometheus/client_golang/prometheus"
)

// OutcomeSuccess is the outcome label of a successful generation.
const OutcomeSuccess = "success"

// Collectors are the process-wide Prometheus instruments.
type Collectors struct {
	Generations       *prometheus.CounterVec
	GenerationLatency *prometheus.HistogramVec
	StoreErrors       *prometheus.CounterVec
	SessionChecks     *prometheus.CounterVec
	Journeys          prometheus.Gauge
}

// NewCollectors creates the instruments and registers them with reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "capillaire",
			Name:      "generations_total",
			Help:      "Generation calls by agent and outcome.",
		}, []string{"agent", "outcome"}),
		GenerationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "capillaire",
			Name:      "generation_latency_seconds",
			Help:      "Latency of generation calls.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"agent"}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "capillaire",
			Name:      "store_errors_total",
			Help:      "Absorbed persistence failures by operation and kind.",
		}, []string{"op", "kind"}),
		SessionChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "capillaire",
			Name:      "session_checks_total",
			Help:      "Session checks by resolution.",
		}, []string{"result"}),
		Journeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "capillaire",
			Name:      "active_journeys",
			Help:      "Journey controllers currently running.",
		}),
	}
	reg.MustRegister(c.Generations, c.GenerationLatency, c.StoreErrors, c.SessionChecks, c.Journeys)
	return c
}

// CountStoreError increments StoreErrors when err carries a StoreError. It
// is safe on a nil receiver.
func (c *Collectors) CountStoreError(err error) {
	if c == nil {
		return
	}
	var se *store.StoreError
	if errors.As(err, &se) {
		c.StoreErrors.WithLabelValues(se.Op, string(se.Kind)).Inc()
	}
}
