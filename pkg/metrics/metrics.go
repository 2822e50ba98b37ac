package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CheckoutMetrics counts checkout runs by terminal state and, for failures,
// by the step and error kind that ended them.
type CheckoutMetrics struct {
	Outcomes       *prometheus.CounterVec
	Reservations   *prometheus.CounterVec
	Reconciliation *prometheus.CounterVec
	DurationMS     *prometheus.HistogramVec
	registry       *prometheus.Registry
}

func NewCheckoutMetrics() *CheckoutMetrics {
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "avion",
		Subsystem: "checkout",
		Name:      "outcomes_total",
		Help:      "Checkout runs by terminal state, failing step and error kind.",
	}, []string{"state", "step", "kind"})
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "avion",
		Subsystem: "checkout",
		Name:      "stock_reservations_total",
		Help:      "Stock reservation attempts by result.",
	}, []string{"result"})
	reconciliation := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "avion",
		Subsystem: "checkout",
		Name:      "reconciliation_required_total",
		Help:      "Checkouts that left external side effects behind after failing.",
	}, []string{"step"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "avion",
		Subsystem: "checkout",
		Name:      "duration_ms",
		Help:      "Checkout latency in milliseconds.",
		Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"state"})

	registry := prometheus.NewRegistry()
	registry.MustRegister(outcomes, reservations, reconciliation, duration,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &CheckoutMetrics{
		Outcomes:       outcomes,
		Reservations:   reservations,
		Reconciliation: reconciliation,
		DurationMS:     duration,
		registry:       registry,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *CheckoutMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
