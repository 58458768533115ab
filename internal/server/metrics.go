package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safeline_transitions_total",
		Help: "Successful workflow transitions by entity and action.",
	}, []string{"entity", "action"})

	transitionDenied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safeline_transitions_denied_total",
		Help: "Transitions rejected by permission or validation checks.",
	}, []string{"entity", "reason"})
)

var metricsRegistry = prometheus.NewRegistry()

func init() {
	metricsRegistry.MustRegister(transitionsTotal, transitionDenied)
}

func registerMetrics(r chi.Router) {
	r.Handle("/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))
}

// countTransition records the outcome of a guarded mutation for metrics.
// Returns err unchanged so it can wrap call sites.
func countTransition(entity, action string, err error) error {
	if err == nil {
		transitionsTotal.WithLabelValues(entity, action).Inc()
		return nil
	}
	transitionDenied.WithLabelValues(entity, reasonLabel(err)).Inc()
	return err
}

func reasonLabel(err error) string {
	switch handleError(err).(*apiError).Code {
	case "forbidden":
		return "permission"
	case "validation_failed", "bad_request":
		return "validation"
	case "conflict":
		return "conflict"
	case "not_found":
		return "not_found"
	}
	return "error"
}
