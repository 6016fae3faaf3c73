// Package metrics exposes gateway counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors. A nil *Metrics is
// valid and records nothing, which keeps tests free of registry setup.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	rateLimitedTotal   *prometheus.CounterVec
	credentialFailures prometheus.Counter
	capacityExhausted  prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Completed gateway requests by path and status code.",
		}, []string{"path", "status"}),
		rateLimitedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_rate_limited_total",
			Help: "Requests rejected by the rate limiter, by scope kind.",
		}, []string{"scope"}),
		credentialFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_credential_failures_total",
			Help: "Upstream failures attributed to a credential.",
		}),
		capacityExhausted: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_capacity_exhausted_total",
			Help: "Chat requests rejected because no valid credential existed.",
		}),
	}
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(path string, status int) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ObserveRateLimited(scope string) {
	if m == nil {
		return
	}
	m.rateLimitedTotal.WithLabelValues(scope).Inc()
}

func (m *Metrics) ObserveCredentialFailure() {
	if m == nil {
		return
	}
	m.credentialFailures.Inc()
}

func (m *Metrics) ObserveCapacityExhausted() {
	if m == nil {
		return
	}
	m.capacityExhausted.Inc()
}
