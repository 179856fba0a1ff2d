// ABOUTME: Prometheus metrics for proxied requests
// ABOUTME: Registered on a private registry and exposed behind a config flag

package gateway

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/a2a-gateway/internal/proxy"
)

type metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()

	m := &metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_gateway_requests_total",
			Help: "Proxied requests by agent, operation, and outcome.",
		}, []string{"agent", "operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "a2a_gateway_request_duration_seconds",
			Help:    "Proxied request duration by agent and operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"agent", "operation"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// outcomeLabel names a failure kind for the requests counter.
func outcomeLabel(perr *proxy.Error) string {
	if perr == nil {
		return "ok"
	}
	switch perr.Kind {
	case proxy.KindMalformedRequest:
		return "malformed"
	case proxy.KindUnauthenticated:
		return "unauthenticated"
	case proxy.KindUnauthorized:
		return "denied"
	case proxy.KindUnknownAgent:
		return "unknown_agent"
	case proxy.KindUpstreamAuthFailure:
		return "upstream_auth"
	case proxy.KindBackendUnavailable:
		return "backend_unavailable"
	case proxy.KindBackendTimeout:
		return "backend_timeout"
	case proxy.KindProtocolError:
		return "protocol_error"
	default:
		return "internal"
	}
}

// observe records one proxied request. Safe to call with metrics disabled.
func (g *Gateway) observe(agent, operation string, perr *proxy.Error, elapsed time.Duration) {
	if g.metrics == nil {
		return
	}
	g.metrics.requests.WithLabelValues(agent, operation, outcomeLabel(perr)).Inc()
	g.metrics.duration.WithLabelValues(agent, operation).Observe(elapsed.Seconds())
}
