package executor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yourorg/payment-gateway/internal/action"
	"github.com/yourorg/payment-gateway/internal/response"
	"github.com/yourorg/payment-gateway/internal/telemetry"
)

const (
	outcomeSuccess   = "success"
	outcomeDeclined  = "declined"
	outcomeTransport = "transport_error"
)

type metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		calls: telemetry.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_executor_calls_total",
			Help: "Primitive gateway calls by action and outcome.",
		}, []string{"action", "outcome"})),
		duration: telemetry.Register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_executor_duration_seconds",
			Help:    "Latency of primitive gateway calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"})),
	}
}

func (m *metrics) observe(a action.Action, resp *response.Response, err error, elapsed time.Duration) {
	outcome := outcomeTransport
	switch {
	case err != nil:
	case resp.Success():
		outcome = outcomeSuccess
	default:
		outcome = outcomeDeclined
	}
	m.calls.WithLabelValues(a.String(), outcome).Inc()
	m.duration.WithLabelValues(a.String()).Observe(elapsed.Seconds())
}
