package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yourorg/payment-gateway/internal/telemetry"
)

type metrics struct {
	runs  *prometheus.CounterVec
	steps *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		runs: telemetry.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_orchestrator_runs_total",
			Help: "Composed runs by operation and outcome (success, declined, error).",
		}, []string{"operation", "outcome"})),
		steps: telemetry.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_orchestrator_steps_total",
			Help: "Steps started by composed runs.",
		}, []string{"operation"})),
	}
}
