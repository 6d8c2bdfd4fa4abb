package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

var MetricsModule = fx.Module("observability.metrics",
	fx.Provide(NewRegistry),
	fx.Provide(NewMetrics),
)

func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	return reg
}

type Metrics struct {
	AdmissionDecisions *prometheus.CounterVec
	UsageEvents        *prometheus.CounterVec
	BillingRuns        *prometheus.CounterVec
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AdmissionDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metergate_admission_decisions_total",
			Help: "Admission decisions by outcome and reason.",
		}, []string{"decision", "reason"}),
		UsageEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metergate_usage_events_total",
			Help: "Usage pipeline events by result.",
		}, []string{"result"}),
		BillingRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metergate_billing_principals_total",
			Help: "Principals handled by batch billing, by result.",
		}, []string{"result"}),
	}
}
