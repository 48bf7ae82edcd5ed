package service

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the fee schedule service's Prometheus collectors.
type Metrics struct {
	Validations      *prometheus.CounterVec
	Activations      *prometheus.CounterVec
	PendingProposals prometheus.Gauge
	Deliveries       *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fee_structure_validations_total",
				Help: "Fee structure validations by result and failing check.",
			},
			[]string{"result", "check"},
		),
		Activations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fee_structure_activations_total",
				Help: "Fee structures put into effect.",
			},
			[]string{"market"},
		),
		PendingProposals: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fee_structure_pending_proposals",
				Help: "Proposals waiting for their effective time.",
			},
		),
		Deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notification_deliveries_total",
				Help: "Notification deliveries by event and outcome.",
			},
			[]string{"event", "outcome"},
		),
	}

	registry.MustRegister(m.Validations, m.Activations, m.PendingProposals, m.Deliveries)
	return m
}
