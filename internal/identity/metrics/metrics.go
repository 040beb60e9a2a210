// Package metrics exposes Prometheus metrics for identity verification.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// VerificationsTotal counts outcomes: verified, rejected, unreachable, invalid, misconfigured.
	VerificationsTotal *prometheus.CounterVec
	// TransportErrorsTotal counts provider transport failures by category.
	TransportErrorsTotal *prometheus.CounterVec
	// ProviderCodesTotal counts raw provider result codes.
	ProviderCodesTotal *prometheus.CounterVec
	ProviderLatency    prometheus.Histogram
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		VerificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bond_identity_verifications_total",
			Help: "BVN verification requests by outcome",
		}, []string{"outcome"}),
		TransportErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bond_identity_transport_errors_total",
			Help: "Identity provider transport failures by category",
		}, []string{"category"}),
		ProviderCodesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bond_identity_provider_result_codes_total",
			Help: "Identity provider result codes as returned",
		}, []string{"code"}),
		ProviderLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bond_identity_provider_latency_seconds",
			Help:    "Round-trip latency of identity provider calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15},
		}),
	}
}

const (
	OutcomeVerified      = "verified"
	OutcomeRejected      = "rejected"
	OutcomeUnreachable   = "unreachable"
	OutcomeInvalid       = "invalid"
	OutcomeMisconfigured = "misconfigured"
)

func (m *Metrics) RecordOutcome(outcome string) {
	m.VerificationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordTransportError(category string) {
	m.TransportErrorsTotal.WithLabelValues(category).Inc()
}

func (m *Metrics) RecordProviderCode(code string) {
	if code == "" {
		code = "none"
	}
	m.ProviderCodesTotal.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveProviderLatency(seconds float64) {
	m.ProviderLatency.Observe(seconds)
}
