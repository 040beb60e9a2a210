package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds onboarding and account metrics. Verification metrics live in
// internal/identity/metrics.
type Metrics struct {
	OnboardingStarted   prometheus.Counter
	OnboardingCompleted prometheus.Counter
	OnboardingAbandoned prometheus.Counter
	ActiveSessions      prometheus.Gauge
	StepTransitions     *prometheus.CounterVec
	SessionsExpired     prometheus.Counter

	AccountsCreated prometheus.Counter
	LoginFailures   prometheus.Counter
}

// New creates and registers the metrics with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer lets tests use an isolated registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OnboardingStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "bond_onboarding_started_total",
			Help: "Total number of onboarding sessions started",
		}),
		OnboardingCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "bond_onboarding_completed_total",
			Help: "Total number of onboarding sessions that reached the complete step",
		}),
		OnboardingAbandoned: f.NewCounter(prometheus.CounterOpts{
			Name: "bond_onboarding_abandoned_total",
			Help: "Total number of onboarding sessions abandoned by the user",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "bond_onboarding_active_sessions",
			Help: "Current number of onboarding sessions held in memory",
		}),
		StepTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bond_onboarding_step_transitions_total",
			Help: "Onboarding step transitions, labeled by destination step",
		}, []string{"step"}),
		SessionsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "bond_onboarding_sessions_expired_total",
			Help: "Onboarding sessions removed by the cleanup worker",
		}),
		AccountsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "bond_accounts_created_total",
			Help: "Total number of accounts registered after onboarding",
		}),
		LoginFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "bond_login_failures_total",
			Help: "Total number of rejected login attempts",
		}),
	}
}

func (m *Metrics) RecordTransition(step string) {
	m.StepTransitions.WithLabelValues(step).Inc()
}

func (m *Metrics) RecordSessionsExpired(n int) {
	if n > 0 {
		m.SessionsExpired.Add(float64(n))
	}
}

func (m *Metrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}
