package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	Logins        prometheus.Counter
	LoginFailures prometheus.Counter
	Registrations prometheus.Counter
	SessionsSwept prometheus.Counter
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		Logins: promauto.NewCounter(prometheus.CounterOpts{
			Name: "d1gate_logins_total",
			Help: "Total number of successful logins",
		}),
		LoginFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "d1gate_login_failures_total",
			Help: "Total number of rejected login attempts",
		}),
		Registrations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "d1gate_registrations_total",
			Help: "Total number of users registered",
		}),
		SessionsSwept: promauto.NewCounter(prometheus.CounterOpts{
			Name: "d1gate_sessions_swept_total",
			Help: "Total number of expired sessions removed by the sweep",
		}),
	}
}

func (m *Metrics) IncLogin()        { m.Logins.Inc() }
func (m *Metrics) IncLoginFailure() { m.LoginFailures.Inc() }
func (m *Metrics) IncRegistration() { m.Registrations.Inc() }

func (m *Metrics) AddSessionsSwept(n int) { m.SessionsSwept.Add(float64(n)) }
