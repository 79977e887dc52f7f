package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	flowAuthorize    = "authorize"
	flowAuthenticate = "authenticate"
	flowToken        = "token"
	flowRefresh      = "refresh"
	flowRevoke       = "revoke"
	flowResource     = "resource"
	flowIndex        = "index"

	outcomeOK       = "ok"
	outcomeLogin    = "login"
	outcomeDenied   = "denied"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// Metrics counts flow outcomes. A nil *Metrics records nothing.
type Metrics struct {
	flows           *prometheus.CounterVec
	logins          *prometheus.CounterVec
	cookiesRejected prometheus.Counter
}

// NewMetrics creates the engine's counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		flows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oauth",
			Name:      "flows_total",
			Help:      "Protocol flows executed, by flow and outcome.",
		}, []string{"flow", "outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oauth",
			Name:      "logins_total",
			Help:      "Credential checks against the login backend, by outcome.",
		}, []string{"outcome"}),
		cookiesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oauth",
			Name:      "session_cookies_rejected_total",
			Help:      "Session cookies that were malformed or failed verification.",
		}),
	}
	reg.MustRegister(m.flows, m.logins, m.cookiesRejected)
	return m
}

func (m *Metrics) flow(flow, outcome string) {
	if m == nil {
		return
	}
	m.flows.WithLabelValues(flow, outcome).Inc()
}

func (m *Metrics) login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) cookieRejected() {
	if m == nil {
		return
	}
	m.cookiesRejected.Inc()
}
