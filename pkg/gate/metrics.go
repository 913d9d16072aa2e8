package gate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decision outcomes recorded in oauthgate_decisions_total.
const (
	OutcomePreflight     = "preflight"
	OutcomeAuthenticated = "authenticated"
	OutcomeRefreshed     = "refreshed"
	OutcomeExpired       = "expired"
	OutcomeMalformed     = "malformed"
	OutcomeCallback      = "callback"
	OutcomeRedirect      = "redirect"
	OutcomeError         = "error"
)

// Metrics records gate decisions and token exchanges. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Decisions by path (api, browser) and outcome
	Decisions *prometheus.CounterVec

	// Token exchanges by grant and result (ok, error)
	Exchanges *prometheus.CounterVec

	// Exchange latency by grant
	ExchangeLatency *prometheus.HistogramVec
}

// NewMetrics creates the gate metrics and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oauthgate_decisions_total",
			Help: "Authentication decisions by request path and outcome",
		}, []string{"path", "outcome"}),

		Exchanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oauthgate_exchanges_total",
			Help: "OAuth2 token exchanges by grant type and result",
		}, []string{"grant", "result"}),

		ExchangeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oauthgate_exchange_duration_seconds",
			Help:    "Duration of OAuth2 token exchanges by grant type",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"grant"}),
	}
}

// IncrementDecision records one decision.
func (m *Metrics) IncrementDecision(kind Kind, outcome string) {
	if m != nil {
		m.Decisions.WithLabelValues(kind.String(), outcome).Inc()
	}
}

// ObserveExchange records one exchange and its latency.
func (m *Metrics) ObserveExchange(grant string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Exchanges.WithLabelValues(grant, result).Inc()
	m.ExchangeLatency.WithLabelValues(grant).Observe(d.Seconds())
}
