package payments

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
)

// Metrics holds Prometheus collectors for the payments service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	transitions   *prometheus.CounterVec
	regenerations prometheus.Counter
	fallbacks     prometheus.Counter
	checkouts     *prometheus.CounterVec
	webhooks      *prometheus.CounterVec
	downgrades    prometheus.Counter
	sweepFailures prometheus.Counter
	subscriptions *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	const ns, sub = "lifecoach", "payments"

	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "transitions_total",
			Help:      "Payment outcomes applied to accounts",
		}, []string{"source", "tier"}),
		regenerations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "regenerations_total",
			Help:      "Paid result regenerations counted",
		}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "grace_fallbacks_total",
			Help:      "Non-renewing subscriptions without a period end from the processor",
		}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "checkouts_total",
			Help:      "Checkout requests by tier and result",
		}, []string{"tier", "result"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "webhooks_total",
			Help:      "Webhook deliveries by event kind and result",
		}, []string{"kind", "result"}),
		downgrades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "sweeper_downgrades_total",
			Help:      "Accounts downgraded after their grace period ended",
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "sweeper_failures_total",
			Help:      "Accounts the sweeper failed to downgrade",
		}),
		subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "subscriptions",
			Help:      "Accounts holding a subscription reference by state",
		}, []string{"state"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.transitions, m.regenerations, m.fallbacks, m.checkouts,
			m.webhooks, m.downgrades, m.sweepFailures, m.subscriptions,
		)
	}
	return m
}

func (m *Metrics) transition(source string, tier entitlement.Tier) {
	if m != nil {
		m.transitions.WithLabelValues(source, string(tier)).Inc()
	}
}

func (m *Metrics) regeneration() {
	if m != nil {
		m.regenerations.Inc()
	}
}

func (m *Metrics) graceFallback() {
	if m != nil {
		m.fallbacks.Inc()
	}
}

func (m *Metrics) checkout(tier entitlement.Tier, result string) {
	if m != nil {
		m.checkouts.WithLabelValues(string(tier), result).Inc()
	}
}

func (m *Metrics) webhook(kind, result string) {
	if m != nil {
		m.webhooks.WithLabelValues(kind, result).Inc()
	}
}

func (m *Metrics) swept(downgraded, failed int) {
	if m != nil {
		m.downgrades.Add(float64(downgraded))
		m.sweepFailures.Add(float64(failed))
	}
}

func (m *Metrics) summary(s Summary) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues("active").Set(float64(s.Active))
	m.subscriptions.WithLabelValues("canceled").Set(float64(s.Canceled))
	m.subscriptions.WithLabelValues("expired").Set(float64(s.Expired))
	m.subscriptions.WithLabelValues("other").Set(float64(s.Other))
}
