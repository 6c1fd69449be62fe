package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"dmrelay/internal/delivery"
)

// Metrics holds dmrelay's collectors on a private registry so tests and
// multiple instances never collide on the default one.
type Metrics struct {
	Registry *prometheus.Registry

	Deliveries *prometheus.CounterVec
	Sessions   *prometheus.CounterVec
	Pending    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmrelay_deliveries_total",
			Help: "Direct message attempts by classified outcome.",
		}, []string{"outcome"}),
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmrelay_sessions_total",
			Help: "Community sessions by how they ended.",
		}, []string{"result"}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dmrelay_recipients_pending",
			Help: "Recipients enumerated but not yet finished across running sessions.",
		}),
	}
	// Pre-create label values so every series exists from the first scrape.
	for _, o := range delivery.Outcomes {
		m.Deliveries.WithLabelValues(o.String())
	}
	m.Registry.MustRegister(m.Deliveries, m.Sessions, m.Pending)
	return m
}

// RecordOutcome implements delivery.Recorder.
func (m *Metrics) RecordOutcome(o delivery.Outcome) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(o.String()).Inc()
}

// RecipientsQueued implements delivery.Recorder.
func (m *Metrics) RecipientsQueued(n int) { m.AddPending(n) }

// RecipientDone implements delivery.Recorder.
func (m *Metrics) RecipientDone() {
	if m == nil {
		return
	}
	m.Pending.Dec()
}

// SessionEnded counts one finished session.
func (m *Metrics) SessionEnded(result string) {
	if m == nil {
		return
	}
	m.Sessions.WithLabelValues(result).Inc()
}

// AddPending adjusts the pending-recipients gauge.
func (m *Metrics) AddPending(n int) {
	if m == nil {
		return
	}
	m.Pending.Add(float64(n))
}
