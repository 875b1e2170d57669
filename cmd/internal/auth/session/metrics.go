package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the session subsystem's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Created     prometheus.Counter
	Evicted     prometheus.Counter
	Expired     prometheus.Counter
	Collisions  prometheus.Counter
	Invalidated prometheus.Counter
	Validations *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg (when non-nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codeplat",
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Sessions created.",
		}),
		Evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codeplat",
			Subsystem: "session",
			Name:      "evicted_total",
			Help:      "Sessions evicted by the per-user cap.",
		}),
		Expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codeplat",
			Subsystem: "session",
			Name:      "expired_deleted_total",
			Help:      "Expired sessions deleted on create or by the sweeper.",
		}),
		Collisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codeplat",
			Subsystem: "session",
			Name:      "token_collisions_total",
			Help:      "Token digest collisions on insert.",
		}),
		Invalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codeplat",
			Subsystem: "session",
			Name:      "invalidated_total",
			Help:      "Sessions deleted by logout or invalidate-all.",
		}),
		Validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codeplat",
			Subsystem: "session",
			Name:      "validations_total",
			Help:      "Token validations by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(m.Created, m.Evicted, m.Expired, m.Collisions, m.Invalidated, m.Validations)
	}
	return m
}

func (m *Metrics) created() {
	if m != nil {
		m.Created.Inc()
	}
}

func (m *Metrics) evicted() {
	if m != nil {
		m.Evicted.Inc()
	}
}

func (m *Metrics) expired(n int64) {
	if m != nil && n > 0 {
		m.Expired.Add(float64(n))
	}
}

func (m *Metrics) collision() {
	if m != nil {
		m.Collisions.Inc()
	}
}

func (m *Metrics) invalidated(n int64) {
	if m != nil && n > 0 {
		m.Invalidated.Add(float64(n))
	}
}

func (m *Metrics) validated(result string) {
	if m != nil {
		m.Validations.WithLabelValues(result).Inc()
	}
}
