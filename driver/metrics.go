package driver

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report driver activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	submitted *prometheus.CounterVec
	delivered *prometheus.CounterVec
	inline    prometheus.Counter
	discarded prometheus.Counter
	pending   prometheus.Gauge
}

// NewMetrics creates the driver collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		submitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "opcore",
				Subsystem: "driver",
				Name:      "submitted_total",
				Help:      "Operations submitted to the driver.",
			},
			[]string{"policy"},
		),
		delivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "opcore",
				Subsystem: "driver",
				Name:      "delivered_total",
				Help:      "Operations delivered through PollReady, by outcome.",
			},
			[]string{"outcome"},
		),
		inline: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opcore",
			Subsystem: "driver",
			Name:      "inline_total",
			Help:      "Eager operations completed at submission.",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opcore",
			Subsystem: "driver",
			Name:      "discarded_total",
			Help:      "Operations whose results were dropped by shutdown.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "opcore",
			Subsystem: "driver",
			Name:      "pending",
			Help:      "Operations submitted and not yet delivered.",
		}),
	}

	collectors := []prometheus.Collector{m.submitted, m.delivered, m.inline, m.discarded, m.pending}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNewMetrics is like NewMetrics but panics on registration errors.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	m, err := NewMetrics(reg)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metrics) observeSubmit(p Policy) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(p.String()).Inc()
}

func (m *Metrics) observeInline() {
	if m == nil {
		return
	}
	m.inline.Inc()
}

func (m *Metrics) observeDelivered(r Result) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case r.MapErr != nil:
		outcome = "map_error"
	case r.Failed:
		outcome = "failed"
	}
	m.delivered.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeDiscarded(n int) {
	if m == nil || n == 0 {
		return
	}
	m.discarded.Add(float64(n))
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
