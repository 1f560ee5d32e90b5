package runtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics reports realm population, engine slots and orphaned deliveries.
// A nil *metrics records nothing.
type metrics struct {
	realms    prometheus.Gauge
	slots     prometheus.Gauge
	orphaned  prometheus.Counter
	delivered prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		realms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "opcore",
			Subsystem: "runtime",
			Name:      "realms",
			Help:      "Live realms, main included.",
		}),
		slots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "opcore",
			Subsystem: "runtime",
			Name:      "slots",
			Help:      "Live engine slots across realms.",
		}),
		orphaned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opcore",
			Subsystem: "runtime",
			Name:      "orphaned_total",
			Help:      "Completions discarded because their realm was gone.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opcore",
			Subsystem: "runtime",
			Name:      "routed_total",
			Help:      "Completions delivered to a live realm.",
		}),
	}
	for _, c := range []prometheus.Collector{m.realms, m.slots, m.orphaned, m.delivered} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) setRealms(n int) {
	if m == nil {
		return
	}
	m.realms.Set(float64(n))
}

func (m *metrics) addSlots(delta float64) {
	if m == nil {
		return
	}
	m.slots.Add(delta)
}

func (m *metrics) observeOrphan() {
	if m == nil {
		return
	}
	m.orphaned.Inc()
}

func (m *metrics) observeRouted() {
	if m == nil {
		return
	}
	m.delivered.Inc()
}
