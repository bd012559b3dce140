package imago

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records assembly and forwarding outcomes. A nil *Metrics records
// nothing.
type Metrics struct {
	assemblies *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	polls      prometheus.Counter
	forwarded  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		assemblies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imago",
			Name:      "assemblies_total",
			Help:      "Assemblies submitted, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "imago",
			Name:      "assembly_duration_seconds",
			Help:      "Time from submission to a terminal assembly state.",
			Buckets:   []float64{.5, 1, 2, 4, 8, 15, 30, 60, 120, 300},
		}, []string{"outcome"}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imago",
			Name:      "polls_total",
			Help:      "Assembly status requests issued while waiting for completion.",
		}),
		forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imago",
			Name:      "forward_status_total",
			Help:      "Artifact responses forwarded to clients, by upstream status code.",
		}, []string{"code"}),
	}
	reg.MustRegister(m.assemblies, m.duration, m.polls, m.forwarded)
	return m
}

func (m *Metrics) assembly(outcome string, since time.Time) {
	if m == nil {
		return
	}
	m.assemblies.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(time.Since(since).Seconds())
}

func (m *Metrics) poll() {
	if m == nil {
		return
	}
	m.polls.Inc()
}

func (m *Metrics) forward(code int) {
	if m == nil {
		return
	}
	m.forwarded.WithLabelValues(strconv.Itoa(code)).Inc()
}
