// Package observability exposes Prometheus instrumentation for the
// navigation engine: per-tool call counters plus gauges derived from the
// session store. Metrics are registered against an injected Registerer
// so tests can use isolated registries.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's instrument set.
type Metrics struct {
	toolCalls *prometheus.CounterVec
}

// NewMetrics creates and registers the instrument set. sessionCount and
// droppedEvents are sampled lazily on scrape; pass nil to skip either
// gauge.
func NewMetrics(reg prometheus.Registerer, sessionCount func() int, droppedEvents func() uint64) *Metrics {
	m := &Metrics{
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sopnav_tool_calls_total",
				Help: "Total tool protocol calls, by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
	}
	reg.MustRegister(m.toolCalls)

	if sessionCount != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "sopnav_live_sessions",
				Help: "Number of sessions currently held in memory",
			},
			func() float64 { return float64(sessionCount()) },
		))
	}
	if droppedEvents != nil {
		reg.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "sopnav_events_dropped_total",
				Help: "Events discarded by the per-session and global log caps",
			},
			func() float64 { return float64(droppedEvents()) },
		))
	}
	return m
}

// ObserveToolCall records one tool invocation and its outcome.
func (m *Metrics) ObserveToolCall(tool string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}
