package hub

import "github.com/prometheus/client_golang/prometheus"

type hubMetrics struct {
	refreshes *prometheus.CounterVec
	commands  *prometheus.CounterVec
}

func newHubMetrics() *hubMetrics {
	return &hubMetrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "melbridge",
			Subsystem: "hub",
			Name:      "refreshes_total",
			Help:      "Device refresh attempts by outcome.",
		}, []string{"device", "outcome"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "melbridge",
			Subsystem: "hub",
			Name:      "commands_total",
			Help:      "Commands dispatched to devices by outcome.",
		}, []string{"device", "outcome"}),
	}
}

// Collectors returns the hub's prometheus collectors for registration.
func (h *Hub) Collectors() []prometheus.Collector {
	return []prometheus.Collector{h.metrics.refreshes, h.metrics.commands}
}
