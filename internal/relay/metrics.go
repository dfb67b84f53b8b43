package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are registered on a per-server registry so several relays can
// live in one process.
type Metrics struct {
	Registry *prometheus.Registry

	ActiveConnections prometheus.Gauge
	TotalConnections  prometheus.Counter
	EventsReceived    *prometheus.CounterVec
	EventsDelivered   *prometheus.CounterVec
	EventsDropped     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ActiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "agora_relay_active_connections",
			Help: "Number of open channel connections",
		}),
		TotalConnections: f.NewCounter(prometheus.CounterOpts{
			Name: "agora_relay_connections_total",
			Help: "Total number of accepted channel connections",
		}),
		EventsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_relay_events_received_total",
			Help: "Events read from clients",
		}, []string{"event"}),
		EventsDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_relay_events_delivered_total",
			Help: "Events written to client send buffers",
		}, []string{"event"}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_relay_events_dropped_total",
			Help: "Events not delivered",
		}, []string{"reason"}),
	}
}
