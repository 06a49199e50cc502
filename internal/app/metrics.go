package app

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the client-side instrumentation counters.
//
// They live on a private registry so an embedding application can expose
// them (or not) however it likes; nothing in this module starts a server.
type Metrics struct {
	reg *prometheus.Registry

	APIRequests    *prometheus.CounterVec
	TokenRefreshes *prometheus.CounterVec
	ChannelDials   prometheus.Counter
	ChannelEvents  *prometheus.CounterVec
	OnlineUsers    prometheus.Gauge
}

// NewMetrics constructs and registers all client metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),

		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_api_requests_total",
			Help: "Outbound API requests by method and status code.",
		}, []string{"method", "status"}),

		TokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_token_refresh_total",
			Help: "Credential refresh attempts by outcome (ok/fail).",
		}, []string{"outcome"}),

		ChannelDials: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loom_realtime_dials_total",
			Help: "Realtime channel dial attempts.",
		}),

		ChannelEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_realtime_events_total",
			Help: "Inbound realtime events by event name.",
		}, []string{"event"}),

		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loom_online_users",
			Help: "Size of the last presence snapshot.",
		}),
	}

	m.reg.MustRegister(
		m.APIRequests,
		m.TokenRefreshes,
		m.ChannelDials,
		m.ChannelEvents,
		m.OnlineUsers,
	)
	return m
}

// Registry returns the private registry backing the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}
