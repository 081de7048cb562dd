package metrics

import "github.com/prometheus/client_golang/prometheus"

// RealtimeMetrics tracks websocket fan-out.
type RealtimeMetrics struct {
	connections prometheus.Gauge
	delivered   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
}

// NewRealtimeMetrics registers the realtime metrics on the provided registerer.
func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	if reg == nil {
		return &RealtimeMetrics{}
	}
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connections",
		Help: "Open websocket connections.",
	})
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_messages_delivered_total",
		Help: "Realtime messages queued to a client.",
	}, []string{"event"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_messages_dropped_total",
		Help: "Realtime messages dropped because a client buffer was full.",
	}, []string{"event"})
	reg.MustRegister(connections, delivered, dropped)
	return &RealtimeMetrics{connections: connections, delivered: delivered, dropped: dropped}
}

func (r *RealtimeMetrics) ConnectionOpened() {
	if r == nil || r.connections == nil {
		return
	}
	r.connections.Inc()
}

func (r *RealtimeMetrics) ConnectionClosed() {
	if r == nil || r.connections == nil {
		return
	}
	r.connections.Dec()
}

func (r *RealtimeMetrics) Delivered(event string) {
	if r == nil || r.delivered == nil {
		return
	}
	r.delivered.WithLabelValues(normalizeLabel(event)).Inc()
}

func (r *RealtimeMetrics) Dropped(event string) {
	if r == nil || r.dropped == nil {
		return
	}
	r.dropped.WithLabelValues(normalizeLabel(event)).Inc()
}
