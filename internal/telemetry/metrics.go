package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics carries the dispatcher-facing Prometheus instruments. A nil
// *Metrics is valid and every method on it is a no-op, so callers never
// need an enabled check at the call site.
type Metrics struct {
	registry *prometheus.Registry

	sessionsLive    prometheus.Gauge
	framesTotal     *prometheus.CounterVec
	frameErrors     *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	fanOutTotal     *prometheus.CounterVec
}

// NewMetrics builds the instrument set on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	return &Metrics{
		registry: reg,
		sessionsLive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "classroomd_sessions_live",
			Help: "Number of websocket sessions currently connected to this instance",
		}),
		framesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "classroomd_frames_total",
			Help: "Inbound frames dispatched, by event name",
		}, []string{"event"}),
		frameErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "classroomd_frame_errors_total",
			Help: "Frames answered with an ERROR frame, by event name and error kind",
		}, []string{"event", "kind"}),
		handlerDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "classroomd_handler_duration_seconds",
			Help:    "Handler latency per event name, validation through relay",
			Buckets: prometheus.DefBuckets,
		}, []string{"event"}),
		fanOutTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "classroomd_fanout_messages_total",
			Help: "Messages published to rooms, by room type",
		}, []string{"room_type"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionConnected() {
	if m == nil {
		return
	}
	m.sessionsLive.Inc()
}

func (m *Metrics) SessionDisconnected() {
	if m == nil {
		return
	}
	m.sessionsLive.Dec()
}

func (m *Metrics) FrameDispatched(event string, d time.Duration) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues(event).Inc()
	m.handlerDuration.WithLabelValues(event).Observe(d.Seconds())
}

func (m *Metrics) FrameError(event, kind string) {
	if m == nil {
		return
	}
	m.frameErrors.WithLabelValues(event, kind).Inc()
}

func (m *Metrics) FanOut(roomType string) {
	if m == nil {
		return
	}
	m.fanOutTotal.WithLabelValues(roomType).Inc()
}
