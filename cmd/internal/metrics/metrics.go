// Package metrics exposes huddle's Prometheus collectors on a private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"huddle/cmd/internal/realtime"
)

const namespace = "huddle"

// Metrics owns every collector. It implements realtime.Observer.
type Metrics struct {
	reg *prometheus.Registry

	wsConnections prometheus.Gauge
	wsRejected    *prometheus.CounterVec
	roomJoins     *prometheus.CounterVec
	submits       *prometheus.CounterVec
	dropped       prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var _ realtime.Observer = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Current number of authenticated websocket connections.",
		}),
		wsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_rejected_total",
			Help:      "Websocket handshakes refused before or during upgrade.",
		}, []string{"reason"}),
		roomJoins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_joins_total",
			Help:      "join_room requests by outcome.",
		}, []string{"result"}),
		submits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_submitted_total",
			Help:      "send_message submissions by outcome.",
		}, []string{"result"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_dropped_envelopes_total",
			Help:      "Outbound envelopes dropped because a send queue was full.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route template and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route template.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.wsConnections,
		m.wsRejected,
		m.roomJoins,
		m.submits,
		m.dropped,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) ConnOpened()                { m.wsConnections.Inc() }
func (m *Metrics) ConnClosed()                { m.wsConnections.Dec() }
func (m *Metrics) ConnRejected(reason string) { m.wsRejected.WithLabelValues(reason).Inc() }
func (m *Metrics) RoomJoin(result string)     { m.roomJoins.WithLabelValues(result).Inc() }
func (m *Metrics) Submit(result string)       { m.submits.WithLabelValues(result).Inc() }
func (m *Metrics) Dropped()                   { m.dropped.Inc() }
