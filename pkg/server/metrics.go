package server

import (
	"net/http"
	"time"

	"github.com/crystal-mush/kmud/pkg/command"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one server. Each server owns
// its registry so several can live in one process (tests do this).
type Metrics struct {
	reg       *prometheus.Registry
	startTime time.Time

	connected        *prometheus.GaugeVec
	connectionsTotal *prometheus.CounterVec
	commandsTotal    *prometheus.CounterVec
	rateLimited      prometheus.Counter
	delivered        prometheus.Counter
	dropped          *prometheus.CounterVec
	closes           *prometheus.CounterVec
	queueDepth       *prometheus.GaugeVec
	uptimeSeconds    prometheus.Gauge
}

// NewMetrics creates and registers the server's metrics.
func NewMetrics(startTime time.Time) *Metrics {
	m := &Metrics{
		reg:       prometheus.NewRegistry(),
		startTime: startTime,
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kmud_connections_current",
			Help: "Number of open connections by transport.",
		}, []string{"transport"}),
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kmud_connections_total",
			Help: "Total connections since server start.",
		}, []string{"transport"}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kmud_commands_total",
			Help: "Command results by status and failure reason.",
		}, []string{"status", "reason"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kmud_input_rate_limited_total",
			Help: "Input lines rejected by the per-connection rate limit.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kmud_outbound_delivered_total",
			Help: "Outbound messages written to a channel.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kmud_outbound_dropped_total",
			Help: "Outbound messages discarded, by cause.",
		}, []string{"cause"}),
		closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kmud_closes_total",
			Help: "Queued channel closes executed.",
		}, []string{"mode"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kmud_queue_depth",
			Help: "Current length of the outbound and close queues.",
		}, []string{"queue"}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kmud_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connected,
		m.connectionsTotal,
		m.commandsTotal,
		m.rateLimited,
		m.delivered,
		m.dropped,
		m.closes,
		m.queueDepth,
		m.uptimeSeconds,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) connOpened(transport string) {
	m.connected.WithLabelValues(transport).Inc()
	m.connectionsTotal.WithLabelValues(transport).Inc()
}

func (m *Metrics) connClosed(transport string) {
	m.connected.WithLabelValues(transport).Dec()
}

func (m *Metrics) result(res command.Result) {
	reason := ""
	if res.Failed() {
		reason = res.Reason.String()
	}
	m.commandsTotal.WithLabelValues(res.Status.String(), reason).Inc()
}

func (m *Metrics) drained(st DrainStats, outbound, closes int) {
	m.delivered.Add(float64(st.Delivered))
	m.dropped.WithLabelValues("write_failed").Add(float64(st.Failed))
	m.dropped.WithLabelValues("discarded").Add(float64(st.Dropped))
	m.closes.WithLabelValues("flushed").Add(float64(st.Closed - st.Forced))
	m.closes.WithLabelValues("forced").Add(float64(st.Forced))
	m.queueDepth.WithLabelValues("outbound").Set(float64(outbound))
	m.queueDepth.WithLabelValues("close").Set(float64(closes))
}

// Handler returns an http.Handler that refreshes uptime before serving.
func (m *Metrics) Handler() http.Handler {
	h := promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())
		h.ServeHTTP(w, r)
	})
}
