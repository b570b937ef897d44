package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	snapshotsTotal    *prometheus.CounterVec
	snapshotsDropped  *prometheus.CounterVec
	scoringDuration   prometheus.Histogram
	publishErrors     *prometheus.CounterVec
	publishDropped    *prometheus.CounterVec
	readingsRejected  prometheus.Counter
	alertsTotal       *prometheus.CounterVec
	wsClients         prometheus.Gauge
	sourceConnected   *prometheus.GaugeVec
}

// New registers the gateway collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		snapshotsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archaeoscan_snapshots_total",
			Help: "Sensor snapshots processed, by source.",
		}, []string{"source"}),
		snapshotsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archaeoscan_snapshots_dropped_total",
			Help: "Sensor snapshots rejected before processing, by reason.",
		}, []string{"reason"}),
		scoringDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "archaeoscan_scoring_duration_seconds",
			Help:    "Time spent normalizing and scoring one snapshot.",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archaeoscan_publish_errors_total",
			Help: "Failed summary publications, by sink.",
		}, []string{"sink"}),
		publishDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archaeoscan_publish_dropped_total",
			Help: "Summaries discarded because a sink fell behind, by sink.",
		}, []string{"sink"}),
		readingsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archaeoscan_readings_rejected_total",
			Help: "Readings of new unknown sensor ids dropped at the sensor limit.",
		}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archaeoscan_alerts_total",
			Help: "Alerts raised, by type.",
		}, []string{"type"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archaeoscan_websocket_clients",
			Help: "Connected dashboard WebSocket clients.",
		}),
		sourceConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "archaeoscan_source_connected",
			Help: "Ingest source connection state (1 connected, 0 not).",
		}, []string{"source"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.snapshotsTotal,
		m.snapshotsDropped,
		m.scoringDuration,
		m.publishErrors,
		m.publishDropped,
		m.readingsRejected,
		m.alertsTotal,
		m.wsClients,
		m.sourceConnected,
	)
	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// sourceLabels bounds the source label; senders choose the source name.
var sourceLabels = map[string]bool{
	"http":      true,
	"mqtt":      true,
	"kafka":     true,
	"upstream":  true,
	"simulator": true,
}

// SourceLabel maps a snapshot source to its metric label.
func SourceLabel(source string) string {
	if sourceLabels[source] {
		return source
	}
	return "other"
}

func (m *Metrics) SnapshotProcessed(source string, scoring time.Duration) {
	if m == nil {
		return
	}
	m.snapshotsTotal.WithLabelValues(SourceLabel(source)).Inc()
	m.scoringDuration.Observe(scoring.Seconds())
}

func (m *Metrics) SnapshotDropped(reason string) {
	if m == nil {
		return
	}
	m.snapshotsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) PublishFailed(sink string) {
	if m == nil {
		return
	}
	m.publishErrors.WithLabelValues(sink).Inc()
}

func (m *Metrics) PublishDropped(sink string) {
	if m == nil {
		return
	}
	m.publishDropped.WithLabelValues(sink).Inc()
}

func (m *Metrics) ReadingsRejected(n int) {
	if m == nil {
		return
	}
	m.readingsRejected.Add(float64(n))
}

func (m *Metrics) AlertRaised(kind string) {
	if m == nil {
		return
	}
	m.alertsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetWebSocketClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}

func (m *Metrics) SetSourceConnected(source string, connected bool) {
	if m == nil {
		return
	}
	v := 0.0
	if connected {
		v = 1
	}
	m.sourceConnected.WithLabelValues(source).Set(v)
}
