package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Simulation metrics
	Acquisitions        *prometheus.CounterVec
	AcquisitionFailures *prometheus.CounterVec
	TransfersCompleted  prometheus.Counter
	DeadlocksDetected   prometheus.Counter

	// Live entity gauges
	ProcessesLive   prometheus.Gauge
	ConnectionsLive prometheus.Gauge
	TransfersLive   prometheus.Gauge

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipcsim_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ipcsim_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),

		Acquisitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipcsim_acquisitions_total",
				Help: "Successful resource acquisitions by connection type and side",
			},
			[]string{"type", "operation"},
		),
		AcquisitionFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipcsim_acquisition_failures_total",
				Help: "Failed resource acquisitions by connection type and error code",
			},
			[]string{"type", "code"},
		),
		TransfersCompleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ipcsim_transfers_completed_total",
				Help: "Total number of completed data transfers",
			},
		),
		DeadlocksDetected: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ipcsim_deadlocks_detected_total",
				Help: "Total number of deadlock cycles detected",
			},
		),

		ProcessesLive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ipcsim_processes",
				Help: "Number of live simulated processes",
			},
		),
		ConnectionsLive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ipcsim_connections",
				Help: "Number of live connections",
			},
		),
		TransfersLive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ipcsim_transfers_in_flight",
				Help: "Number of in-flight data transfers",
			},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ipcsim_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipcsim_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "kind"},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ipcsim_uptime_seconds",
				Help: "Backend uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// IncAcquisition records a successful acquisition
func (m *Metrics) IncAcquisition(connType, operation string) {
	m.Acquisitions.WithLabelValues(connType, operation).Inc()
}

// IncAcquisitionFailure records a failed acquisition
func (m *Metrics) IncAcquisitionFailure(connType, code string) {
	m.AcquisitionFailures.WithLabelValues(connType, code).Inc()
}

// IncTransfersCompleted increments the completed transfer counter
func (m *Metrics) IncTransfersCompleted() {
	m.TransfersCompleted.Inc()
}

// IncDeadlocks increments the deadlock counter
func (m *Metrics) IncDeadlocks() {
	m.DeadlocksDetected.Inc()
}

// SetProcesses sets the live process gauge
func (m *Metrics) SetProcesses(count int) {
	m.ProcessesLive.Set(float64(count))
}

// SetConnections sets the live connection gauge
func (m *Metrics) SetConnections(count int) {
	m.ConnectionsLive.Set(float64(count))
}

// SetTransfers sets the in-flight transfer gauge
func (m *Metrics) SetTransfers(count int) {
	m.TransfersLive.Set(float64(count))
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, kind string) {
	m.WSMessages.WithLabelValues(direction, kind).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}
