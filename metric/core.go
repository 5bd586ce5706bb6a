package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the core gateway metrics every Apex process exposes.
type Metrics struct {
	// Connection metrics
	ConnectionsOpen  *prometheus.GaugeVec
	ConnectionsTotal *prometheus.CounterVec
	Disconnects      *prometheus.CounterVec

	// Message metrics
	MessagesReceived  *prometheus.CounterVec
	MessagesForwarded *prometheus.CounterVec
	MessageErrors     *prometheus.CounterVec
	BytesReceived     *prometheus.CounterVec

	// Pipeline metrics
	ParseDuration     *prometheus.HistogramVec
	ReceiptQueueDepth *prometheus.GaugeVec

	// Storage metrics
	StorageQueueDepth prometheus.Gauge
	StorageBatches    prometheus.Counter
	StorageRollovers  prometheus.Counter
}

// NewMetrics creates the core metric set. Nothing is registered until the
// instance is handed to a MetricsRegistry.
func NewMetrics() *Metrics {
	return &Metrics{
		ConnectionsOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "apex",
				Subsystem: "connections",
				Name:      "open",
				Help:      "Currently open connections",
			},
			[]string{"type"},
		),

		ConnectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apex",
				Subsystem: "connections",
				Name:      "total",
				Help:      "Total connections accepted or dialed",
			},
			[]string{"type", "format"},
		),

		Disconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apex",
				Subsystem: "connections",
				Name:      "disconnects_total",
				Help:      "Total connection teardowns",
			},
			[]string{"type", "reason"},
		),

		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apex",
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Total messages framed off the wire",
			},
			[]string{"type", "kind"},
		),

		MessagesForwarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apex",
				Subsystem: "messages",
				Name:      "forwarded_total",
				Help:      "Total message deliveries to other connections",
			},
			[]string{"type"},
		),

		MessageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apex",
				Subsystem: "messages",
				Name:      "errors_total",
				Help:      "Total messages carrying an error record",
			},
			[]string{"severity"},
		),

		BytesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apex",
				Subsystem: "messages",
				Name:      "received_bytes_total",
				Help:      "Total payload bytes framed off the wire",
			},
			[]string{"type"},
		),

		ParseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "apex",
				Subsystem: "pipeline",
				Name:      "parse_duration_seconds",
				Help:      "Time spent decoding, validating and converting one message",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"format"},
		),

		ReceiptQueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "apex",
				Subsystem: "pipeline",
				Name:      "receipt_queue_depth",
				Help:      "Messages framed but not yet processed, per connection type",
			},
			[]string{"type"},
		),

		StorageQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "apex",
				Subsystem: "storage",
				Name:      "queue_depth",
				Help:      "Records waiting for the background database writer",
			},
		),

		StorageBatches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "apex",
				Subsystem: "storage",
				Name:      "batches_total",
				Help:      "Total database write batches committed",
			},
		),

		StorageRollovers: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "apex",
				Subsystem: "storage",
				Name:      "rollovers_total",
				Help:      "Total database segment rollovers",
			},
		),
	}
}

// RecordConnectionOpened tracks a new connection of the given type.
func (c *Metrics) RecordConnectionOpened(connType, format string) {
	c.ConnectionsOpen.WithLabelValues(connType).Inc()
	c.ConnectionsTotal.WithLabelValues(connType, format).Inc()
}

// RecordConnectionClosed tracks a teardown with its reason.
func (c *Metrics) RecordConnectionClosed(connType, reason string) {
	c.ConnectionsOpen.WithLabelValues(connType).Dec()
	c.Disconnects.WithLabelValues(connType, reason).Inc()
}

// RecordMessageReceived counts a framed message and its payload size.
func (c *Metrics) RecordMessageReceived(connType, kind string, size int) {
	c.MessagesReceived.WithLabelValues(connType, kind).Inc()
	c.BytesReceived.WithLabelValues(connType).Add(float64(size))
}

// RecordMessageForwarded counts deliveries of one message.
func (c *Metrics) RecordMessageForwarded(connType string, count int) {
	if count > 0 {
		c.MessagesForwarded.WithLabelValues(connType).Add(float64(count))
	}
}

// RecordMessageError counts a message-level error by severity.
func (c *Metrics) RecordMessageError(severity string) {
	c.MessageErrors.WithLabelValues(severity).Inc()
}

// RecordParseDuration records the pipeline time for one message.
func (c *Metrics) RecordParseDuration(format string, duration time.Duration) {
	c.ParseDuration.WithLabelValues(format).Observe(duration.Seconds())
}

// RecordStorageBatch counts one committed write batch.
func (c *Metrics) RecordStorageBatch() {
	c.StorageBatches.Inc()
}

// RecordStorageRollover counts one segment rollover.
func (c *Metrics) RecordStorageRollover() {
	c.StorageRollovers.Inc()
}
