// Package metric provides Prometheus-based metrics collection and the HTTP
// endpoint that exposes them.
//
// The package offers a centralized registry managing both the core gateway
// metrics (connections, message flow, pipeline timing, storage writer) and
// metrics registered by individual packages, plus a small HTTP server
// exposing everything in Prometheus format.
//
// # Basic Usage
//
// Setting up metrics collection and the HTTP server:
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        log.Printf("metrics server error: %v", err)
//	    }
//	}()
//	defer server.Stop()
//
//	core := registry.CoreMetrics()
//	core.RecordConnectionOpened("Child", "PROTO")
//	core.RecordMessageReceived("Child", "detection_report", 412)
//
// # Core Metrics
//
// All core metrics use the namespace "apex":
//
//   - apex_connections_open{type}, apex_connections_total{type,format},
//     apex_connections_disconnects_total{type,reason}
//   - apex_messages_received_total{type,kind}, apex_messages_forwarded_total{type},
//     apex_messages_errors_total{severity}, apex_messages_received_bytes_total{type}
//   - apex_pipeline_parse_duration_seconds{format},
//     apex_pipeline_receipt_queue_depth{type}
//   - apex_storage_queue_depth, apex_storage_batches_total,
//     apex_storage_rollovers_total
//
// # Package-Specific Metrics
//
// Packages register their own metrics through the MetricsRegistrar interface,
// which enables testing with mock registrars:
//
//	counter := prometheus.NewCounter(prometheus.CounterOpts{
//	    Name: "worker_acquired_total",
//	    Help: "Total limiter slot acquisitions",
//	})
//	err := registry.RegisterCounter("worker", "worker_acquired_total", counter)
//
// Registration returns an error on duplicate names; recording itself is
// lock-free per the Prometheus client's guarantees.
//
// # HTTP Server
//
// The server exposes three endpoints: the metrics path (default /metrics,
// OpenMetrics enabled), /health returning 200 OK, and a root HTML index.
// Start blocks; run it on its own goroutine and call Stop to shut down.
package metric
