// Package worker provides a bounded capacity limiter for CPU-bound work.
package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dstl/Apex-SAPIENT-Middleware/metric"
)

// Limiter bounds how much CPU-bound work runs at once across the whole
// process. The routing fabric is I/O-bound and cooperative; parsing,
// validation and conversion are not, so every connection funnels that work
// through one shared Limiter. The default capacity of 1 serializes it
// completely.
type Limiter struct {
	slots    chan struct{}
	capacity int

	// Statistics (atomic)
	acquired int64
	waiting  int64

	// Metrics configuration
	metrics         *Metrics
	metricsRegistry *metric.MetricsRegistry
	metricsPrefix   string
}

// Metrics holds Prometheus metrics for limiter monitoring
type Metrics struct {
	waiting  prometheus.Gauge
	acquired prometheus.Counter
	holdTime prometheus.Histogram
}

// Option represents a configuration option for the limiter
type Option func(*Limiter)

// WithMetricsRegistry configures the limiter to register metrics with the
// process registry
func WithMetricsRegistry(registry *metric.MetricsRegistry, prefix string) Option {
	return func(l *Limiter) {
		l.metricsRegistry = registry
		l.metricsPrefix = prefix
	}
}

// NewLimiter creates a limiter with the given capacity. A capacity of zero
// or less means the default of 1.
func NewLimiter(capacity int, opts ...Option) *Limiter {
	if capacity <= 0 {
		capacity = 1
	}

	l := &Limiter{
		slots:    make(chan struct{}, capacity),
		capacity: capacity,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.metricsRegistry != nil && l.metricsPrefix != "" {
		l.initializeMetrics()
	}

	return l
}

// initializeMetrics creates and registers metrics with the process registry
func (l *Limiter) initializeMetrics() {
	prefix := l.metricsPrefix

	waiting := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: prefix + "_waiting",
		Help: "Goroutines currently waiting for a limiter slot",
	})
	acquired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_acquired_total",
		Help: "Total limiter slot acquisitions",
	})
	holdTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    prefix + "_hold_duration_seconds",
		Help:    "Time slots were held by work functions",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
	})

	serviceName := "worker_limiter"
	_ = l.metricsRegistry.RegisterGauge(serviceName, prefix+"_waiting", waiting)
	_ = l.metricsRegistry.RegisterCounter(serviceName, prefix+"_acquired_total", acquired)
	_ = l.metricsRegistry.RegisterHistogram(serviceName, prefix+"_hold_duration_seconds", holdTime)

	l.metrics = &Metrics{
		waiting:  waiting,
		acquired: acquired,
		holdTime: holdTime,
	}
}

// Capacity returns the configured capacity.
func (l *Limiter) Capacity() int { return l.capacity }

// Do runs fn once a slot is free. It blocks until the slot is acquired or
// the context is cancelled; fn itself is never interrupted once started.
func (l *Limiter) Do(ctx context.Context, fn func()) error {
	atomic.AddInt64(&l.waiting, 1)
	if l.metrics != nil {
		l.metrics.waiting.Inc()
	}

	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		atomic.AddInt64(&l.waiting, -1)
		if l.metrics != nil {
			l.metrics.waiting.Dec()
		}
		return ctx.Err()
	}

	atomic.AddInt64(&l.waiting, -1)
	atomic.AddInt64(&l.acquired, 1)
	if l.metrics != nil {
		l.metrics.waiting.Dec()
		l.metrics.acquired.Inc()
	}

	start := time.Now()
	defer func() {
		if l.metrics != nil {
			l.metrics.holdTime.Observe(time.Since(start).Seconds())
		}
		<-l.slots
	}()

	fn()
	return nil
}

// Run runs fn under the limiter and returns its result. The zero value and
// the context error come back if the slot was never acquired.
func Run[T any](ctx context.Context, l *Limiter, fn func() T) (T, error) {
	var result T
	err := l.Do(ctx, func() {
		result = fn()
	})
	return result, err
}

// Stats returns current limiter statistics
func (l *Limiter) Stats() Stats {
	return Stats{
		Capacity: l.capacity,
		InUse:    len(l.slots),
		Waiting:  atomic.LoadInt64(&l.waiting),
		Acquired: atomic.LoadInt64(&l.acquired),
	}
}

// Stats represents limiter statistics
type Stats struct {
	Capacity int   `json:"capacity"`
	InUse    int   `json:"in_use"`
	Waiting  int64 `json:"waiting"`
	Acquired int64 `json:"acquired"`
}
