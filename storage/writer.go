package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dstl/Apex-SAPIENT-Middleware/errors"
	"github.com/dstl/Apex-SAPIENT-Middleware/message"
	"github.com/dstl/Apex-SAPIENT-Middleware/metric"
)

// messageChunkSize caps one insert transaction. Batching amortizes the
// per-transaction fsync cost without holding the write lock for long.
const messageChunkSize = 50

// drainInterval bounds how long a queued write can wait, and doubles as the
// rollover check cadence when the gateway is idle.
const drainInterval = time.Second

// RolloverConfig schedules segment rotation.
type RolloverConfig struct {
	Enabled bool
	// Unit is one of "weeks", "days", "hours", "minutes" or "seconds".
	Unit string
	// Value counts Units per segment; must be at least 1 when enabled.
	Value int
}

// Interval returns the configured segment lifetime. Disabled configs get a
// 52-week interval so the timer logic stays uniform.
func (c RolloverConfig) Interval() (time.Duration, error) {
	if !c.Enabled {
		return 52 * 7 * 24 * time.Hour, nil
	}
	if c.Value < 1 {
		return 0, fmt.Errorf("%w: rollover value %d, must be at least 1",
			errors.ErrInvalidConfig, c.Value)
	}
	var unit time.Duration
	switch c.Unit {
	case "weeks":
		unit = 7 * 24 * time.Hour
	case "days":
		unit = 24 * time.Hour
	case "hours":
		unit = time.Hour
	case "minutes":
		unit = time.Minute
	case "seconds":
		unit = time.Second
	default:
		return 0, fmt.Errorf("%w: unknown rollover unit %q", errors.ErrInvalidConfig, c.Unit)
	}
	return time.Duration(c.Value) * unit, nil
}

// WriterDeps are the Writer's collaborators.
type WriterDeps struct {
	Logger *slog.Logger
	// Metrics is optional.
	Metrics *metric.Metrics
}

// WriterOptions fixes the Writer's behavior from configuration.
type WriterOptions struct {
	// Path is the initial segment file.
	Path string
	// ConversionEnabled is recorded in each segment's Version row.
	ConversionEnabled bool
	Rollover          RolloverConfig
}

// Writer serializes all audit writes onto one background task. Callbacks
// enqueue and return immediately so the network edge never blocks on disk;
// Run drains the queue in arrival order, batching consecutive message
// records, and rotates segments on schedule.
type Writer struct {
	logger  *slog.Logger
	metrics *metric.Metrics
	opts    WriterOptions

	interval     time.Duration
	nextRollover time.Time

	mu      sync.Mutex
	store   *Store
	pending []any
	wake    chan struct{}
}

// NewWriter opens the initial segment and builds the writer. Run must be
// started for queued writes to reach disk.
func NewWriter(deps WriterDeps, opts WriterOptions) (*Writer, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("%w: storage writer requires a logger", errors.ErrMissingConfig)
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("%w: storage writer requires a database path", errors.ErrMissingConfig)
	}
	interval, err := opts.Rollover.Interval()
	if err != nil {
		return nil, err
	}
	store, err := Open(opts.Path, opts.ConversionEnabled)
	if err != nil {
		return nil, err
	}
	return &Writer{
		logger:       deps.Logger.With("component", "storage"),
		metrics:      deps.Metrics,
		opts:         opts,
		interval:     interval,
		nextRollover: time.Now().Add(interval),
		store:        store,
		wake:         make(chan struct{}, 1),
	}, nil
}

// Store returns the current segment. Callers must not retain it across
// rollovers; fetch it per query.
func (w *Writer) Store() *Store {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.store
}

// OnConnect queues a connection row. Matches server.Callbacks.
func (w *Writer) OnConnect(c message.Connection) { w.enqueue(c) }

// OnMessage queues a message record. Matches server.Callbacks.
func (w *Writer) OnMessage(r *message.Record) { w.enqueue(r) }

// OnDisconnect queues a disconnection update. Matches server.Callbacks.
func (w *Writer) OnDisconnect(d message.Disconnection) { w.enqueue(d) }

func (w *Writer) enqueue(item any) {
	w.mu.Lock()
	w.pending = append(w.pending, item)
	depth := len(w.pending)
	w.mu.Unlock()
	if w.metrics != nil {
		w.metrics.StorageQueueDepth.Set(float64(depth))
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Writer) takePending() []any {
	w.mu.Lock()
	defer w.mu.Unlock()
	items := w.pending
	w.pending = nil
	return items
}

// Run drains queued writes until the context is cancelled, then flushes
// whatever is still pending and closes the segment.
func (w *Writer) Run(ctx context.Context) error {
	w.logger.Info("storage writer started", "path", w.store.Path())
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		w.checkRollover()
		if err := w.drain(); err != nil {
			w.closeStore()
			return err
		}

		select {
		case <-ctx.Done():
			err := w.drain()
			w.closeStore()
			w.logger.Info("storage writer stopped")
			return err
		case <-w.wake:
		case <-ticker.C:
		}
	}
}

func (w *Writer) closeStore() {
	if err := w.Store().Close(); err != nil {
		w.logger.Warn("segment close failed", "error", err)
	}
}

// drain writes all currently queued items in arrival order. Consecutive
// message records share a transaction, chunked so one huge backlog cannot
// monopolize the database.
func (w *Writer) drain() error {
	items := w.takePending()
	if w.metrics != nil {
		w.metrics.StorageQueueDepth.Set(0)
	}
	store := w.Store()

	var batch []*message.Record
	flush := func() error {
		for len(batch) > 0 {
			chunk := batch
			if len(chunk) > messageChunkSize {
				chunk = chunk[:messageChunkSize]
			}
			if err := store.InsertMessages(chunk); err != nil {
				return err
			}
			if w.metrics != nil {
				w.metrics.RecordStorageBatch()
			}
			batch = batch[len(chunk):]
		}
		return nil
	}

	for _, item := range items {
		rec, isRecord := item.(*message.Record)
		if isRecord {
			batch = append(batch, rec)
			continue
		}
		if err := flush(); err != nil {
			return err
		}
		switch v := item.(type) {
		case message.Connection:
			if err := store.InsertConnection(v); err != nil {
				return err
			}
		case message.Disconnection:
			if err := store.UpdateDisconnection(v); err != nil {
				return err
			}
		}
	}
	return flush()
}

// checkRollover rotates the segment when its lifetime has elapsed. A failed
// rotation keeps writing to the current segment and retries next interval.
func (w *Writer) checkRollover() {
	now := time.Now()
	if now.Before(w.nextRollover) {
		return
	}
	w.nextRollover = now.Add(w.interval)
	if !w.opts.Rollover.Enabled {
		return
	}

	old := w.Store()
	next, err := Rollover(old, now.UTC(), w.opts.ConversionEnabled)
	if err != nil {
		w.logger.Error("segment rollover failed", "error", err)
		return
	}
	w.mu.Lock()
	w.store = next
	w.mu.Unlock()
	if err := old.Close(); err != nil {
		w.logger.Warn("old segment close failed", "path", old.Path(), "error", err)
	}
	if w.metrics != nil {
		w.metrics.RecordStorageRollover()
	}
	w.logger.Info("segment rolled over", "path", next.Path())
}
