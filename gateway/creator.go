package gateway

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dstl/Apex-SAPIENT-Middleware/errors"
	"github.com/dstl/Apex-SAPIENT-Middleware/idmap"
	"github.com/dstl/Apex-SAPIENT-Middleware/message"
)

// Handler is one connection's state machine. The server calls HandleMessage
// for every parsed record in receipt order, and HandleClosed exactly once
// when the connection ends, whatever the reason.
type Handler interface {
	HandleMessage(rec *message.Record)
	HandleClosed()
}

// ConnectionConfig carries the per-connection settings a handler needs.
type ConnectionConfig struct {
	// ForwardAll gives a Parent the full message stream instead of only
	// high-level traffic.
	ForwardAll bool
}

// Deps carries the collaborators a Creator needs.
type Deps struct {
	Logger *slog.Logger
	IDs    *idmap.Registry
}

// Creator owns the SharedData for one gateway and builds a Handler per
// accepted connection.
type Creator struct {
	logger *slog.Logger
	shared *SharedData
	prevID atomic.Int64
}

// NewCreator validates dependencies and builds a creator.
func NewCreator(deps Deps, opts Options) (*Creator, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("gateway.NewCreator: missing logger")
	}
	if deps.IDs == nil {
		return nil, fmt.Errorf("gateway.NewCreator: missing identifier registry")
	}
	if f := opts.DetectionFilter; f.Enable && (f.Threshold <= 0 || f.Threshold >= 1) {
		deps.Logger.Warn("invalid detection confidence threshold", "threshold", f.Threshold)
	}
	return &Creator{
		logger: deps.Logger.With("component", "gateway"),
		shared: NewSharedData(deps.Logger, deps.IDs, opts),
	}, nil
}

// Shared returns the gateway's routing state.
func (c *Creator) Shared() *SharedData { return c.shared }

// Create builds the handler for a new connection and assigns its id.
func (c *Creator) Create(connType string, cfg ConnectionConfig, w *ConnectionWriter) (int64, Handler, error) {
	if w == nil {
		return 0, nil, fmt.Errorf("gateway.Create: missing writer")
	}
	id := c.prevID.Add(1)
	logger := c.logger.With("connection", id, "type", connType)
	switch connType {
	case "Child":
		return id, newChild(c.shared, w, logger), nil
	case "Peer":
		return id, newPeer(c.shared, w, logger), nil
	case "Parent":
		return id, newParent(c.shared, w, logger, cfg.ForwardAll), nil
	case "Recorder":
		return id, newRecorder(c.shared), nil
	}
	return 0, nil, fmt.Errorf("gateway.Create: unknown connection type %q: %w",
		connType, errors.ErrInvalidConfig)
}

// recoverToFatal is the single panic boundary per handler invocation: a
// panicking stage becomes a Fatal error on the record, which tears the
// connection down through the normal path.
func recoverToFatal(rec *message.Record) {
	if p := recover(); p != nil {
		rec.AddError(errors.FromPanic(p))
	}
}
