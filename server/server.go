package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dstl/Apex-SAPIENT-Middleware/errors"
	"github.com/dstl/Apex-SAPIENT-Middleware/gateway"
	"github.com/dstl/Apex-SAPIENT-Middleware/message"
	"github.com/dstl/Apex-SAPIENT-Middleware/metric"
	"github.com/dstl/Apex-SAPIENT-Middleware/parse"
	"github.com/dstl/Apex-SAPIENT-Middleware/pkg/retry"
	"github.com/dstl/Apex-SAPIENT-Middleware/pkg/worker"
	"github.com/dstl/Apex-SAPIENT-Middleware/sapient"
	"github.com/dstl/Apex-SAPIENT-Middleware/validate"
	"github.com/dstl/Apex-SAPIENT-Middleware/xmlcodec"
)

// DefaultMessageMaxSizeKB bounds one framed message when the configuration
// does not say otherwise.
const DefaultMessageMaxSizeKB = 1024

// Disconnect reasons recorded in the audit store.
const (
	reasonShuttingDown = "Apex shutting down"
	reasonClosed       = "Connection closed"
)

// dialConfig dials outbound connections persistently at a fixed interval.
var dialConfig = retry.Dialer()

// Callbacks are invoked by connection tasks as traffic flows. OnMessage runs
// on the processing path, so implementations must hand work off rather than
// block. Any callback may be nil.
type Callbacks struct {
	OnConnect    func(message.Connection)
	OnMessage    func(*message.Record)
	OnDisconnect func(message.Disconnection)
}

// ConnectionSpec describes one configured port or outbound target.
type ConnectionSpec struct {
	// Type is the connection role: Child, Peer, Parent or Recorder.
	Type string
	// Format is the wire encoding; defaults by the conversion setting.
	Format gateway.Encoding
	// Version is the protocol version; defaults by encoding.
	Version sapient.Version
	// Host is the listen host (empty for all interfaces) or dial target.
	Host string
	Port int
	// Outbound dials out with persistent retry instead of listening.
	Outbound bool
	// ForwardAll gives a Parent the full message stream.
	ForwardAll bool
}

// Deps carries the collaborators a Server needs.
type Deps struct {
	Logger  *slog.Logger
	Creator *gateway.Creator
	Legacy  *xmlcodec.LegacyTranslator
	Limiter *worker.Limiter
	// Metrics is optional.
	Metrics *metric.Metrics
}

// Options fixes the server's behavior at construction.
type Options struct {
	Connections      []ConnectionSpec
	MessageMaxSizeKB int
	EnableConversion bool
	AutoAssignNodeID bool
	Validation       validate.Options
	Callbacks        Callbacks
}

// Server owns the accept and dial loops and every connection's task group.
type Server struct {
	logger  *slog.Logger
	creator *gateway.Creator
	legacy  *xmlcodec.LegacyTranslator
	limiter *worker.Limiter
	metrics *metric.Metrics
	opts    Options

	prevMessageID atomic.Int64
	started       chan struct{}
}

// New validates dependencies, normalizes every connection spec, and builds
// the server.
func New(deps Deps, opts Options) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("server.New: missing logger")
	}
	if deps.Creator == nil {
		return nil, fmt.Errorf("server.New: missing gateway creator")
	}
	if deps.Legacy == nil {
		return nil, fmt.Errorf("server.New: missing legacy translator")
	}
	if deps.Limiter == nil {
		return nil, fmt.Errorf("server.New: missing worker limiter")
	}
	if len(opts.Connections) == 0 {
		return nil, fmt.Errorf("server.New: no connections configured: %w", errors.ErrMissingConfig)
	}
	if opts.MessageMaxSizeKB <= 0 {
		opts.MessageMaxSizeKB = DefaultMessageMaxSizeKB
	}
	for i, spec := range opts.Connections {
		normalized, err := NormalizeSpec(spec, opts.EnableConversion)
		if err != nil {
			return nil, err
		}
		opts.Connections[i] = normalized
	}
	return &Server{
		logger:  deps.Logger.With("component", "server"),
		creator: deps.Creator,
		legacy:  deps.Legacy,
		limiter: deps.Limiter,
		metrics: deps.Metrics,
		opts:    opts,
		started: make(chan struct{}),
	}, nil
}

// NormalizeSpec fills a connection spec's defaults and rejects impossible
// combinations. Format defaults to XML when conversion is on, binary
// otherwise; the version defaults to the encoding's natural one.
func NormalizeSpec(spec ConnectionSpec, enableConversion bool) (ConnectionSpec, error) {
	switch spec.Type {
	case "Child", "Peer", "Parent", "Recorder":
	default:
		return spec, fmt.Errorf("server: unknown connection type %q: %w",
			spec.Type, errors.ErrInvalidConfig)
	}
	if spec.Format == "" {
		if enableConversion {
			spec.Format = gateway.EncodingXML
		} else {
			spec.Format = gateway.EncodingBinary
		}
	}
	if spec.Format != gateway.EncodingXML && spec.Format != gateway.EncodingBinary {
		return spec, fmt.Errorf("server: unknown format %q: %w", spec.Format, errors.ErrInvalidConfig)
	}
	if spec.Version == sapient.VersionUnknown {
		if spec.Format == gateway.EncodingXML {
			spec.Version = sapient.VersionXML6
		} else {
			spec.Version = sapient.VersionLatest
		}
	}
	if spec.Format == gateway.EncodingXML && spec.Version != sapient.VersionXML6 {
		return spec, fmt.Errorf("server: XML connections speak %s, not %s: %w",
			sapient.VersionXML6, spec.Version, errors.ErrInvalidConfig)
	}
	if spec.Port <= 0 || spec.Port > 65535 {
		return spec, fmt.Errorf("server: invalid port %d: %w", spec.Port, errors.ErrInvalidConfig)
	}
	return spec, nil
}

// Started is closed once every configured listener is accepting. Outbound
// dials may still be in progress.
func (s *Server) Started() <-chan struct{} { return s.started }

// Run opens all listeners, starts the dial loops, and blocks until the
// context is cancelled or a listener fails.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	var listeners []net.Listener
	closeAll := func() {
		for _, ln := range listeners {
			_ = ln.Close()
		}
	}

	for _, spec := range s.opts.Connections {
		spec := spec
		if spec.Outbound {
			g.Go(func() error {
				s.dialLoop(gctx, spec)
				return nil
			})
			continue
		}
		addr := net.JoinHostPort(spec.Host, strconv.Itoa(spec.Port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			closeAll()
			return errors.Wrap(err, "Server", "Run", "listen on "+addr)
		}
		s.logger.Info("listening", "type", spec.Type, "format", spec.Format, "addr", addr)
		listeners = append(listeners, ln)
		g.Go(func() error { return s.acceptLoop(gctx, g, ln, spec) })
	}

	// Unblock Accept on shutdown.
	g.Go(func() error {
		<-gctx.Done()
		closeAll()
		return nil
	})

	close(s.started)
	err := g.Wait()
	if stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context, g *errgroup.Group, ln net.Listener, spec ConnectionSpec) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "Server", "acceptLoop", "accept on "+ln.Addr().String())
		}
		g.Go(func() error {
			s.serveConn(ctx, conn, spec)
			return nil
		})
	}
}

func (s *Server) dialLoop(ctx context.Context, spec ConnectionSpec) {
	addr := net.JoinHostPort(spec.Host, strconv.Itoa(spec.Port))
	var dialer net.Dialer
	for ctx.Err() == nil {
		conn, err := retry.DoWithResult(ctx, dialConfig, func() (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", addr)
		})
		if err != nil {
			continue
		}
		s.logger.Info("outbound connection established", "type", spec.Type, "addr", addr)
		s.serveConn(ctx, conn, spec)
	}
}

// disconnectError carries a human-readable teardown reason through the
// connection's task group.
type disconnectError struct{ reason string }

func (e *disconnectError) Error() string { return e.reason }

// serveConn runs one connection to completion. Connection failures never
// propagate; they end the connection and are recorded as its disconnect
// reason.
func (s *Server) serveConn(ctx context.Context, conn net.Conn, spec ConnectionSpec) {
	defer conn.Close()
	logger := s.logger.With("type", spec.Type, "remote", conn.RemoteAddr().String())

	maxBytes := s.opts.MessageMaxSizeKB * 1024
	bw := newBufferedWriter(conn, maxBytes*10)
	sink := func(payload []byte) error {
		return bw.Write(Frame(spec.Format, payload))
	}
	w, err := gateway.NewConnectionWriter(sink, s.legacy, spec.Format, spec.Version)
	if err != nil {
		logger.Error("connection setup failed", "error", err)
		return
	}
	id, handler, err := s.creator.Create(spec.Type, gateway.ConnectionConfig{ForwardAll: spec.ForwardAll}, w)
	if err != nil {
		logger.Error("connection setup failed", "error", err)
		return
	}
	logger = logger.With("connection", id)

	parser, err := parse.New(parse.Deps{
		Logger:    s.logger,
		Validator: validate.New(s.opts.Validation),
		IDs:       s.creator.Shared().IDs(),
		Legacy:    s.legacy,
	}, parse.Options{
		Version:          spec.Version,
		EnableConversion: s.opts.EnableConversion,
		AutoAssignNodeID: s.opts.AutoAssignNodeID,
	})
	if err != nil {
		logger.Error("connection setup failed", "error", err)
		handler.HandleClosed()
		return
	}

	if cb := s.opts.Callbacks.OnConnect; cb != nil {
		cb(message.Connection{
			ID:     id,
			Type:   spec.Type,
			Format: string(spec.Format),
			Peer:   conn.RemoteAddr().String(),
			Time:   time.Now().UTC(),
		})
	}
	if s.metrics != nil {
		s.metrics.RecordConnectionOpened(spec.Type, string(spec.Format))
	}
	logger.Info("connection opened")

	queue := newReceiptQueue()
	reader := newFrameReader(conn, spec.Format, maxBytes)

	cg, cctx := errgroup.WithContext(ctx)
	// Close the socket as soon as any task fails so blocked reads unwind.
	stop := context.AfterFunc(cctx, func() { conn.Close() })
	defer stop()

	cg.Go(func() error { return bw.Run(cctx) })
	cg.Go(func() error { return s.readLoop(reader, id, queue) })
	cg.Go(func() error { return s.processLoop(cctx, queue, parser, handler, spec, logger) })

	werr := cg.Wait()

	reason := reasonClosed
	var de *disconnectError
	switch {
	case ctx.Err() != nil:
		reason = reasonShuttingDown
	case stderrors.As(werr, &de):
		reason = de.reason
	case werr != nil:
		reason = werr.Error()
	}

	handler.HandleClosed()
	if cb := s.opts.Callbacks.OnDisconnect; cb != nil {
		cb(message.Disconnection{
			ConnectionID: id,
			Time:         time.Now().UTC(),
			Reason:       reason,
		})
	}
	if s.metrics != nil {
		s.metrics.RecordConnectionClosed(spec.Type, disconnectCategory(ctx, werr))
	}
	logger.Info("connection closed", "reason", reason)
}

func disconnectCategory(ctx context.Context, werr error) string {
	var de *disconnectError
	switch {
	case ctx.Err() != nil:
		return "shutdown"
	case stderrors.As(werr, &de) && de.reason == reasonClosed:
		return "closed"
	default:
		return "error"
	}
}

// readLoop frames messages off the wire as fast as possible so receipt
// timestamps are not skewed by parser backlog.
func (s *Server) readLoop(reader *frameReader, connID int64, queue *receiptQueue) error {
	defer queue.Close()
	for {
		data, err := reader.Next()
		if err != nil {
			reason := reasonClosed
			if !stderrors.Is(err, io.EOF) && !isClosedConn(err) {
				reason = err.Error()
			}
			if pending := reader.Outstanding(); len(pending) > 0 {
				reason += fmt.Sprintf(" (%d read bytes outstanding: %s)",
					len(pending), previewBytes(pending))
			}
			return &disconnectError{reason: reason}
		}
		queue.Push(message.ReceivedData{
			ConnectionID: connID,
			MessageID:    s.prevMessageID.Add(1),
			Timestamp:    time.Now().UTC(),
			Data:         data,
		})
	}
}

func isClosedConn(err error) bool {
	return stderrors.Is(err, net.ErrClosed) || stderrors.Is(err, io.ErrClosedPipe)
}

// previewBytes renders the head of an unframed remainder for the disconnect
// reason.
func previewBytes(data []byte) string {
	const previewLen = 40
	if len(data) > previewLen {
		data = data[:previewLen]
	}
	return fmt.Sprintf("%q", data)
}

// processLoop pulls received messages in order, parses them under the worker
// limiter, and runs the connection's state machine.
func (s *Server) processLoop(ctx context.Context, queue *receiptQueue, parser *parse.Parser,
	handler gateway.Handler, spec ConnectionSpec, logger *slog.Logger) error {
	for {
		received, ok := queue.Pop(ctx)
		if !ok {
			return nil
		}
		if s.metrics != nil {
			s.metrics.ReceiptQueueDepth.WithLabelValues(spec.Type).Set(float64(queue.Len()))
		}

		start := time.Now()
		rec, err := worker.Run(ctx, s.limiter, func() *message.Record {
			if spec.Format == gateway.EncodingXML {
				return parser.XML(received)
			}
			return parser.Binary(received)
		})
		if err != nil {
			return nil
		}
		if s.metrics != nil {
			s.metrics.RecordParseDuration(string(spec.Format), time.Since(start))
			s.metrics.RecordMessageReceived(spec.Type, rec.TypeString(), len(received.Data))
		}

		handler.HandleMessage(rec)

		if rec.Error != nil {
			if s.metrics != nil {
				s.metrics.RecordMessageError(rec.Error.Severity.String())
			}
			if rec.Error.Severity >= errors.SeverityNoisy {
				logger.Warn("message error",
					"message", received.MessageID,
					"kind", rec.TypeString(),
					"severity", rec.Error.Severity.String(),
					"error", rec.Error.Description)
			}
		}
		if s.metrics != nil {
			s.metrics.RecordMessageForwarded(spec.Type, rec.ForwardedCount)
		}

		if errors.Stored(rec.Error) {
			if cb := s.opts.Callbacks.OnMessage; cb != nil {
				cb(rec)
			}
		}
		if errors.IsFatal(rec.Error) {
			// The message is stored first, then the connection goes down.
			return &disconnectError{reason: rec.Error.Description}
		}
	}
}
