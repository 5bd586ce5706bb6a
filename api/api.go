package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dstl/Apex-SAPIENT-Middleware/errors"
	"github.com/dstl/Apex-SAPIENT-Middleware/storage"
)

// StoreProvider hands out the current audit segment. Implemented by the
// storage writer, whose segment changes at rollover; handlers fetch it per
// request and never retain it.
type StoreProvider interface {
	Store() *storage.Store
}

// Deps are the API server's collaborators.
type Deps struct {
	Logger   *slog.Logger
	Provider StoreProvider
}

// Options fixes the listen address and the advertised version.
type Options struct {
	// Host defaults to 127.0.0.1. The API is read-only but still exposes
	// node positions, so it binds loopback unless told otherwise.
	Host string
	// Port defaults to 8080.
	Port int
	// Version is reported by the root endpoint.
	Version string
}

// Server serves the read-only query API over the audit database.
type Server struct {
	logger   *slog.Logger
	provider StoreProvider
	opts     Options

	mu     sync.Mutex
	server *http.Server
}

// New validates dependencies and builds the server.
func New(deps Deps, opts Options) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("%w: api server requires a logger", errors.ErrMissingConfig)
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("%w: api server requires a store provider", errors.ErrMissingConfig)
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Port == 0 {
		opts.Port = 8080
	}
	return &Server{
		logger:   deps.Logger.With("component", "api"),
		provider: deps.Provider,
		opts:     opts,
	}, nil
}

// Handler returns the routing table, exposed separately for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleRoot)
	mux.HandleFunc("GET /registered", s.handleRegistered)
	mux.HandleFunc("GET /locations", s.handleLocations)
	mux.HandleFunc("GET /field_of_views", s.handleFieldOfViews)
	mux.HandleFunc("GET /detections", s.handleDetections)
	mux.HandleFunc("GET /detections/locations", s.handleDetectionLocations)
	mux.HandleFunc("GET /detections/associated_files", s.handleDetectionFiles)
	mux.HandleFunc("GET /node_definitions", s.handleNodeDefinitions)
	return mux
}

// Start blocks serving requests until Stop is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return errors.Wrap(fmt.Errorf("server already started"), "api", "Start", "start")
	}
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.server = server
	s.mu.Unlock()

	s.logger.Info("api server listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "api", "Start", "serve")
	}
	return nil
}

// Stop closes the listener. Safe to call when never started.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	err := s.server.Close()
	s.server = nil
	if err != nil {
		return errors.Wrap(err, "api", "Stop", "close")
	}
	return nil
}
