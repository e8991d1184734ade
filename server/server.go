// Package server exposes the print orchestrator over HTTP and a websocket
// event stream so point-of-sale front ends can submit jobs and follow them.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nixxel-company-limited/posprint/orchestrator"
)

const shutdownTimeout = 5 * time.Second

// Server is the HTTP bridge in front of an orchestrator.
type Server struct {
	orch     *orchestrator.Orchestrator
	address  string
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	listener net.Listener
	http     *http.Server
	running  bool
	stopping bool
	clients  map[*client]struct{}
	wg       sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New creates a new server instance
func New(orch *orchestrator.Orchestrator, address string, opts ...Option) *Server {
	s := &Server{
		orch:    orch,
		address: address,
		logger:  zap.NewNop(),
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the bridge serves local front ends on other origins
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("server")
	return s
}

// Start starts the server and blocks until Stop is called
func (s *Server) Start() error {
	s.logger.Info("starting server", zap.String("address", s.address), zap.String("mode", "blocking"))
	srv, ln, err := s.listen()
	if err != nil {
		return err
	}
	return s.serve(srv, ln)
}

// StartAsync starts the server in a goroutine (non-blocking)
func (s *Server) StartAsync() error {
	s.logger.Info("starting server", zap.String("address", s.address), zap.String("mode", "async"))
	srv, ln, err := s.listen()
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.serve(srv, ln); err != nil {
			s.logger.Error("server stopped unexpectedly", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) listen() (*http.Server, net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn("server already running")
		return nil, nil, fmt.Errorf("server already running")
	}

	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		s.logger.Error("failed to start server", zap.Error(err))
		return nil, nil, fmt.Errorf("failed to start server: %w", err)
	}

	s.listener = ln
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.running = true
	s.stopping = false
	s.logger.Info("server listening", zap.String("address", ln.Addr().String()))
	return s.http, ln, nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}
	return nil
}

// Stop shuts the HTTP server down and closes every event stream. The
// orchestrator is left running; its owner closes it.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.logger.Debug("stop called but server is not running")
		return nil
	}
	s.logger.Info("stopping server")
	s.running = false
	s.stopping = true
	srv := s.http
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(ctx)

	s.wg.Wait()
	if err != nil {
		s.logger.Error("shutdown failed", zap.Error(err))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Address returns the bound address while running, the configured one
// otherwise.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}

// Orchestrator returns the orchestrator the server fronts.
func (s *Server) Orchestrator() *orchestrator.Orchestrator {
	return s.orch
}
