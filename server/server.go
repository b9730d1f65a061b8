// Package server exposes the query façade over WebSocket. Each connection
// speaks a small JSON protocol: document lifecycle notifications plus hover,
// completion and diagnostics requests.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/typewell/typewell/config"
	"github.com/typewell/typewell/engine"
	"github.com/typewell/typewell/vfs"
)

// QueryService is what a connection queries against. The consistency proxy
// satisfies it.
type QueryService interface {
	engine.QueryOps
	SnapshotID() string
}

// Server accepts WebSocket clients and routes their requests to the query
// service. All connections share one document overlay; the per-connection
// state tracks which documents each client opened so they can be cleaned up
// on disconnect.
type Server struct {
	cfg     config.ServerConfig
	service QueryService
	overlay *vfs.Overlay
	logger  *zap.SugaredLogger

	httpServer *http.Server

	mu    sync.Mutex
	conns map[string]*clientConn
}

// NewServer creates a query server
func NewServer(cfg config.ServerConfig, service QueryService, overlay *vfs.Overlay, logger *zap.SugaredLogger) *Server {
	return &Server{
		cfg:     cfg,
		service: service,
		overlay: overlay,
		logger:  logger,
		conns:   make(map[string]*clientConn),
	}
}

// Handler returns the HTTP handler serving the WebSocket endpoint
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}

// Start begins serving and blocks until the listener fails or Shutdown runs
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	s.logger.Infow("query server listening", "addr", addr)

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains existing ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// checkOrigin validates the WebSocket origin against the configured allowed
// origins. Requests without an Origin header (direct clients, tests) are
// allowed. Prefix matching admits any port on an allowed host.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	allowed := s.cfg.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"http://localhost", "https://localhost"}
	}
	for _, prefix := range allowed {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

func (s *Server) writeTimeout() time.Duration {
	if s.cfg.WriteTimeoutSecond <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.cfg.WriteTimeoutSecond) * time.Second
}

func (s *Server) maxDocsPerClient() int {
	if s.cfg.MaxDocsPerClient <= 0 {
		return 100
	}
	return s.cfg.MaxDocsPerClient
}

// SetService swaps the query service, used when a config reload rebuilds
// the acquisition pipeline. In-flight requests finish against the service
// they started with.
func (s *Server) SetService(service QueryService) {
	s.mu.Lock()
	s.service = service
	s.mu.Unlock()
}

func (s *Server) queryService() QueryService {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.service
}

func (s *Server) register(c *clientConn) {
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
}

func (s *Server) deregister(c *clientConn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
}

// ConnCount returns the number of live client connections
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
