// Package server implements the HTTP surface of the game-api gateway. It
// validates inbound requests through the access gate, dispatches them over
// a route table built at startup, and relays upstream responses in the
// standard envelope.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cursor2b-collab/vip-sub001/internal/access"
	"github.com/cursor2b-collab/vip-sub001/internal/config"
	"github.com/cursor2b-collab/vip-sub001/internal/database"
	"github.com/cursor2b-collab/vip-sub001/internal/upstream"
)

// Version is the application version, following semantic versioning.
const Version = "0.1.0"

// HealthResponse is the response body for the health check endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`    // "ok" for a healthy gateway
	Timestamp time.Time `json:"timestamp"` // Current server time
	Version   string    `json:"version"`   // Application version number
}

// route binds one inbound path to its allowed method and handler. Every
// gateway path accepts exactly one method; anything else is a 405.
type route struct {
	method string
	handle http.HandlerFunc
}

// Server is the gateway's HTTP server.
type Server struct {
	server *http.Server
	config *config.Config
	gate   *access.Gate
	client *upstream.Client
	db     *database.DB
	logger *zap.Logger
	routes map[string]route
}

// New creates the gateway server. db may be nil; the /logs route then
// reports the store as unavailable.
func New(cfg *config.Config, gate *access.Gate, client *upstream.Client, db *database.DB, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config: cfg,
		gate:   gate,
		client: client,
		db:     db,
		logger: logger,
	}
	s.routes = s.buildRoutes()
	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      http.HandlerFunc(s.handle),
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
		IdleTimeout:  cfg.RequestTimeout * 2,
	}
	return s
}

// Handler exposes the root handler for tests.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
}

// Start runs the HTTP server. It blocks until the server is shut down or an
// unrecoverable error occurs.
func (s *Server) Start() error {
	s.logger.Info("gateway listening", zap.String("addr", s.config.ListenAddr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete or the context to be canceled.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handle is the top-level request handler: CORS, preflight, access gate,
// then route dispatch. All errors end as envelope responses; nothing
// escapes to crash the process.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w, r)

	// Preflight never reaches the gate's auth checks.
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	path := s.normalizePath(r.URL.Path)

	// Health is liveness plumbing, exempt from the gate.
	if path == "/health" && r.Method == http.MethodGet {
		s.handleHealth(w, r)
		return
	}

	if _, err := s.gate.Validate(r); err != nil {
		s.writeDenied(w, r, err)
		return
	}

	rt, ok := s.routes[path]
	if !ok {
		s.writeError(w, http.StatusNotFound, http.StatusNotFound,
			"unknown route: "+path)
		return
	}
	if r.Method != rt.method {
		w.Header().Set("Allow", rt.method)
		s.writeError(w, http.StatusMethodNotAllowed, http.StatusMethodNotAllowed,
			"method "+r.Method+" not allowed for "+path)
		return
	}

	rt.handle(w, r)
}

// normalizePath strips the function-name prefix when present and defaults
// the empty path to the status operation. Defensive: the prefix may appear
// once or not at all depending on how the gateway is fronted.
func (s *Server) normalizePath(p string) string {
	if prefix := s.config.GameAPIPrefix; prefix != "" {
		p = strings.TrimPrefix(p, prefix)
	}
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "/status"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// setCORSHeaders reflects the caller's origin when allow-listed, falling
// back to the first configured origin. Without an allow-list the caller's
// origin is reflected as-is. Credentials are only allowed for a concrete
// origin, never together with the wildcard.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	allowed := "*"
	if len(s.config.AllowedOrigins) > 0 {
		allowed = s.config.AllowedOrigins[0]
		for _, o := range s.config.AllowedOrigins {
			if strings.EqualFold(origin, o) {
				allowed = origin
				break
			}
		}
	} else if origin != "" {
		allowed = origin
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", allowed)
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")
	h.Set("Access-Control-Max-Age", "86400")
	if allowed != "*" {
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Add("Vary", "Origin")
	}
}

// handleHealth reports liveness for load balancers and orchestration.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   Version,
	})
}
