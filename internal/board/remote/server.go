package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/peak-flow/boardsync/internal/board/schema"
)

// ServerConfig holds remote server configuration.
type ServerConfig struct {
	// Addr to listen on (default: 127.0.0.1:8787)
	Addr string `mapstructure:"addr"`

	// Secret enables HS256 bearer auth on /v1 routes when non-empty.
	Secret string `mapstructure:"secret"`

	// RateLimit is requests per second allowed per client address; 0 disables it.
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      "127.0.0.1:8787",
		RateLimit: 50,
		Burst:     100,
	}
}

type upsertRequest struct {
	Card        schema.RemoteCard `json:"card"`
	BaseVersion int64             `json:"base_version"`
}

type upsertResponse struct {
	Version int64 `json:"version"`
}

type conflictResponse struct {
	Error         string             `json:"error"`
	ServerVersion int64              `json:"server_version"`
	Card          *schema.RemoteCard `json:"card"`
}

type listResponse struct {
	Cards []Record `json:"cards"`
}

// Server exposes an Authority over HTTP.
type Server struct {
	authority Authority
	cfg       ServerConfig
	logger    *log.Logger

	listener net.Listener
	server   *http.Server
	wg       sync.WaitGroup
}

// NewServer wraps authority. If logger is nil, a default logger writing to
// stderr is used.
func NewServer(authority Authority, cfg ServerConfig, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultServerConfig().Addr
	}
	return &Server{authority: authority, cfg: cfg, logger: logger}
}

// Handler builds the router. It is exported for httptest.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			burst := s.cfg.Burst
			if burst < 1 {
				burst = 1
			}
			r.Use(newClientLimiter(s.cfg.RateLimit, burst).middleware)
		}
		if s.cfg.Secret != "" {
			r.Use(requireToken(s.cfg.Secret))
		}
		r.Get("/cards", s.handleList)
		r.Put("/cards/{id}", s.handleUpsert)
		r.Delete("/cards/{id}", s.handleDelete)
	})
	return r
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Remote authority listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.wg.Wait()
	s.logger.Println("Remote authority stopped")
	return nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h, ok := s.authority.(interface{ Health(context.Context) error }); ok {
		if err := h.Health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	lister, ok := s.authority.(Lister)
	if !ok {
		writeError(w, http.StatusNotImplemented, "listing not supported")
		return
	}
	records, err := lister.List(r.Context())
	if err != nil {
		s.writeAuthorityError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Cards: records})
}

func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Card.ID != id {
		writeError(w, http.StatusBadRequest, "card id does not match path")
		return
	}

	version, err := s.authority.Upsert(r.Context(), req.Card, req.BaseVersion)
	if err != nil {
		s.writeAuthorityError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, upsertResponse{Version: version})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.authority.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeAuthorityError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeAuthorityError(w http.ResponseWriter, err error) {
	if ce, ok := IsConflict(err); ok {
		writeJSON(w, http.StatusConflict, conflictResponse{
			Error:         "version conflict",
			ServerVersion: ce.ServerVersion,
			Card:          ce.Remote,
		})
		return
	}
	switch {
	case errors.Is(err, ErrRejected):
		writeError(w, http.StatusBadRequest, err.Error())
	case IsTransient(err):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Printf("Authority error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
