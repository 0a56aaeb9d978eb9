// Package devcollector is a local stand-in for the Kuyo collector. It
// accepts events over HTTP and hands them to a transport, usually one that
// prints them.
package devcollector

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/kuyo-dev/kuyo-go/pkg/kuyo"
	"github.com/kuyo-dev/kuyo-go/pkg/kuyo/transports/stderr"
)

// DefaultAddr matches the port of kuyo.DefaultEndpoint.
const DefaultAddr = ":4009"

// maxEventBytes bounds a single request body.
const maxEventBytes = 1 << 20

// Option configures a Server.
type Option func(*Server)

// WithAPIKey makes the server reject events whose x-api-key differs from key.
// Without it any non-empty key is accepted.
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithSink sets where accepted events go (default: stderr transport).
func WithSink(t kuyo.Transport) Option {
	return func(s *Server) {
		if t != nil {
			s.sink = t
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Server receives events on POST /api/events.
type Server struct {
	router *mux.Router
	sink   kuyo.Transport
	apiKey string
	logger *log.Logger

	received atomic.Int64
	rejected atomic.Int64
}

// New creates a server with its routes registered.
func New(opts ...Option) *Server {
	s := &Server{
		router: mux.NewRouter(),
		sink:   stderr.New(),
		logger: log.New(os.Stderr, "", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/api/events", s.handleEvent).Methods(http.MethodPost)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
}

// Handler returns the router wrapped with CORS, so browser SDKs can post
// events during development.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "x-api-key"},
	})
	return c.Handler(s.router)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("[Kuyo:DevCollector] Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Stats reports how many events were accepted and rejected.
func (s *Server) Stats() (received, rejected int64) {
	return s.received.Load(), s.rejected.Load()
}

type apiResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("x-api-key")
	switch {
	case key == "":
		s.reject(w, http.StatusUnauthorized, "missing x-api-key")
		return
	case s.apiKey != "" && key != s.apiKey:
		s.reject(w, http.StatusForbidden, "invalid x-api-key")
		return
	}

	var event kuyo.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes)).Decode(&event); err != nil {
		s.reject(w, http.StatusBadRequest, "invalid event: "+err.Error())
		return
	}
	if event.ID == "" {
		s.reject(w, http.StatusBadRequest, "invalid event: missing id")
		return
	}

	if err := s.sink.Send(r.Context(), event); err != nil {
		s.logger.Printf("[Kuyo:DevCollector] ERROR sink failed: %v", err)
		writeJSON(w, http.StatusBadGateway, apiResponse{Message: "sink failed"})
		return
	}
	s.received.Add(1)
	writeJSON(w, http.StatusAccepted, apiResponse{Success: true, ID: event.ID})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	received, rejected := s.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"received": received,
		"rejected": rejected,
	})
}

func (s *Server) reject(w http.ResponseWriter, status int, msg string) {
	s.rejected.Add(1)
	writeJSON(w, status, apiResponse{Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
