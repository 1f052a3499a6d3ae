// Package api exposes the orchestrator to a page layer over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"swapflow/pkg/engine"
	"swapflow/pkg/form"
	"swapflow/pkg/types"
)

// Orchestrator is the engine surface the handlers drive.
type Orchestrator interface {
	Snapshot() engine.Snapshot
	UpdateFormValues(ctx context.Context, p form.Patch, opts engine.UpdateOpts) types.ActiveKey
	Wait()
	RunApproval(ctx context.Context) (string, error)
	RunAction(ctx context.Context) (string, error)
	ResetState()
	ConfirmWarning(confirmed bool)
	SetMax(ctx context.Context) (types.ActiveKey, error)
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Address        string
	AllowedOrigins []string
}

// DefaultServerConfig returns the configuration used when none is given.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:        "localhost:8080",
		AllowedOrigins: []string{"http://localhost:3000"},
	}
}

// Server wraps the HTTP server and provides lifecycle management.
type Server struct {
	cfg        ServerConfig
	httpServer *http.Server
	log        zerolog.Logger
}

// NewServer builds the router and binds it to the orchestrator.
func NewServer(cfg ServerConfig, orch Orchestrator, log zerolog.Logger) *Server {
	s := &Server{
		cfg: cfg,
		log: log.With().Str("component", "api").Logger(),
	}

	mux := chi.NewMux()
	mux.Use(s.requestLogger)
	mux.Use(s.recoverer)
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Timeout(60 * time.Second))

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	mux.Use(c.Handler)

	h := &handlers{orch: orch, log: s.log}
	mux.Route("/v1", func(r chi.Router) {
		r.Get("/state", h.state)
		r.Post("/form", h.updateForm)
		r.Post("/steps/approval", h.runApproval)
		r.Post("/steps/action", h.runAction)
		r.Post("/reset", h.reset)
		r.Post("/max", h.setMax)
		r.Post("/confirm", h.confirmWarning)
	})

	s.httpServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("address", s.cfg.Address).Msg("listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrProcessing),
		errors.Is(err, engine.ErrNotReady),
		errors.Is(err, engine.ErrConfirmationRequired):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrMissingProvider):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
