// Package server exposes the analysis pipeline and chat over HTTP for
// the UI collaborator: REST for analyses and session management, SSE
// and websocket for live chat streaming.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/rxlens/rxlens/internal/analysis"
	"github.com/rxlens/rxlens/internal/chat"
	"github.com/rxlens/rxlens/internal/schedule"
	"github.com/rxlens/rxlens/internal/session"
	"github.com/rxlens/rxlens/internal/vision"
)

// Config holds server configuration.
type Config struct {
	Port     int
	AllowAll bool // allow all CORS origins (dev mode)

	// ChatParams are the default sampling parameters for chat turns;
	// requests may override them per turn.
	ChatParams vision.Params
}

// Server wires the stores and the pipeline behind the HTTP API.
type Server struct {
	cfg        Config
	sessions   *session.Store
	analyzer   *analysis.Analyzer
	chat       *chat.Streamer
	scheduler  *schedule.Generator
	router     chi.Router
	httpServer *http.Server
}

// New creates a server with all dependencies.
func New(cfg Config, sessions *session.Store, analyzer *analysis.Analyzer, chatStreamer *chat.Streamer, scheduler *schedule.Generator) *Server {
	s := &Server{
		cfg:       cfg,
		sessions:  sessions,
		analyzer:  analyzer,
		chat:      chatStreamer,
		scheduler: scheduler,
	}
	s.router = s.buildRouter()
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/prescriptions", func(r chi.Router) {
		r.Post("/", s.handleAnalyze)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Delete("/{id}", s.handleDelete)
		r.Post("/{id}/chat", s.handleChat)
		r.Get("/{id}/ws", s.handleWebSocket)
		r.Post("/{id}/resolve", s.handleResolve)
		r.Post("/{id}/schedule", s.handleSchedule)
	})

	return r
}

// Router returns the chi router, exposed for tests.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// Write timeout stays generous: chat responses stream for as
		// long as the model keeps producing tokens.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("server: rxlens listening on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
