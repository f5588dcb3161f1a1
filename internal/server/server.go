package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/metrics"
	"github.com/lazypower/recall/internal/ranking"
	"github.com/lazypower/recall/internal/store"
)

// Options configures a Server.
type Options struct {
	Version       string
	CORSOrigins   []string // empty allows localhost only
	PageSize      int
	MinScoreStage ranking.Stage
}

// Server is the recall HTTP API server.
type Server struct {
	view    store.View
	eng     *engine.Engine
	opts    Options
	router  chi.Router
	started time.Time
}

// New creates a Server over an engine and a read-only view of its database.
func New(view store.View, eng *engine.Engine, opts Options) *Server {
	s := &Server{
		view:    view,
		eng:     eng,
		opts:    opts,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(metrics.Middleware)

		r.Get("/health", s.handleHealth)
		r.Get("/search", s.handleSearch)

		r.Get("/memories", s.handleListMemories)
		r.Get("/memories/read", s.handleReadMemory)

		r.Get("/context", s.handleContext)
		r.Get("/concepts/similar", s.handleSimilarConcepts)
		r.Get("/decay/weight", s.handleDecayWeight)

		r.Get("/assumptions", s.handleListAssumptions)
		r.Post("/assumptions", s.handleAppendAssumption)
		r.Get("/assumptions/{id}", s.handleGetAssumption)
		r.Patch("/assumptions/{id}", s.handleUpdateAssumption)

		r.Post("/sync", s.handleSync)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.view.Ping() == nil
	files, _ := s.view.CountFiles()

	embedder := "none"
	if emb := s.eng.Embedder(); emb != nil {
		embedder = emb.Model()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  s.opts.Version,
		"uptime":   time.Since(s.started).Seconds(),
		"db":       dbOK,
		"db_path":  s.view.Path(),
		"files":    files,
		"embedder": embedder,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps engine and store errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	default:
		writeMessage(w, http.StatusInternalServerError, err.Error())
	}
}
