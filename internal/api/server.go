// Package api exposes the HTTP surface: document upload and management,
// similarity search, and streaming chat.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/raglab/docuchat/internal/chat"
	"github.com/raglab/docuchat/internal/config"
	"github.com/raglab/docuchat/internal/imagestore"
	"github.com/raglab/docuchat/internal/keypool"
	"github.com/raglab/docuchat/internal/pipeline"
	"github.com/raglab/docuchat/internal/vectorstore"
)

// Server is the HTTP API server for docuchat.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	store        *vectorstore.Store
	sessions     *chat.Registry
	answerer     *chat.Answerer
	pool         *keypool.Pool
	images       *imagestore.Store
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, store *vectorstore.Store, sessions *chat.Registry, answerer *chat.Answerer, pool *keypool.Pool, images *imagestore.Store, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		store:        store,
		sessions:     sessions,
		answerer:     answerer,
		pool:         pool,
		images:       images,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints. An empty key disables auth for local use.
	r.Group(func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(AuthMiddleware(s.cfg.APIKey, s.log))
		}

		r.Post("/api/documents", s.handleUpload)
		r.Get("/api/documents", s.handleListDocuments)
		r.Get("/api/documents/{collection}", s.handleDocumentInfo)
		r.Get("/api/documents/{collection}/chunks", s.handleDocumentChunks)
		r.Delete("/api/documents/{collection}", s.handleDeleteDocument)

		r.Get("/api/jobs/{jobID}", s.handleJobStatus)
		r.Get("/api/jobs/{jobID}/stream", s.handleJobStream)

		r.Post("/api/search", s.handleSearch)

		r.Post("/api/chat/sessions", s.handleCreateSession)
		r.Get("/api/chat/sessions", s.handleListSessions)
		r.Post("/api/chat/sessions/{sessionID}/messages", s.handleChatMessage)
		r.Post("/api/chat/sessions/{sessionID}/clear", s.handleClearSession)
		r.Delete("/api/chat/sessions/{sessionID}", s.handleDeleteSession)

		r.Get("/api/images/{filename}", s.handleImage)
		r.Get("/api/stats/keys", s.handleKeyStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
