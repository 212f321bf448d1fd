package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/todmy/fiscal-crossval/internal/auth"
	"github.com/todmy/fiscal-crossval/internal/crossval"
	"github.com/todmy/fiscal-crossval/internal/storage"
)

// ServerConfig holds the collaborators of the HTTP server
type ServerConfig struct {
	Engine         *crossval.Engine
	Runs           storage.RunRepository
	Artifacts      storage.ArtifactRepository
	Auth           auth.Service
	AllowedOrigins []string
	Logger         *log.Logger
}

type Server struct {
	router    *chi.Mux
	engine    *crossval.Engine
	runs      storage.RunRepository
	artifacts storage.ArtifactRepository
	auth      auth.Service
	logger    *log.Logger
}

func NewServer(config ServerConfig) *Server {
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"http://localhost:*", "https://*"}
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Content-SHA256"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{
		router:    r,
		engine:    config.Engine,
		runs:      config.Runs,
		artifacts: config.Artifacts,
		auth:      config.Auth,
		logger:    config.Logger,
	}
	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	authHandlers := auth.NewHandlers(s.auth)

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Public
		r.Post("/auth/register", authHandlers.Register)
		r.Post("/auth/login", authHandlers.Login)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.auth))

			r.Get("/auth/me", authHandlers.Me)

			r.Route("/runs", func(r chi.Router) {
				r.Get("/", s.handleListRuns)
				r.Post("/", s.handleCreateRun)
				r.Get("/{runID}", s.handleGetRun)
				r.Get("/{runID}/artifacts", s.handleListArtifacts)
				r.Get("/{runID}/artifacts/{format}", s.handleDownloadArtifact)
			})
		})
	})
}

// ServeHTTP makes Server an http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Run(addr string) error {
	return http.ListenAndServe(addr, s.router)
}

// Helper to send JSON responses
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
