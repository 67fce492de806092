package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RegisterRoutes wires every operation in spec §6's external interface
// table onto an /api/v1 route, chi-style like the teacher's routes.go.
func (s *Server) RegisterRoutes(r *chi.Mux) {
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		allowedOrigins := []string{"*"}
		if s.config.FrontendURL != "*" {
			allowedOrigins = []string{s.config.FrontendURL}
		}
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))

		r.Post("/sessions", s.handleUpload)
		r.Post("/sessions/{sessionID}/undo", s.handleUndo)
		r.Post("/sessions/{sessionID}/redo", s.handleRedo)
		r.Post("/sessions/{sessionID}/reset", s.handleReset)
		r.Get("/sessions/{sessionID}/normalize/preview", s.handleNormalizePreview)
		r.Post("/sessions/{sessionID}/normalize/apply", s.handleNormalizeApply)
		r.Post("/sessions/{sessionID}/points", s.handleAddPoint)
		r.Patch("/sessions/{sessionID}/points/time", s.handleUpdateTime)
		r.Patch("/sessions/{sessionID}/points/reroute", s.handleReroute)
		r.Post("/sessions/{sessionID}/trim", s.handleTrim)
		r.Post("/sessions/{sessionID}/merge", s.handleMerge)
		r.Get("/sessions/{sessionID}/export/{format}", s.handleExport)
		r.Delete("/sessions/{sessionID}", s.handleDeleteSession)
	})
}
