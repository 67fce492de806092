// Package api is the thin, demonstrative HTTP-facing adapter that maps
// request DTOs onto the session package's operations, per spec §6 — the
// adapter itself is explicitly unspecified, so its shape borrows directly
// from the teacher's internal/api (Server struct, envelope, writeJSON,
// errorJSON, chi routing).
package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/trackforge/trackforge/internal/config"
	"github.com/trackforge/trackforge/internal/session"
)

// Server holds every dependency the HTTP handlers need.
type Server struct {
	config   *config.Config
	registry *session.Registry
}

// NewServer wires a Server from its dependencies.
func NewServer(cfg *config.Config, registry *session.Registry) *Server {
	return &Server{config: cfg, registry: registry}
}

// envelope is the JSON response wrapper every handler returns through.
type envelope map[string]interface{}

// writeJSON marshals data as indented JSON with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		log.Printf("api: marshal response: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(js)
}

// errorJSON sends a standardized {"error": "..."} body at the given status.
func (s *Server) errorJSON(w http.ResponseWriter, err error, status int) {
	s.writeJSON(w, status, envelope{"error": err.Error()})
}
