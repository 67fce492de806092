package main

import (
	"log"
	"net/http"

	"github.com/trackforge/trackforge/internal/api"
	"github.com/trackforge/trackforge/internal/config"
	"github.com/trackforge/trackforge/internal/session"

	_ "github.com/trackforge/trackforge/internal/codec/fitcodec"
	_ "github.com/trackforge/trackforge/internal/codec/gpxcodec"
	_ "github.com/trackforge/trackforge/internal/codec/tcxcodec"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
)

// main is the entry point for the trackforge backend server.
func main() {
	// It's common practice to load configuration from a .env file during
	// development; in production these are ordinary environment variables.
	if err := godotenv.Load(); err != nil {
		log.Println("INFO: No .env file found, using environment variables from the system.")
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("FATAL: failed to load application configuration: %v", err)
	}

	registry := session.NewRegistry(cfg.MaxHistory)
	log.Println("INFO: session registry initialized.")

	serverAPI := api.NewServer(cfg, registry)

	router := chi.NewRouter()
	serverAPI.RegisterRoutes(router)
	log.Println("INFO: API routes registered.")

	log.Printf("INFO: trackforge server starting on %s", cfg.ServerAddr)
	if err := http.ListenAndServe(cfg.ServerAddr, router); err != nil {
		log.Fatalf("FATAL: failed to start server: %v", err)
	}
}
