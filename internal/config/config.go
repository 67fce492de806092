package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
)

// Config holds all configuration for the application. By centralizing
// these settings, we make the application easier to manage and deploy.
type Config struct {
	// --- Server ---
	ServerAddr string

	// --- Upload limits ---
	MaxUploadBytes int64

	// --- Session history ---
	MaxHistory int

	// --- CORS ---
	FrontendURL       string
	ParsedFrontendURL *url.URL
}

// New creates a new Config instance by loading values from environment
// variables. Every variable has a default; the only error it returns is
// for a FRONTEND_URL that does not parse, which prevents the server from
// starting.
func New() (*Config, error) {
	maxUpload, _ := strconv.ParseInt(os.Getenv("MAX_UPLOAD_BYTES"), 10, 64)
	maxHistory, _ := strconv.Atoi(os.Getenv("MAX_HISTORY"))

	cfg := &Config{
		ServerAddr:     os.Getenv("SERVER_ADDR"),
		MaxUploadBytes: maxUpload,
		MaxHistory:     maxHistory,
		FrontendURL:    os.Getenv("FRONTEND_URL"),
	}

	// --- Provide sensible defaults for non-critical values ---
	if cfg.ServerAddr == "" {
		cfg.ServerAddr = ":8080"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20 // 32 MiB, comfortably above a 10^5-point track
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 10
	}
	if cfg.FrontendURL == "" {
		cfg.FrontendURL = "*"
	}

	// --- Parse and derive necessary fields ---
	if cfg.FrontendURL != "*" {
		parsedURL, err := url.Parse(cfg.FrontendURL)
		if err != nil {
			return nil, errors.New("FATAL: invalid FRONTEND_URL format")
		}
		cfg.ParsedFrontendURL = parsedURL
	}

	return cfg, nil
}
