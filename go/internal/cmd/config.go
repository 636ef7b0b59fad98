package main

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the service settings, read from the environment.
type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`

	// Store selects the shared session store backend.
	Store      string `envconfig:"STORE" default:"nats"` // nats | memory
	NATSURL    string `envconfig:"NATS_URL" default:"nats://localhost:4222"`
	NATSBucket string `envconfig:"NATS_BUCKET" default:"panoquest-games"`

	// StreetViewAPIKey is needed with every store backend, the memory one
	// included: rounds always fetch real panorama metadata, the store only
	// carries the session state.
	StreetViewAPIKey string `envconfig:"STREET_VIEW_API_KEY"`
	MapCatalogPath   string `envconfig:"MAP_CATALOG_PATH"`

	// MaxStartAttempts bounds panorama retries per round start; 0 keeps
	// retrying until the request is cancelled.
	MaxStartAttempts int `envconfig:"MAX_START_ATTEMPTS" default:"0"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process config: %w", err)
	}
	if cfg.Store != "nats" && cfg.Store != "memory" {
		return Config{}, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
	if cfg.StreetViewAPIKey == "" {
		return Config{}, fmt.Errorf("STREET_VIEW_API_KEY is required")
	}
	return cfg, nil
}
