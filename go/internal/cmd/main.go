package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/panoquest/panoquest/go/clients"
	"github.com/panoquest/panoquest/go/internal/game"
	"github.com/panoquest/panoquest/go/internal/gateway"
	"github.com/panoquest/panoquest/go/internal/geomap"
	"github.com/panoquest/panoquest/go/internal/pano"
	"github.com/panoquest/panoquest/go/internal/roster"
	"github.com/panoquest/panoquest/go/internal/round"
	"github.com/panoquest/panoquest/go/internal/store"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("store", cfg.Store).
		Str("port", cfg.Port).
		Msg("starting panoquest")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Shared session store
	var adapter store.Adapter
	switch cfg.Store {
	case "memory":
		adapter = store.NewMemoryStore()
	default:
		natsCfg := store.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		natsCfg.Bucket = cfg.NATSBucket
		natsStore, err := store.NewNATSStore(ctx, natsCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to session store")
		}
		defer natsStore.Close()
		adapter = natsStore
	}

	// Map catalog
	maps := geomap.DefaultCatalog()
	if cfg.MapCatalogPath != "" {
		maps, err = geomap.LoadCatalog(cfg.MapCatalogPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load map catalog")
		}
	}

	// Panorama source
	source := pano.NewStreetViewSource(clients.NewStreetViewClient(cfg.StreetViewAPIKey))

	// Core wiring: hub first, the app emits events into it
	hub := gateway.NewHub(gateway.DefaultConnectionConfig())
	roundCfg := round.DefaultConfig()
	roundCfg.MaxAttempts = cfg.MaxStartAttempts
	coordinator := round.NewCoordinator(adapter, source, maps, roundCfg)
	app := game.NewApp(adapter, roster.NewSynchronizer(adapter), coordinator, maps, hub.HandleGameEvent)

	handler := gateway.NewHandler(app, hub, cfg.PublicBaseURL)
	server := setupServer(cfg, handler, hub)

	go hub.Start(ctx)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	cancel()

	log.Info().Msg("panoquest shutdown complete")
}
