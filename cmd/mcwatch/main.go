// main is the entry point of the mcwatch application.
// It initializes the configuration, logger, database, GeoIP provider, resolution
// pipeline, and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcwatch/internal/broadcast"
	"github.com/woozymasta/mcwatch/internal/config"
	"github.com/woozymasta/mcwatch/internal/fake"
	"github.com/woozymasta/mcwatch/internal/game"
	"github.com/woozymasta/mcwatch/internal/geoip"
	"github.com/woozymasta/mcwatch/internal/history"
	"github.com/woozymasta/mcwatch/internal/logger"
	"github.com/woozymasta/mcwatch/internal/maintenance"
	"github.com/woozymasta/mcwatch/internal/metrics"
	"github.com/woozymasta/mcwatch/internal/resolver"
	"github.com/woozymasta/mcwatch/internal/server"
	"github.com/woozymasta/mcwatch/internal/storage"
	"github.com/woozymasta/mcwatch/internal/vars"
)

func main() {
	cfg := config.Parse()

	closeLog := logger.Setup(cfg.Logger)
	defer closeLog()
	log.Info().
		Str("version", vars.Version).
		Str("commit", vars.CommitShort()).
		Msg("Starting mcwatch service...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}()

	// data generation
	if cfg.Storage.GenerateCount > 0 {
		fake.GenerateData(ctx, store, cfg.Storage.GenerateCount)
		return
	}

	// token issuing needs neither GeoIP nor the upstream
	if cfg.Storage.CreateToken != "" {
		maintenance.Run(ctx, cfg, store, nil, os.Stdout)
		return
	}

	geoProvider := openGeoIP(ctx, cfg.GeoIP)
	defer func() {
		if err := geoProvider.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing GeoIP provider")
		}
	}()

	// Resolution pipeline
	collector := metrics.NewCollector()
	recorder := history.New(store, geoProvider, collector)
	engine := resolver.New(store, game.New(cfg.Upstream), recorder, collector)

	// database maintenance
	if maintenance.Run(ctx, cfg, store, engine, os.Stdout) {
		return
	}

	events := broadcast.New(cfg.Events.Buffer, collector)
	srvHandler := server.New(cfg, store, engine, recorder, events, collector)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      srvHandler.Run(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.Upstream.Timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful Shutdown
	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	// Shut down HTTP; event streams end with the base context
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop background routines
	srvHandler.StopWorkers()

	log.Info().Msg("Server exited")
}

// openGeoIP refreshes and opens the country database. A nil provider disables
// country detection.
func openGeoIP(ctx context.Context, cfg config.GeoIP) *geoip.Provider {
	if cfg.Path == "" {
		log.Info().Msg("GeoIP disabled")
		return nil
	}

	if _, err := geoip.Refresh(ctx, nil, cfg.Path, cfg.URL, cfg.Interval); err != nil {
		log.Error().Err(err).Msg("Failed to refresh GeoIP database")
	}

	provider, err := geoip.Open(cfg.Path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open GeoIP database, country detection disabled")
		return nil
	}

	return provider
}
