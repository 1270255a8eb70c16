// Package maintenance provides one-shot database tasks run from the command line.
package maintenance

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcwatch/internal/config"
	"github.com/woozymasta/mcwatch/internal/models"
	"github.com/woozymasta/mcwatch/internal/resolver"
)

// refreshWorkers is the size of the refresh-all worker pool.
const refreshWorkers = 10

// Store is the persistence the maintenance tasks need.
type Store interface {
	RefreshTargets(ctx context.Context) ([]models.RefreshTarget, error)
	CreateToken(ctx context.Context, name, secret string, now time.Time) (*models.Token, error)
}

// Resolver re-resolves a server.
type Resolver interface {
	Resolve(ctx context.Context, req resolver.Request) (*resolver.View, error)
}

// Run checks if any maintenance flags are set and executes the corresponding task.
// Returns true if a maintenance task was executed (indicating the program should exit).
func Run(ctx context.Context, cfg *config.Config, store Store, engine Resolver, out io.Writer) bool {
	if cfg.Storage.CreateToken != "" {
		tok, err := CreateToken(ctx, store, cfg.Storage.CreateToken)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token")
			return true
		}

		_, _ = fmt.Fprintf(out, "%s\t%s\n", tok.Name, tok.Token)
		log.Info().Str("name", tok.Name).Int64("id", tok.ID).Msg("Token created")
		return true
	}

	if cfg.Storage.RefreshAll {
		targets, err := store.RefreshTargets(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to fetch servers")
			return true
		}

		if len(targets) == 0 {
			log.Info().Msg("No servers found for refresh")
			return true
		}

		log.Info().Int("count", len(targets)).Msgf("Starting refresh with %d workers...", refreshWorkers)
		ok, failed := RefreshAll(ctx, engine, targets, cfg.Server.WebToken)
		log.Info().Int("refreshed", ok).Int("failed", failed).Msg("Maintenance task completed")
		return true
	}

	return false
}

// CreateToken issues a new random API token with the given name.
func CreateToken(ctx context.Context, store Store, name string) (*models.Token, error) {
	return store.CreateToken(ctx, name, uuid.NewString(), time.Now())
}

// RefreshAll re-resolves every target in its stored mode as a BOT check
// attributed to token and returns how many resolutions were fresh and how
// many were not.
func RefreshAll(ctx context.Context, engine Resolver, targets []models.RefreshTarget, token string) (refreshed, failed int) {
	jobs := make(chan models.RefreshTarget, len(targets))
	var (
		wg        sync.WaitGroup
		okCount   atomic.Int64
		failCount atomic.Int64
	)

	for i := 0; i < refreshWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range jobs {
				if refreshServer(ctx, engine, target, token) {
					okCount.Add(1)
				} else {
					failCount.Add(1)
				}
			}
		}()
	}

	for _, t := range targets {
		jobs <- t
	}
	close(jobs)

	wg.Wait()

	return int(okCount.Load()), int(failCount.Load())
}

func refreshServer(ctx context.Context, engine Resolver, target models.RefreshTarget, token string) bool {
	logCtx := log.With().
		Str("address", target.Key.Address).
		Str("edition", string(target.Key.Edition)).
		Bool("query", target.Query).
		Logger()

	bedrock := target.Key.Edition == models.EditionBedrock
	view, err := engine.Resolve(ctx, resolver.Request{
		Caller:  resolver.Caller{Source: models.SourceBot, Token: token},
		Address: target.Key.Address,
		Query:   target.Query && !bedrock,
		Bedrock: bedrock,
	})
	if err != nil {
		logCtx.Debug().Err(err).Msg("Server refresh failed")
		return false
	}

	if view.Freshness != resolver.FreshnessFresh {
		logCtx.Debug().Msg("Server unreachable, kept stale record")
		return false
	}

	logCtx.Trace().Bool("online", view.Record.Online).Msg("Server refreshed")
	return true
}
