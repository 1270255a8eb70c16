// Package history records the immutable check log of server resolutions.
package history

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcwatch/internal/errs"
	"github.com/woozymasta/mcwatch/internal/metrics"
	"github.com/woozymasta/mcwatch/internal/models"
)

// PageSize is the number of checks returned by Recent.
const PageSize = 20

// Store is the persistence the recorder needs.
type Store interface {
	FindToken(ctx context.Context, secret string) (*models.Token, error)
	AppendCheck(ctx context.Context, c *models.Check) error
	RecentChecks(ctx context.Context, serverID int64, limit, offset int) ([]models.Check, error)
}

// CountryLookup resolves the ISO country code of an IP, or "" when unknown.
type CountryLookup interface {
	CountryCode(ip string) string
}

// Recorder appends checks attributed to an API token.
type Recorder struct {
	store   Store
	geo     CountryLookup
	metrics *metrics.Collector
	now     func() time.Time
}

// New creates a Recorder. geo and m may be nil.
func New(store Store, geo CountryLookup, m *metrics.Collector) *Recorder {
	return &Recorder{
		store:   store,
		geo:     geo,
		metrics: m,
		now:     time.Now,
	}
}

// Record appends one check for serverID from the resolved status. Every call
// inserts a new row. An empty or unknown token fails with NoValidToken and
// nothing is written.
func (r *Recorder) Record(ctx context.Context, serverID int64, status models.Status, source models.Source, token, clientIP string) (*models.Check, error) {
	if !source.Valid() {
		return nil, errs.New(errs.CodeInvalidRequest, "unknown check source "+string(source))
	}
	if token == "" {
		return nil, errs.New(errs.CodeNoValidToken, "no token presented")
	}

	tok, err := r.store.FindToken(ctx, token)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "token lookup failed", err)
	}
	if tok == nil {
		return nil, errs.New(errs.CodeNoValidToken, "token is not registered")
	}

	check := &models.Check{
		CheckedAt:     r.now().UTC(),
		Source:        source,
		ServerID:      serverID,
		TokenID:       tok.ID,
		PlayersOnline: status.Players.Online,
		Online:        status.Online,
	}
	if clientIP != "" {
		ip := clientIP
		check.ClientIP = &ip

		if r.geo != nil {
			if cc := r.geo.CountryCode(clientIP); cc != "" {
				check.CountryCode = &cc
			}
		}
	}

	if err := r.store.AppendCheck(ctx, check); err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "append check failed", err)
	}

	r.metrics.RecordCheck(string(source))
	log.Debug().
		Int64("server_id", serverID).
		Int64("check_id", check.ID).
		Str("source", string(source)).
		Str("token", tok.Name).
		Msg("Check recorded")

	return check, nil
}

// Recent returns one page of checks of a server, newest first. Pages start at 1.
func (r *Recorder) Recent(ctx context.Context, serverID int64, page int) ([]models.Check, error) {
	if page < 1 {
		page = 1
	}

	checks, err := r.store.RecentChecks(ctx, serverID, PageSize, (page-1)*PageSize)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "load checks failed", err)
	}
	return checks, nil
}
