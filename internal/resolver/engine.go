// Package resolver reconciles live upstream status with the cached server
// record and decides whether a resolution is written to the check history.
package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/woozymasta/mcwatch/internal/errs"
	"github.com/woozymasta/mcwatch/internal/metrics"
	"github.com/woozymasta/mcwatch/internal/models"
	"github.com/woozymasta/mcwatch/internal/normalizer"
)

// keyStripes is the number of per-key write locks.
const keyStripes = 64

// Store reads and writes server records.
type Store interface {
	FindServer(ctx context.Context, key models.Key) (*models.ServerRecord, error)
	UpsertServer(ctx context.Context, key models.Key, status models.Status, now time.Time) (*models.ServerRecord, error)
}

// Fetcher requests live snapshots from the upstream status provider.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, address string, query, bedrock bool) (*models.Snapshot, error)
}

// Recorder appends checks to the history.
type Recorder interface {
	Record(ctx context.Context, serverID int64, status models.Status, source models.Source, token, clientIP string) (*models.Check, error)
}

// Freshness tells whether a view reflects a successful upstream refresh.
type Freshness string

const (
	FreshnessFresh Freshness = "fresh"
	FreshnessStale Freshness = "stale"
)

// Caller is who asked for a resolution; checks are attributed to it.
type Caller struct {
	Source   models.Source
	ClientIP string
	Token    string
}

// Request is one resolution request.
type Request struct {
	Caller         Caller
	Address        string
	Query          bool
	Bedrock        bool
	TrackingOptOut bool
}

// View is the result of a resolution.
type View struct {
	Record       *models.ServerRecord `json:"server"`
	CheckID      *int64               `json:"check_id,omitempty"`
	Freshness    Freshness            `json:"freshness"`
	HistoryError string               `json:"history_error,omitempty"`
}

// Engine resolves server status requests.
type Engine struct {
	store   Store
	fetcher Fetcher
	history Recorder
	metrics *metrics.Collector
	now     func() time.Time
	locks   [keyStripes]sync.Mutex
}

// New creates an Engine. m may be nil.
func New(store Store, fetcher Fetcher, history Recorder, m *metrics.Collector) *Engine {
	return &Engine{
		store:   store,
		fetcher: fetcher,
		history: history,
		metrics: m,
		now:     time.Now,
	}
}

// Resolve looks up the cached record and fetches a live snapshot concurrently,
// then serves either the refreshed record or the cached one flagged stale.
// A successful refresh is persisted even if ctx is cancelled meanwhile, but a
// check is only written while ctx is live and tracking is not opted out.
func (e *Engine) Resolve(ctx context.Context, req Request) (*View, error) {
	edition := models.EditionOf(req.Bedrock)
	key := models.NewKey(req.Address, edition)

	if key.Address == "" {
		return nil, errs.New(errs.CodeInvalidRequest, "empty server address")
	}
	if req.Query && req.Bedrock {
		return nil, errs.New(errs.CodeInvalidRequest, "query mode is not available for bedrock servers")
	}

	view, err := e.resolve(ctx, key, req)
	if err != nil {
		e.metrics.RecordResolution(string(edition), string(errs.CodeOf(err)))
		return nil, err
	}

	e.metrics.RecordResolution(string(edition), string(view.Freshness))
	return view, nil
}

func (e *Engine) resolve(ctx context.Context, key models.Key, req Request) (*View, error) {
	var (
		cached   *models.ServerRecord
		snap     *models.Snapshot
		fetchErr error
		g        errgroup.Group
	)

	g.Go(func() error {
		rec, err := e.store.FindServer(ctx, key)
		if err != nil {
			log.Error().Err(err).Str("server", key.String()).Msg("Server lookup failed, treating as first seen")
			return nil
		}
		cached = rec
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		snap, fetchErr = e.fetcher.FetchSnapshot(ctx, key.Address, req.Query, req.Bedrock)
		e.metrics.ObserveUpstream(string(key.Edition), upstreamOutcome(ctx, fetchErr), time.Since(start))
		return nil
	})

	_ = g.Wait()

	if fetchErr != nil {
		if ctx.Err() != nil {
			log.Debug().Err(fetchErr).Str("server", key.String()).Msg("Caller went away before upstream answered")
			return nil, errs.Wrap(errs.CodeCanceled, "request abandoned by caller", context.Cause(ctx))
		}
		return e.degrade(key, cached, fetchErr)
	}

	status, err := normalizer.Normalize(snap, key.Edition, req.Query)
	if err != nil {
		log.Warn().Err(err).Str("server", key.String()).Msg("Upstream snapshot rejected")
		return nil, err
	}

	rec, err := e.persist(ctx, key, status)
	if err != nil {
		return nil, err
	}

	view := &View{Record: rec, Freshness: FreshnessFresh}

	switch {
	case req.TrackingOptOut:
		log.Trace().Str("server", key.String()).Msg("Tracking opted out, check skipped")

	case ctx.Err() != nil:
		log.Debug().Str("server", key.String()).Msg("Caller went away, check skipped")

	default:
		check, err := e.history.Record(ctx, rec.ID, rec.Status, req.Caller.Source, req.Caller.Token, req.Caller.ClientIP)
		if err != nil {
			log.Error().
				Err(err).
				Str("server", key.String()).
				Str("source", string(req.Caller.Source)).
				Msg("Failed to record check")
			e.metrics.RecordHistoryFailure(string(errs.CodeOf(err)))
			view.HistoryError = errs.Public(err)
		} else {
			view.CheckID = &check.ID
		}
	}

	return view, nil
}

// degrade serves the cached record when the upstream could not answer.
func (e *Engine) degrade(key models.Key, cached *models.ServerRecord, fetchErr error) (*View, error) {
	if errs.Is(fetchErr, errs.CodeInvalidRequest) {
		return nil, fetchErr
	}

	if cached == nil {
		log.Warn().Err(fetchErr).Str("server", key.String()).Msg("Resolution failed, nothing cached")
		return nil, errs.Wrap(errs.CodeResolutionFailed, "server status unavailable and not cached", fetchErr)
	}

	log.Info().Err(fetchErr).Str("server", key.String()).Msg("Serving stale server record")
	return &View{Record: cached, Freshness: FreshnessStale}, nil
}

// persist writes the refreshed status under the key's stripe lock. It is not
// bound to the caller's cancellation so an abandoned request still warms the cache.
func (e *Engine) persist(ctx context.Context, key models.Key, status models.Status) (*models.ServerRecord, error) {
	mu := &e.locks[xxhash.Sum64String(key.String())%keyStripes]
	mu.Lock()
	defer mu.Unlock()

	rec, err := e.store.UpsertServer(context.WithoutCancel(ctx), key, status, e.now())
	if err != nil {
		log.Error().Err(err).Str("server", key.String()).Msg("Failed to persist server record")
		return nil, errs.Wrap(errs.CodeInternal, "persist server record", err)
	}

	return rec, nil
}

func upstreamOutcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "ok"
	case ctx.Err() != nil:
		return "abandoned"
	case errs.Is(err, errs.CodeUpstreamTimeout):
		return "timeout"
	case errs.Is(err, errs.CodeInvalidRequest):
		return "invalid"
	default:
		return "unavailable"
	}
}
