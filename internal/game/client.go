// Package game provides functionality to request live Minecraft server
// status snapshots from the upstream status provider.
package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcwatch/internal/config"
	"github.com/woozymasta/mcwatch/internal/errs"
	"github.com/woozymasta/mcwatch/internal/models"
	"github.com/woozymasta/mcwatch/internal/vars"
)

// maxSnapshotSize bounds the upstream response body; favicons dominate it.
const maxSnapshotSize = 1 << 20

var errUpstreamDeadline = errors.New("upstream budget exceeded")

// Client is a thin adapter over the upstream status provider HTTP API.
// It never retries: degraded upstreams are handled by the caller.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	timeout time.Duration
}

// New creates a Client for the given upstream options.
func New(options config.Upstream) *Client {
	return &Client{
		http:    &http.Client{},
		baseURL: strings.TrimRight(options.URL, "/"),
		token:   options.Token,
		timeout: options.Timeout,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// FetchSnapshot requests a live snapshot of address. Query mode and bedrock
// are mutually exclusive; combining them fails before any network call.
// The request is bounded by the configured timeout and by ctx.
func (c *Client) FetchSnapshot(ctx context.Context, address string, query, bedrock bool) (*models.Snapshot, error) {
	if query && bedrock {
		return nil, errs.New(errs.CodeInvalidRequest, "query mode is not available for bedrock servers")
	}

	address = models.NormalizeAddress(address)
	if address == "" {
		return nil, errs.New(errs.CodeInvalidRequest, "empty server address")
	}

	ctx, cancel := context.WithTimeoutCause(ctx, c.timeout, errUpstreamDeadline)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(address, query, bedrock), nil)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInvalidRequest, "invalid server address", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", vars.UserAgent())
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.classify(ctx, address, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxSnapshotSize))
		log.Debug().
			Str("address", address).
			Int("status", resp.StatusCode).
			Msg("Upstream returned non-OK status")

		return nil, errs.New(errs.CodeUpstreamUnavailable, fmt.Sprintf("status provider answered %d", resp.StatusCode))
	}

	var snap models.Snapshot
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxSnapshotSize)).Decode(&snap); err != nil {
		if ctx.Err() != nil {
			return nil, c.classify(ctx, address, err)
		}
		return nil, errs.Wrap(errs.CodeUpstreamUnavailable, "undecodable status payload", err)
	}

	log.Trace().
		Str("address", address).
		Bool("query", query).
		Bool("bedrock", bedrock).
		Dur("duration", time.Since(start)).
		Msg("Upstream snapshot fetched")

	return &snap, nil
}

// classify converts transport failures into typed errors so raw network
// errors never leak past this package.
func (c *Client) classify(ctx context.Context, address string, err error) error {
	if errors.Is(context.Cause(ctx), errUpstreamDeadline) {
		log.Debug().Str("address", address).Dur("timeout", c.timeout).Msg("Upstream timed out")
		return errs.Wrap(errs.CodeUpstreamTimeout, fmt.Sprintf("status provider did not answer within %s", c.timeout), err)
	}

	log.Debug().Err(err).Str("address", address).Msg("Upstream request failed")
	return errs.Wrap(errs.CodeUpstreamUnavailable, "status provider unreachable", err)
}

func (c *Client) endpoint(address string, query, bedrock bool) string {
	escaped := url.PathEscape(address)
	switch {
	case bedrock:
		return c.baseURL + "/bedrock/" + escaped
	case query:
		return c.baseURL + "/query/" + escaped
	default:
		return c.baseURL + "/" + escaped
	}
}
