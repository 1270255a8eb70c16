package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcwatch/internal/errs"
	"github.com/woozymasta/mcwatch/internal/models"
	"github.com/woozymasta/mcwatch/internal/resolver"
	"github.com/woozymasta/mcwatch/internal/vars"
)

const (
	// serversPerPage is the page size of the server listing.
	serversPerPage = 10

	// trackingCookie opts a browser out of check tracking when set to noTrack.
	trackingCookie = "tracking"
	noTrack        = "no-track"
)

// handleResolve resolves the live status of a server.
// Query params: ?query=true (java only)
func (s *Server) handleResolve(bedrock bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := false
		if raw := r.URL.Query().Get("query"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				writeError(w, errs.New(errs.CodeInvalidRequest, "query must be a boolean"))
				return
			}
			query = v
		}

		req := resolver.Request{
			Caller:         s.callerOf(r),
			Address:        r.PathValue("address"),
			Query:          query,
			Bedrock:        bedrock,
			TrackingOptOut: trackingOptedOut(r),
		}

		view, err := s.engine.Resolve(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, view)
	})
}

// callerOf attributes a request to the API token it presents, or to the
// configured web token for anonymous page views.
func (s *Server) callerOf(r *http.Request) resolver.Caller {
	ip := GetRealIP(r, s.trustProxy)

	if auth := strings.TrimSpace(r.Header.Get("Authorization")); auth != "" {
		return resolver.Caller{
			Source:   models.SourceAPI,
			ClientIP: ip,
			Token:    strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")),
		}
	}

	return resolver.Caller{Source: models.SourceWeb, ClientIP: ip, Token: s.webToken}
}

func trackingOptedOut(r *http.Request) bool {
	c, err := r.Cookie(trackingCookie)
	return err == nil && c.Value == noTrack
}

// handleServers returns one page of known servers.
// Query params: ?page=1
func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	page, err := pageOf(r)
	if err != nil {
		writeError(w, err)
		return
	}

	servers, err := s.storage.ListServers(r.Context(), serversPerPage, (page-1)*serversPerPage)
	if err != nil {
		writeError(w, errs.Wrap(errs.CodeInternal, "list servers", err))
		return
	}

	total, err := s.storage.CountServers(r.Context())
	if err != nil {
		writeError(w, errs.Wrap(errs.CodeInternal, "count servers", err))
		return
	}

	writeJSON(w, http.StatusOK, serverPage{Servers: servers, Total: total, Page: page})
}

// handleServer returns the cached record of a server without resolving it.
func (s *Server) handleServer(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupServer(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleChecks returns one page of a server's check history, newest first.
// Query params: ?page=1
func (s *Server) handleChecks(w http.ResponseWriter, r *http.Request) {
	page, err := pageOf(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rec, ok := s.lookupServer(w, r)
	if !ok {
		return
	}

	checks, err := s.history.Recent(r.Context(), rec.ID, page)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, checks)
}

// handleServerStats returns vote and check counters of a server.
func (s *Server) handleServerStats(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupServer(w, r)
	if !ok {
		return
	}

	stats, err := s.serverStats(r.Context(), rec.ID, time.Now())
	if err != nil {
		writeError(w, errs.Wrap(errs.CodeInternal, "compute server stats", err))
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleTotals returns service-wide counters.
func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	checks, err := s.storage.CountChecks(r.Context())
	if err != nil {
		writeError(w, errs.Wrap(errs.CodeInternal, "count checks", err))
		return
	}

	servers, err := s.storage.CountServers(r.Context())
	if err != nil {
		writeError(w, errs.Wrap(errs.CodeInternal, "count servers", err))
		return
	}

	writeJSON(w, http.StatusOK, totals{Servers: servers, Checks: checks})
}

// handleVersion returns build information.
func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, vars.Info())
}

// handleHealth reports whether the database is reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.Ping(r.Context()); err != nil {
		log.Error().Err(err).Msg("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// lookupServer loads the server named by the {id} path value or ?id= and
// writes the error response itself when it cannot.
func (s *Server) lookupServer(w http.ResponseWriter, r *http.Request) (*models.ServerRecord, bool) {
	raw := r.PathValue("id")
	if raw == "" {
		raw = r.URL.Query().Get("id")
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		writeError(w, errs.New(errs.CodeInvalidRequest, "invalid server id"))
		return nil, false
	}

	rec, err := s.storage.ServerByID(r.Context(), id)
	if err != nil {
		writeError(w, errs.Wrap(errs.CodeInternal, "load server", err))
		return nil, false
	}
	if rec == nil {
		writeError(w, errs.New(errs.CodeNotFound, "server not found"))
		return nil, false
	}

	return rec, true
}

func pageOf(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1, nil
	}

	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, errs.New(errs.CodeInvalidRequest, "page must be a positive number")
	}
	return page, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

// writeError responds with the status and code mapped from err. Internal
// causes are logged, never sent.
func writeError(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	code := errs.CodeOf(err)

	message := http.StatusText(status)
	var appErr *errs.AppError
	if errors.As(err, &appErr) && code != errs.CodeInternal {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	}

	writeJSON(w, status, errorBody{Error: errorDetail{Code: string(code), Message: message}})
}
