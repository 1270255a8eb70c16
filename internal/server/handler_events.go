package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcwatch/internal/broadcast"
	"github.com/woozymasta/mcwatch/internal/errs"
	"github.com/woozymasta/mcwatch/internal/models"
)

// handleVote appends a vote for a server and notifies its open event streams.
// This endpoint is protected by AdminAuthMiddleware.
func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupServer(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.CodeInvalidRequest, "invalid vote body", err))
		return
	}
	req.VoterName = strings.TrimSpace(req.VoterName)
	if req.VoterName == "" || req.UserID < 1 {
		writeError(w, errs.New(errs.CodeInvalidRequest, "voter_name and user_id are required"))
		return
	}

	vote := &models.Vote{CreatedAt: time.Now(), ServerID: rec.ID, UserID: req.UserID}
	if err := s.storage.AppendVote(r.Context(), vote); err != nil {
		writeError(w, errs.Wrap(errs.CodeInternal, "append vote", err))
		return
	}
	s.metrics.RecordVote()

	delivered, err := s.events.Publish(rec.ID, broadcast.EventNewVote, broadcast.VotePayload{VoterName: req.VoterName})
	if err != nil {
		log.Error().Err(err).Int64("server_id", rec.ID).Msg("Failed to publish vote event")
	}

	log.Info().
		Int64("server_id", rec.ID).
		Int64("user_id", req.UserID).
		Int("delivered", delivered).
		Msg("Vote recorded")

	writeJSON(w, http.StatusCreated, map[string]any{"vote": vote, "delivered": delivered})
}

// handleEvents streams server-sent events of one server until the client
// disconnects. Served on /api/v1/servers/{id}/events and /api/sse/vote?id=.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupServer(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errs.New(errs.CodeInternal, "streaming unsupported"))
		return
	}

	// streams outlive the server write timeout
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		log.Debug().Err(err).Msg("Failed to clear write deadline")
	}

	// subscribe before the stream opens so a client never misses an event
	// published right after it sees the 200
	ctx := r.Context()
	sub := s.events.Subscribe(ctx, rec.ID)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := s.heartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				log.Debug().Err(err).Int64("server_id", rec.ID).Msg("Event stream write failed")
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeEvent writes one named event frame.
func writeEvent(w http.ResponseWriter, ev broadcast.Event) error {
	_, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, ev.Data)
	return err
}
