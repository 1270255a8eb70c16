package server

import (
	"sync"
	"time"

	"github.com/woozymasta/mcwatch/internal/broadcast"
	"github.com/woozymasta/mcwatch/internal/history"
	"github.com/woozymasta/mcwatch/internal/metrics"
	"github.com/woozymasta/mcwatch/internal/models"
	"github.com/woozymasta/mcwatch/internal/resolver"
	"github.com/woozymasta/mcwatch/internal/storage"
)

// Server holds the dependencies, configuration, and runtime state required
// to handle HTTP requests and event streams.
type Server struct {
	// storage provides access to server records, checks, votes and tokens.
	storage *storage.Repository

	// engine resolves live server status against the cached record.
	engine *resolver.Engine

	// history serves the paged check log.
	history *history.Recorder

	// events fans out vote notifications to open event streams.
	events *broadcast.Broadcaster

	// metrics is exposed on /metrics. It can be nil.
	metrics *metrics.Collector

	// shutdown is closed by StopWorkers to stop background routines.
	shutdown chan struct{}

	// authToken is the secret token required for administrative endpoints
	// (votes, metrics).
	authToken string

	// webToken is the API token that anonymous page views are attributed to.
	webToken string

	// wg waits for background routines on shutdown.
	wg sync.WaitGroup

	// maxBody specifies the maximum allowed size (in bytes) for incoming HTTP request bodies.
	maxBody int64

	// hardLimitCount is the maximum number of resolutions allowed per IP address
	// within the hardLimitWin duration.
	hardLimitCount int

	// hardLimitWin is the time window duration for the hard rate limiter.
	hardLimitWin time.Duration

	// heartbeat is the interval of keep-alive comments on idle event streams.
	heartbeat time.Duration

	// trustProxy indicates whether the server should trust headers like X-Forwarded-For
	// or CF-Connecting-IP when determining the client's real IP address.
	trustProxy bool
}

// voteRequest is the body of a vote submission.
type voteRequest struct {
	VoterName string `json:"voter_name"`
	UserID    int64  `json:"user_id"`
}

// serverPage is one page of the server listing.
type serverPage struct {
	Servers []models.ServerSummary `json:"servers"`
	Total   int64                  `json:"total"`
	Page    int                    `json:"page"`
}

// totals are service-wide counters.
type totals struct {
	Servers int64 `json:"servers"`
	Checks  int64 `json:"checks"`
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
