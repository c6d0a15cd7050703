package server

import (
	"context"
	"sync"
	"time"

	"github.com/woozymasta/herald/internal/a2s"
	"github.com/woozymasta/herald/internal/poller"
	"github.com/woozymasta/herald/internal/storage"
	"github.com/woozymasta/herald/internal/targets"
)

// Server holds the dependencies, configuration, and runtime state required
// to handle HTTP requests and background target registration.
type Server struct {
	// storage provides access to the cached server statuses.
	storage *storage.Repository

	// poller owns the target list and runs the scheduled status queries.
	poller *poller.Poller

	// client runs live A2S queries for the /api/a2s endpoint.
	client *a2s.Client

	// ctx bounds the queries of registration workers; cancel is called once they drained.
	ctx    context.Context
	cancel context.CancelFunc

	// queue passes target registrations from HTTP handlers to background workers.
	queue chan targetJob

	// shutdown is closed to stop background routines during a graceful shutdown.
	shutdown chan struct{}

	// authToken is the secret token required to access the API endpoints.
	authToken string

	// wg waits for registration workers to finish.
	wg sync.WaitGroup

	// maxBody specifies the maximum allowed size (in bytes) for incoming HTTP request bodies.
	maxBody int64

	// workers is the number of registration workers.
	workers int

	// hardLimitCount is the maximum number of requests allowed per IP address
	// within the hardLimitWin duration.
	hardLimitCount int

	// hardLimitWin is the time window duration for the hard rate limiter.
	hardLimitWin time.Duration

	// trustProxy indicates whether the server should trust headers like X-Forwarded-For
	// or CF-Connecting-IP when determining the client's real IP address.
	trustProxy bool
}

// targetJob is a registration waiting for its first query.
type targetJob struct {
	// IP of the API client that asked for the registration, for logs.
	IP string

	Target targets.Target
}
