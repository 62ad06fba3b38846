// Package server exposes thread events and the producers that append them
// over HTTP (JSON plus Server-Sent Events) and gRPC.
package server

import (
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alfredjeanlab/threadlive/internal/bestanswer"
	"github.com/alfredjeanlab/threadlive/internal/delivery"
	"github.com/alfredjeanlab/threadlive/internal/eventlog"
	"github.com/alfredjeanlab/threadlive/internal/idgen"
	"github.com/alfredjeanlab/threadlive/internal/presence"
	"github.com/alfredjeanlab/threadlive/internal/store"
	"github.com/alfredjeanlab/threadlive/internal/vote"
)

// authorCacheSize bounds the question author cache.
const authorCacheSize = 4096

// Options configures a Server.
type Options struct {
	// AnswersPerHour limits answer submissions per user. Zero uses the default.
	AnswersPerHour int

	// ViewerStaleAfter hides viewers idle for longer from the viewer list.
	ViewerStaleAfter time.Duration

	// Gatherer serves GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// Server holds the domain services behind both transports.
type Server struct {
	store    store.Store
	log      *eventlog.Log
	delivery *delivery.Service
	votes    *vote.Ledger
	best     *bestanswer.Selector
	Presence *presence.Tracker

	answers *answerLimiter
	authors *lru.Cache[int64, int64] // question id -> author id

	viewerStaleAfter time.Duration
	gatherer         prometheus.Gatherer
	logger           *slog.Logger
	newViewerID      func() string
}

// New returns a Server over the given services.
func New(s store.Store, log *eventlog.Log, d *delivery.Service, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ViewerStaleAfter <= 0 {
		opts.ViewerStaleAfter = 90 * time.Second
	}
	authors, err := lru.New[int64, int64](authorCacheSize)
	if err != nil {
		// Only fails for a non-positive size.
		panic(err)
	}
	return &Server{
		store:            s,
		log:              log,
		delivery:         d,
		votes:            vote.New(s, log),
		best:             bestanswer.New(s, log, logger),
		Presence:         presence.New(),
		answers:          newAnswerLimiter(opts.AnswersPerHour),
		authors:          authors,
		viewerStaleAfter: opts.ViewerStaleAfter,
		gatherer:         opts.Gatherer,
		logger:           logger,
		newViewerID:      idgen.ViewerID,
	}
}
