// Package live keeps a client subscribed to one thread, falling back from
// streaming to blocking polls to timed polls as transports fail.
package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/threadlive/internal/client"
	"github.com/alfredjeanlab/threadlive/internal/model"
)

// Tier is a delivery mode. Controllers only ever move down the ladder.
type Tier string

const (
	TierStream       Tier = "stream"
	TierBlockingPoll Tier = "blocking_poll"
	TierTimedPoll    Tier = "timed_poll"
)

// next returns the tier below t. The last tier has no successor.
func (t Tier) next() Tier {
	switch t {
	case TierStream:
		return TierBlockingPoll
	default:
		return TierTimedPoll
	}
}

// ParseTier accepts a tier name; the empty string means TierStream.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case "", TierStream:
		return TierStream, nil
	case TierBlockingPoll, TierTimedPoll:
		return Tier(s), nil
	}
	return "", errors.New("unknown tier " + s)
}

// Transport is the subset of client.EventSource the controller drives.
type Transport interface {
	Fetch(ctx context.Context, threadID int64, cursor model.Cursor, limit int) (*client.Batch, error)
	Wait(ctx context.Context, threadID int64, cursor model.Cursor, timeout time.Duration) (*client.Batch, error)
	Stream(ctx context.Context, threadID int64, cursor model.Cursor, cb client.StreamCallbacks) error
}

// Config tunes the fallback ladder.
type Config struct {
	MaxRetries      int
	RetryDelay      time.Duration
	LongPollTimeout time.Duration
	PollInterval    time.Duration
	PollTimeout     time.Duration
	StartTier       Tier

	// DedupeSize is the number of recent event IDs remembered.
	DedupeSize int

	// pollPause separates successful blocking polls.
	pollPause time.Duration
}

// DefaultConfig returns the standard ladder settings.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		RetryDelay:      5 * time.Second,
		LongPollTimeout: 25 * time.Second,
		PollInterval:    25 * time.Second,
		PollTimeout:     10 * time.Second,
		StartTier:       TierStream,
		DedupeSize:      1024,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.LongPollTimeout <= 0 {
		c.LongPollTimeout = d.LongPollTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = d.PollTimeout
	}
	if c.StartTier == "" {
		c.StartTier = d.StartTier
	}
	if c.DedupeSize <= 0 {
		c.DedupeSize = d.DedupeSize
	}
	if c.pollPause <= 0 {
		c.pollPause = time.Second
	}
	return c
}

// Callbacks receive controller output. All are optional and none fire after
// the Run context is done.
type Callbacks struct {
	OnEvent       func(model.Envelope)
	OnStateChange func(next, prev Tier)
	OnError       func(error)
}

// Controller follows one thread.
type Controller struct {
	transport Transport
	threadID  int64
	cfg       Config
	cb        Callbacks
	seen      *Dedupe
	logger    *slog.Logger

	mu      sync.Mutex
	tier    Tier
	cursor  model.Cursor
	retries int

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a controller for threadID starting after cursor.
func New(t Transport, threadID int64, cursor model.Cursor, cfg Config, cb Callbacks, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Controller{
		transport: t,
		threadID:  threadID,
		cfg:       cfg,
		cb:        cb,
		seen:      NewDedupe(cfg.DedupeSize),
		logger:    logger,
		tier:      cfg.StartTier,
		cursor:    cursor,
	}
}

// Tier returns the current delivery mode.
func (c *Controller) Tier() Tier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tier
}

// Cursor returns the newest delivered event timestamp.
func (c *Controller) Cursor() model.Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Retries returns the consecutive failure count for the current tier.
func (c *Controller) Retries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retries
}

// Start runs the controller in a background goroutine until Stop.
func (c *Controller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		_ = c.Run(ctx)
	}()
}

// Stop cancels a controller started with Start and waits for it to exit.
func (c *Controller) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

// Run follows the thread until ctx is done. It always returns ctx.Err().
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("live: following thread", "thread", c.threadID, "tier", c.Tier(), "cursor", c.Cursor())
	for ctx.Err() == nil {
		switch c.Tier() {
		case TierStream:
			c.runStream(ctx)
		case TierBlockingPoll:
			c.runBlockingPoll(ctx)
		default:
			c.runTimedPoll(ctx)
		}
	}
	return ctx.Err()
}

func (c *Controller) runStream(ctx context.Context) {
	cb := client.StreamCallbacks{
		OnEnvelope: func(env model.Envelope) error {
			c.deliver(ctx, env)
			return nil
		},
	}
	for ctx.Err() == nil {
		err := c.transport.Stream(ctx, c.threadID, c.Cursor(), cb)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			// Server closed the stream at its cap; reconnect from the cursor.
			c.resetRetries()
			c.logger.Debug("live: stream closed by server, reconnecting", "thread", c.threadID)
			continue
		}
		if c.fail(ctx, err) {
			return
		}
		if !sleep(ctx, c.cfg.RetryDelay) {
			return
		}
	}
}

func (c *Controller) runBlockingPoll(ctx context.Context) {
	for ctx.Err() == nil {
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.LongPollTimeout+c.cfg.PollTimeout)
		b, err := c.transport.Wait(reqCtx, c.threadID, c.Cursor(), c.cfg.LongPollTimeout)
		cancel()
		if ctx.Err() != nil {
			return
		}
		switch {
		case err == nil:
			c.deliverBatch(ctx, b)
			c.resetRetries()
		case errors.Is(err, context.DeadlineExceeded):
			// Our own deadline: same as an empty response.
		default:
			if c.fail(ctx, err) {
				return
			}
			if !sleep(ctx, c.cfg.RetryDelay) {
				return
			}
			continue
		}
		if !sleep(ctx, c.cfg.pollPause) {
			return
		}
	}
}

func (c *Controller) runTimedPoll(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
		b, err := c.transport.Fetch(reqCtx, c.threadID, c.Cursor(), 0)
		cancel()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.report(ctx, err)
		} else {
			c.deliverBatch(ctx, b)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Controller) deliverBatch(ctx context.Context, b *client.Batch) {
	if b == nil {
		return
	}
	for _, env := range b.Events {
		c.deliver(ctx, env)
	}
}

// deliver advances the cursor for a real event and hands it to OnEvent
// unless it was already delivered. Markers are dropped.
func (c *Controller) deliver(ctx context.Context, env model.Envelope) {
	if ctx.Err() != nil || env.Event.IsMarker() {
		return
	}
	c.mu.Lock()
	c.cursor = c.cursor.Advance(env.Timestamp)
	c.retries = 0
	c.mu.Unlock()

	if env.ID != 0 && !c.seen.Add(env.ID) {
		return
	}
	if c.cb.OnEvent != nil {
		c.cb.OnEvent(env)
	}
}

func (c *Controller) resetRetries() {
	c.mu.Lock()
	c.retries = 0
	c.mu.Unlock()
}

func (c *Controller) report(ctx context.Context, err error) {
	c.logger.Warn("live: transport error", "thread", c.threadID, "tier", c.Tier(), "error", err)
	if ctx.Err() == nil && c.cb.OnError != nil {
		c.cb.OnError(err)
	}
}

// fail records a failure on the current tier and degrades once MaxRetries
// consecutive failures have happened. It reports whether the tier changed.
func (c *Controller) fail(ctx context.Context, err error) bool {
	c.report(ctx, err)

	c.mu.Lock()
	c.retries++
	if c.retries < c.cfg.MaxRetries || c.tier == TierTimedPoll {
		c.mu.Unlock()
		return false
	}
	prev := c.tier
	c.tier = prev.next()
	c.retries = 0
	next := c.tier
	c.mu.Unlock()

	c.logger.Info("live: degrading transport", "thread", c.threadID, "from", prev, "to", next)
	if ctx.Err() == nil && c.cb.OnStateChange != nil {
		c.cb.OnStateChange(next, prev)
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
