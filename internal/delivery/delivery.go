// Package delivery serves a thread's event log to readers in three ways: a
// single fetch, a blocking wait for the next events, and a continuous
// stream with heartbeats.
//
// Blocking waits and streams sleep on append notices from the in-process
// hub and re-check the log on a fixed interval as a floor, so a lost notice
// only delays delivery. They hold a slot from a bounded pool; when the pool
// is exhausted new requests fail fast with model.ErrUnavailable.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/alfredjeanlab/threadlive/internal/eventlog"
	"github.com/alfredjeanlab/threadlive/internal/events"
	"github.com/alfredjeanlab/threadlive/internal/model"
)

// Config tunes delivery timing and capacity.
type Config struct {
	PollInterval      time.Duration // log re-check interval while waiting
	StreamInterval    time.Duration // log re-check interval while streaming
	HeartbeatInterval time.Duration // idle time before a stream heartbeat
	MaxStreamDuration time.Duration // wall-clock cap on one stream
	DefaultWait       time.Duration
	MaxWait           time.Duration
	StreamBatch       int   // events read per stream re-check
	MaxLongLived      int64 // concurrent waits plus streams
}

// DefaultConfig returns the standard delivery settings.
func DefaultConfig() Config {
	return Config{
		PollInterval:      time.Second,
		StreamInterval:    500 * time.Millisecond,
		HeartbeatInterval: 20 * time.Second,
		MaxStreamDuration: 300 * time.Second,
		DefaultWait:       25 * time.Second,
		MaxWait:           60 * time.Second,
		StreamBatch:       10,
		MaxLongLived:      256,
	}
}

// Batch is the result of a fetch or wait. Now is the server time the batch
// was produced, which readers echo back as a timestamp.
type Batch struct {
	Events []*model.Event
	Now    time.Time
}

// Envelopes returns the batch in wire form.
func (b *Batch) Envelopes() []model.Envelope {
	return model.Envelopes(b.Events)
}

// Sink receives stream envelopes in order. An error ends the stream.
type Sink interface {
	Send(env model.Envelope) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(env model.Envelope) error

func (f SinkFunc) Send(env model.Envelope) error { return f(env) }

// Opener is implemented by sinks that prepare their transport, such as
// writing response headers, once the stream has been granted a slot.
type Opener interface {
	Open() error
}

// Service implements the three delivery patterns over an event log.
type Service struct {
	log     *eventlog.Log
	hub     *events.Hub
	slots   *semaphore.Weighted
	cfg     Config
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// New returns a Service. hub may be nil, in which case readers rely on the
// re-check interval alone.
func New(log *eventlog.Log, hub *events.Hub, cfg Config, metrics *Metrics, logger *slog.Logger) *Service {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = def.StreamInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.MaxStreamDuration <= 0 {
		cfg.MaxStreamDuration = def.MaxStreamDuration
	}
	if cfg.DefaultWait <= 0 {
		cfg.DefaultWait = def.DefaultWait
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = def.MaxWait
	}
	if cfg.StreamBatch <= 0 {
		cfg.StreamBatch = def.StreamBatch
	}
	if cfg.MaxLongLived <= 0 {
		cfg.MaxLongLived = def.MaxLongLived
	}
	if metrics == nil {
		metrics = MustNewMetrics(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		log:     log,
		hub:     hub,
		slots:   semaphore.NewWeighted(cfg.MaxLongLived),
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// Fetch returns the events after cursor in one round trip; the batch may be
// empty. Batches hold whole seconds; see eventlog.Log.Page.
func (s *Service) Fetch(ctx context.Context, threadID int64, cursor model.Cursor, limit int) (*Batch, error) {
	s.metrics.requests.WithLabelValues(modeFetch).Inc()
	evts, err := s.log.Page(ctx, threadID, cursor, limit)
	if err != nil {
		return nil, err
	}
	s.metrics.delivered.WithLabelValues(modeFetch).Add(float64(len(evts)))
	return &Batch{Events: evts, Now: s.now()}, nil
}

// ClampWait applies the default and maximum wait durations.
func (s *Service) ClampWait(timeout time.Duration) time.Duration {
	switch {
	case timeout <= 0:
		return s.cfg.DefaultWait
	case timeout > s.cfg.MaxWait:
		return s.cfg.MaxWait
	}
	return timeout
}

func (s *Service) acquire(mode string) (func(), error) {
	if !s.slots.TryAcquire(1) {
		s.metrics.rejected.WithLabelValues(mode).Inc()
		return nil, fmt.Errorf("%w: all %d long-lived slots in use", model.ErrUnavailable, s.cfg.MaxLongLived)
	}
	s.metrics.activeLongLived.Inc()
	return func() {
		s.metrics.activeLongLived.Dec()
		s.slots.Release(1)
	}, nil
}

// subscribe registers for the thread's append notices before the first read
// so an append between that read and the wait is not slept through.
func (s *Service) subscribe(threadID int64) (<-chan events.Notice, func()) {
	if s.hub == nil {
		return nil, func() {}
	}
	return s.hub.Subscribe(events.ThreadWildcard(threadID))
}

// WaitFor blocks until events after cursor exist or timeout elapses. A
// timeout returns an empty batch, not an error.
func (s *Service) WaitFor(ctx context.Context, threadID int64, cursor model.Cursor, timeout time.Duration) (*Batch, error) {
	s.metrics.requests.WithLabelValues(modeWait).Inc()
	release, err := s.acquire(modeWait)
	if err != nil {
		return nil, err
	}
	defer release()

	start := s.now()
	defer func() { s.metrics.waitDuration.Observe(s.now().Sub(start).Seconds()) }()

	notices, cancel := s.subscribe(threadID)
	defer cancel()

	deadline := time.NewTimer(s.ClampWait(timeout))
	defer deadline.Stop()
	recheck := time.NewTicker(s.cfg.PollInterval)
	defer recheck.Stop()

	for {
		evts, err := s.log.Page(ctx, threadID, cursor, eventlog.DefaultLimit)
		if err != nil {
			return nil, err
		}
		if len(evts) > 0 {
			s.metrics.delivered.WithLabelValues(modeWait).Add(float64(len(evts)))
			return &Batch{Events: evts, Now: s.now()}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return &Batch{Now: s.now()}, nil
		case _, ok := <-notices:
			if !ok {
				notices = nil
			}
		case <-recheck.C:
		}
	}
}

// Stream writes events after cursor to sink as they are appended, with a
// heartbeat after each idle HeartbeatInterval. After MaxStreamDuration it
// writes a close marker and returns nil. It returns ctx.Err() when the
// reader goes away and the sink's error when a write fails.
func (s *Service) Stream(ctx context.Context, threadID int64, cursor model.Cursor, sink Sink) error {
	if threadID <= 0 {
		return fmt.Errorf("%w: thread id must be positive", model.ErrInvalidArgument)
	}
	s.metrics.requests.WithLabelValues(modeStream).Inc()
	release, err := s.acquire(modeStream)
	if err != nil {
		return err
	}
	defer release()

	notices, cancel := s.subscribe(threadID)
	defer cancel()

	if o, ok := sink.(Opener); ok {
		if err := o.Open(); err != nil {
			return err
		}
	}

	deadline := time.NewTimer(s.cfg.MaxStreamDuration)
	defer deadline.Stop()
	heartbeat := time.NewTimer(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	recheck := time.NewTicker(s.cfg.StreamInterval)
	defer recheck.Stop()

	tw := newTieWindow(cursor)
	for {
		evts, err := s.log.Query(ctx, threadID, tw.since(), s.cfg.StreamBatch+tw.size())
		if err != nil {
			return err
		}
		sent := 0
		for _, e := range evts {
			if !tw.admit(e) {
				continue
			}
			if err := sink.Send(e.Envelope()); err != nil {
				return err
			}
			sent++
		}
		if sent > 0 {
			s.metrics.delivered.WithLabelValues(modeStream).Add(float64(sent))
			resetTimer(heartbeat, s.cfg.HeartbeatInterval)
			if sent >= s.cfg.StreamBatch {
				// More may be pending; read again unless the stream is over.
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-deadline.C:
					return sink.Send(model.CloseEnvelope(threadID, s.now()))
				default:
					continue
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return sink.Send(model.CloseEnvelope(threadID, s.now()))
		case <-heartbeat.C:
			if err := sink.Send(model.HeartbeatEnvelope(threadID, s.now())); err != nil {
				return err
			}
			s.metrics.heartbeats.Inc()
			heartbeat.Reset(s.cfg.HeartbeatInterval)
		case _, ok := <-notices:
			if !ok {
				notices = nil
			}
		case <-recheck.C:
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// tieWindow tracks the events already sent in the newest second. Cursors
// have second resolution, so once a stream has sent an event at second T it
// keeps reading from T inclusive and skips what it already sent; an event
// committed later within the same second is still delivered.
type tieWindow struct {
	cursor model.Cursor
	open   bool
	seen   map[int64]struct{}
}

func newTieWindow(c model.Cursor) *tieWindow {
	return &tieWindow{cursor: c, seen: make(map[int64]struct{})}
}

// since returns the strict lower bound for the next read.
func (w *tieWindow) since() model.Cursor {
	if w.open && w.cursor > 0 {
		return w.cursor - 1
	}
	return w.cursor
}

func (w *tieWindow) size() int {
	return len(w.seen)
}

// admit reports whether e is new to the stream and records it.
func (w *tieWindow) admit(e *model.Event) bool {
	c := e.Cursor()
	switch {
	case c < w.cursor:
		return false
	case c == w.cursor:
		if _, dup := w.seen[e.ID]; dup {
			return false
		}
	default:
		w.cursor = c
		clear(w.seen)
	}
	w.open = true
	w.seen[e.ID] = struct{}{}
	return true
}
