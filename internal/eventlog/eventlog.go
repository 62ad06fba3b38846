// Package eventlog is the append-only, per-thread record of what happened.
//
// Readers poll it from a cursor forward; appends happen inside the same
// store transaction as the mutation they describe, and a notice is published
// only after that transaction commits.
package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/threadlive/internal/events"
	"github.com/alfredjeanlab/threadlive/internal/model"
	"github.com/alfredjeanlab/threadlive/internal/store"
)

// Query limits.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// topThreads is how many threads Stats ranks.
const topThreads = 10

// Log reads and appends thread events.
type Log struct {
	store  store.Store
	pub    events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

// New returns a Log over s. Notices go to pub; a nil pub disables them.
func New(s store.Store, pub events.Publisher, logger *slog.Logger) *Log {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{store: s, pub: pub, logger: logger, now: time.Now}
}

// Append writes e inside the caller's transaction tx and returns its id.
// The payload is stored as given.
func (l *Log) Append(ctx context.Context, tx store.Store, e *model.Event) (int64, error) {
	if err := tx.AppendEvent(ctx, e); err != nil {
		return 0, err
	}
	return e.ID, nil
}

// Record appends e in its own transaction and publishes its notice.
func (l *Log) Record(ctx context.Context, e *model.Event) error {
	err := l.store.RunInTransaction(ctx, func(tx store.Store) error {
		_, err := l.Append(ctx, tx, e)
		return err
	})
	if err != nil {
		return err
	}
	l.Notify(ctx, e)
	return nil
}

// Notify publishes an append notice for each committed event. Failures are
// logged and otherwise ignored: readers still find the events on their next
// re-check.
func (l *Log) Notify(ctx context.Context, evts ...*model.Event) {
	for _, e := range evts {
		n := events.NoticeFor(e)
		if err := l.pub.Publish(ctx, n.Subject(), n); err != nil {
			l.logger.Warn("failed to publish append notice",
				"thread_id", e.ThreadID, "event_id", e.ID, "type", e.Type, "error", err)
		}
	}
}

// ClampLimit applies the default and maximum page sizes.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// Query returns up to limit events of threadID created strictly after
// cursor, ordered by (created_at, id). It has no side effects.
func (l *Log) Query(ctx context.Context, threadID int64, cursor model.Cursor, limit int) ([]*model.Event, error) {
	if threadID <= 0 {
		return nil, fmt.Errorf("%w: thread id must be positive", model.ErrInvalidArgument)
	}
	if cursor < 0 {
		return nil, fmt.Errorf("%w: cursor must not be negative", model.ErrInvalidArgument)
	}
	return l.query(ctx, threadID, cursor, ClampLimit(limit))
}

func (l *Log) query(ctx context.Context, threadID int64, cursor model.Cursor, limit int) ([]*model.Event, error) {
	evts, err := l.store.QueryEvents(ctx, threadID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("query events for thread %d: %w", threadID, err)
	}
	return evts, nil
}

// Page is Query for consumers that resume from the newest created_at they
// received. A page never ends partway through a second: a full page drops
// its trailing second so the next read starts there again, and a page made
// of a single second is extended to hold all of it.
func (l *Log) Page(ctx context.Context, threadID int64, cursor model.Cursor, limit int) ([]*model.Event, error) {
	if threadID <= 0 {
		return nil, fmt.Errorf("%w: thread id must be positive", model.ErrInvalidArgument)
	}
	if cursor < 0 {
		return nil, fmt.Errorf("%w: cursor must not be negative", model.ErrInvalidArgument)
	}
	n := ClampLimit(limit)
	evts, err := l.query(ctx, threadID, cursor, n+1)
	if err != nil || len(evts) <= n {
		return evts, err
	}
	last := evts[n-1].Cursor()
	if evts[n].Cursor() != last {
		return evts[:n], nil
	}
	i := n
	for i > 0 && evts[i-1].Cursor() == last {
		i--
	}
	if i > 0 {
		return evts[:i], nil
	}

	for m := 2 * (n + 1); ; m *= 2 {
		evts, err = l.query(ctx, threadID, cursor, m)
		if err != nil {
			return nil, err
		}
		if len(evts) < m || evts[len(evts)-1].Cursor() != last {
			break
		}
	}
	i = 0
	for i < len(evts) && evts[i].Cursor() == last {
		i++
	}
	return evts[:i], nil
}

// LatestCursor returns the newest event time in the thread, or 0 when empty.
func (l *Log) LatestCursor(ctx context.Context, threadID int64) (model.Cursor, error) {
	if threadID <= 0 {
		return 0, fmt.Errorf("%w: thread id must be positive", model.ErrInvalidArgument)
	}
	return l.store.LatestEventTime(ctx, threadID)
}

// Cutoff returns the creation time before which events are older than maxAge.
func (l *Log) Cutoff(maxAge time.Duration) time.Time {
	return l.now().Add(-maxAge)
}

// Before returns up to limit events created before t, oldest first.
func (l *Log) Before(ctx context.Context, t time.Time, limit int) ([]*model.Event, error) {
	return l.store.ListEventsBefore(ctx, t, limit)
}

// Sweep deletes events older than maxAge and returns how many were removed.
// It selects by age only, so it is safe to run next to readers.
func (l *Log) Sweep(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, fmt.Errorf("%w: max age must be positive", model.ErrInvalidArgument)
	}
	return l.SweepBefore(ctx, l.Cutoff(maxAge))
}

// SweepBefore deletes events created before cutoff.
func (l *Log) SweepBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := l.store.DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep events before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return n, nil
}

// Stats summarizes events created in the last window.
func (l *Log) Stats(ctx context.Context, window time.Duration) (*model.EventStats, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive", model.ErrInvalidArgument)
	}
	return l.store.EventStats(ctx, l.now().Add(-window), topThreads)
}
