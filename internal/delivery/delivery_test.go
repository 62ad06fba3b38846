package delivery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/threadlive/internal/eventlog"
	"github.com/alfredjeanlab/threadlive/internal/events"
	"github.com/alfredjeanlab/threadlive/internal/model"
	"github.com/alfredjeanlab/threadlive/internal/store/memory"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type harness struct {
	svc *Service
	log *eventlog.Log
	hub *events.Hub
}

func newHarness(t *testing.T, cfg Config, withHub bool, now func() time.Time) *harness {
	t.Helper()
	s := memory.NewWithClock(now)
	var (
		hub *events.Hub
		pub events.Publisher
	)
	if withHub {
		hub = events.NewHub()
		pub = hub
	}
	log := eventlog.New(s, pub, discard)
	return &harness{svc: New(log, hub, cfg, nil, discard), log: log, hub: hub}
}

func (h *harness) record(t *testing.T, typ model.EventType, thread int64) *model.Event {
	t.Helper()
	e, _ := model.NewEvent(typ, thread, 1, 1, nil)
	if err := h.log.Record(context.Background(), e); err != nil {
		t.Fatalf("Record: %v", err)
	}
	return e
}

// collector is a Sink that records envelopes.
type collector struct {
	mu   sync.Mutex
	envs []model.Envelope
	err  error
}

func (c *collector) Send(env model.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.envs = append(c.envs, env)
	return nil
}

func (c *collector) snapshot() []model.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Envelope(nil), c.envs...)
}

func (c *collector) count(typ model.EventType) int {
	n := 0
	for _, env := range c.snapshot() {
		if env.Event == typ {
			n++
		}
	}
	return n
}

func TestFetch_EmptyThread(t *testing.T) {
	h := newHarness(t, Config{}, true, time.Now)
	before := time.Now()

	b, err := h.svc.Fetch(context.Background(), 42, 0, 50)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(b.Events) != 0 {
		t.Errorf("got %d events", len(b.Events))
	}
	if b.Now.Before(before) {
		t.Errorf("Now = %v, want >= %v", b.Now, before)
	}
	if envs := b.Envelopes(); envs == nil || len(envs) != 0 {
		t.Errorf("Envelopes() = %#v, want empty non-nil slice", envs)
	}
}

func TestWaitFor_TimesOutEmpty(t *testing.T) {
	h := newHarness(t, Config{PollInterval: 20 * time.Millisecond}, true, time.Now)

	start := time.Now()
	b, err := h.svc.WaitFor(context.Background(), 42, 0, 150*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	if len(b.Events) != 0 {
		t.Errorf("got %d events", len(b.Events))
	}
	if elapsed := time.Since(start); elapsed < 140*time.Millisecond {
		t.Errorf("returned after %v, want about 150ms", elapsed)
	}
}

func TestWaitFor_WakesOnNotice(t *testing.T) {
	// A re-check interval far beyond the test timeout proves the notice did the waking.
	h := newHarness(t, Config{PollInterval: time.Hour}, true, time.Now)

	go func() {
		time.Sleep(50 * time.Millisecond)
		h.record(t, model.EventNewAnswer, 42)
	}()

	start := time.Now()
	b, err := h.svc.WaitFor(context.Background(), 42, 0, 5*time.Second)
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	if len(b.Events) != 1 {
		t.Fatalf("got %d events", len(b.Events))
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("took %v to wake", elapsed)
	}
}

func TestWaitFor_RecheckWithoutNotices(t *testing.T) {
	h := newHarness(t, Config{PollInterval: 20 * time.Millisecond}, false, time.Now)

	go func() {
		time.Sleep(50 * time.Millisecond)
		h.record(t, model.EventVoteUpdate, 42)
	}()

	b, err := h.svc.WaitFor(context.Background(), 42, 0, 5*time.Second)
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	if len(b.Events) != 1 {
		t.Fatalf("got %d events", len(b.Events))
	}
}

func TestWaitFor_ReturnsExistingImmediately(t *testing.T) {
	h := newHarness(t, Config{}, true, time.Now)
	h.record(t, model.EventNewAnswer, 42)

	b, err := h.svc.WaitFor(context.Background(), 42, 0, 10*time.Second)
	if err != nil || len(b.Events) != 1 {
		t.Fatalf("WaitFor = %v, %v", b, err)
	}
}

func TestWaitFor_ContextCanceled(t *testing.T) {
	h := newHarness(t, Config{}, true, time.Now)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := h.svc.WaitFor(ctx, 42, 0, 10*time.Second); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestPolling_SameSecondBurstFullyDelivered(t *testing.T) {
	fixed := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, Config{PollInterval: 10 * time.Millisecond}, true, func() time.Time { return fixed })
	for range 60 {
		h.record(t, model.EventVoteUpdate, 42)
	}
	ctx := context.Background()

	seen := map[int64]bool{}
	var cursor model.Cursor
	advance := func(b *Batch) {
		for _, e := range b.Events {
			seen[e.ID] = true
			if c := e.Cursor(); c > cursor {
				cursor = c
			}
		}
	}

	b, err := h.svc.Fetch(ctx, 42, cursor, 50)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	advance(b)
	b, err = h.svc.WaitFor(ctx, 42, cursor, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	advance(b)

	if len(seen) != 60 {
		t.Errorf("delivered %d of 60 events appended in one second", len(seen))
	}
}

func TestFetch_FullPageEndsOnSecondBoundary(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
	h := newHarness(t, Config{}, true, clock)
	for range 45 {
		h.record(t, model.EventVoteUpdate, 42)
	}
	mu.Lock()
	now = now.Add(time.Second)
	mu.Unlock()
	for range 10 {
		h.record(t, model.EventVoteUpdate, 42)
	}
	ctx := context.Background()

	first, err := h.svc.Fetch(ctx, 42, 0, 50)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(first.Events) != 45 {
		t.Fatalf("first page = %d events, want 45 (trailing second held back)", len(first.Events))
	}
	second, err := h.svc.Fetch(ctx, 42, first.Events[44].Cursor(), 50)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(second.Events) != 10 {
		t.Errorf("second page = %d events, want 10", len(second.Events))
	}
}

func TestClampWait(t *testing.T) {
	h := newHarness(t, Config{}, true, time.Now)
	for _, tc := range []struct{ in, want time.Duration }{
		{0, 25 * time.Second},
		{5 * time.Second, 5 * time.Second},
		{10 * time.Minute, 60 * time.Second},
	} {
		if got := h.svc.ClampWait(tc.in); got != tc.want {
			t.Errorf("ClampWait(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLongLived_FailFastWhenSlotsExhausted(t *testing.T) {
	h := newHarness(t, Config{MaxLongLived: 1}, true, time.Now)
	if !h.svc.slots.TryAcquire(1) {
		t.Fatal("could not take the only slot")
	}
	defer h.svc.slots.Release(1)

	if _, err := h.svc.WaitFor(context.Background(), 42, 0, time.Second); !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("WaitFor err = %v, want ErrUnavailable", err)
	}
	if err := h.svc.Stream(context.Background(), 42, 0, &collector{}); !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("Stream err = %v, want ErrUnavailable", err)
	}
	// Fetch never takes a slot.
	if _, err := h.svc.Fetch(context.Background(), 42, 0, 10); err != nil {
		t.Errorf("Fetch err = %v", err)
	}
}

func TestStream_HeartbeatsThenCloses(t *testing.T) {
	h := newHarness(t, Config{
		HeartbeatInterval: 30 * time.Millisecond,
		MaxStreamDuration: 200 * time.Millisecond,
		StreamInterval:    10 * time.Millisecond,
	}, true, time.Now)

	sink := &collector{}
	if err := h.svc.Stream(context.Background(), 42, 0, sink); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	envs := sink.snapshot()
	if len(envs) == 0 || envs[len(envs)-1].Event != model.EventClose {
		t.Fatalf("stream did not end with close marker: %+v", envs)
	}
	if sink.count(model.EventHeartbeat) < 2 {
		t.Errorf("heartbeats = %d, want at least 2", sink.count(model.EventHeartbeat))
	}
	if sink.count(model.EventClose) != 1 {
		t.Errorf("close markers = %d", sink.count(model.EventClose))
	}
}

func TestStream_DeliversSameSecondAppends(t *testing.T) {
	fixed := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, Config{
		HeartbeatInterval: time.Hour,
		MaxStreamDuration: 400 * time.Millisecond,
		StreamInterval:    10 * time.Millisecond,
	}, true, func() time.Time { return fixed })

	first := h.record(t, model.EventNewAnswer, 42)

	sink := &collector{}
	done := make(chan error, 1)
	go func() { done <- h.svc.Stream(context.Background(), 42, 0, sink) }()

	time.Sleep(100 * time.Millisecond)
	second := h.record(t, model.EventVoteUpdate, 42)

	if err := <-done; err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var ids []int64
	for _, env := range sink.snapshot() {
		if !env.Event.IsMarker() {
			ids = append(ids, env.ID)
		}
	}
	if len(ids) != 2 || ids[0] != first.ID || ids[1] != second.ID {
		t.Errorf("delivered ids = %v, want [%d %d] exactly once each", ids, first.ID, second.ID)
	}
}

func TestStream_CursorExcludesOlderEvents(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
	h := newHarness(t, Config{MaxStreamDuration: 100 * time.Millisecond, StreamInterval: 10 * time.Millisecond}, true, clock)

	old := h.record(t, model.EventNewAnswer, 42)
	mu.Lock()
	now = now.Add(time.Second)
	mu.Unlock()
	h.record(t, model.EventVoteUpdate, 42)

	sink := &collector{}
	if err := h.svc.Stream(context.Background(), 42, old.Cursor(), sink); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if n := sink.count(model.EventNewAnswer); n != 0 {
		t.Errorf("event at the cursor second was re-sent %d times", n)
	}
	if n := sink.count(model.EventVoteUpdate); n != 1 {
		t.Errorf("vote_update delivered %d times", n)
	}
}

type openingSink struct {
	collector
	opened  bool
	openErr error
}

func (o *openingSink) Open() error {
	o.opened = true
	return o.openErr
}

func TestStream_OpensSinkAfterSlotGranted(t *testing.T) {
	h := newHarness(t, Config{MaxLongLived: 1, MaxStreamDuration: 30 * time.Millisecond}, true, time.Now)

	sink := &openingSink{}
	if err := h.svc.Stream(context.Background(), 42, 0, sink); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if !sink.opened {
		t.Error("Open was not called")
	}

	refused := errors.New("headers failed")
	if err := h.svc.Stream(context.Background(), 42, 0, &openingSink{openErr: refused}); !errors.Is(err, refused) {
		t.Fatalf("err = %v, want open error", err)
	}

	if !h.svc.slots.TryAcquire(1) {
		t.Fatal("slot not released")
	}
	defer h.svc.slots.Release(1)
	busy := &openingSink{}
	if err := h.svc.Stream(context.Background(), 42, 0, busy); !errors.Is(err, model.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if busy.opened {
		t.Error("Open called for a rejected stream")
	}
}

func TestStream_SinkErrorEndsStream(t *testing.T) {
	h := newHarness(t, Config{HeartbeatInterval: 10 * time.Millisecond}, true, time.Now)
	gone := errors.New("client gone")

	err := h.svc.Stream(context.Background(), 42, 0, &collector{err: gone})
	if !errors.Is(err, gone) {
		t.Fatalf("err = %v, want sink error", err)
	}
}

func TestStream_ContextCanceled(t *testing.T) {
	h := newHarness(t, Config{}, true, time.Now)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := h.svc.Stream(ctx, 42, 0, &collector{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	// The slot is released on return.
	if !h.svc.slots.TryAcquire(h.svc.cfg.MaxLongLived) {
		t.Error("slot leaked after stream ended")
	}
}

func TestTieWindow(t *testing.T) {
	at := func(id, sec int64) *model.Event {
		return &model.Event{ID: id, CreatedAt: time.Unix(sec, 0)}
	}
	w := newTieWindow(100)
	if w.since() != 100 {
		t.Fatalf("initial since = %d", w.since())
	}
	if !w.admit(at(1, 101)) {
		t.Fatal("new event rejected")
	}
	if w.since() != 100 {
		t.Errorf("since after admit = %d, want 100 (inclusive of 101)", w.since())
	}
	if w.admit(at(1, 101)) {
		t.Error("duplicate admitted")
	}
	if !w.admit(at(2, 101)) {
		t.Error("same-second event rejected")
	}
	if !w.admit(at(3, 102)) || w.size() != 1 {
		t.Errorf("window not reset on newer second, size %d", w.size())
	}
	if w.admit(at(4, 99)) {
		t.Error("older event admitted")
	}
}
