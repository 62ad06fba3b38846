// Package presence tracks who is currently watching each thread.
//
// The server touches a viewer on every poll and holds it open for the life
// of a stream. A background reaper forgets viewers that have neither an open
// stream nor a recent request.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Visit is one observation of a viewer reading a thread.
type Visit struct {
	ThreadID  int64
	Viewer    string // session id, or a user key when no session was sent
	UserID    int64  // 0 for anonymous viewers
	Transport string // "stream", "blocking_poll", "timed_poll"
}

// Entry is a snapshot of one viewer.
type Entry struct {
	Viewer      string    `json:"viewer"`
	UserID      int64     `json:"user_id,omitempty"`
	Transport   string    `json:"transport"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	IdleSecs    float64   `json:"idle_secs"`
	Requests    int64     `json:"requests"`
	OpenStreams int       `json:"open_streams,omitempty"`
}

// ReaperConfig configures the background idle-viewer reaper.
type ReaperConfig struct {
	// IdleThreshold is how long a viewer without an open stream may go
	// without a request before it is forgotten. Default: 90 seconds, long
	// enough to cover one timed-poll interval plus a slow request.
	IdleThreshold time.Duration

	// SweepInterval is how often the reaper scans. Default: 30 seconds.
	SweepInterval time.Duration

	// OnLeave is called for each reaped viewer, outside the lock.
	OnLeave func(threadID int64, viewer string)
}

type viewerKey struct {
	thread int64
	viewer string
}

type viewerState struct {
	userID    int64
	transport string
	firstSeen time.Time
	lastSeen  time.Time
	requests  int64
	open      int
}

// Tracker maintains the in-memory viewer roster.
type Tracker struct {
	mu      sync.RWMutex
	viewers map[viewerKey]*viewerState
	now     func() time.Time

	reaperStop chan struct{}
	reaperDone chan struct{}
}

// New creates a new presence tracker.
func New() *Tracker {
	return &Tracker{
		viewers: make(map[viewerKey]*viewerState),
		now:     time.Now,
	}
}

func (t *Tracker) touchLocked(v Visit, now time.Time) *viewerState {
	k := viewerKey{v.ThreadID, v.Viewer}
	state, ok := t.viewers[k]
	if !ok {
		state = &viewerState{firstSeen: now}
		t.viewers[k] = state
	}
	state.lastSeen = now
	state.requests++
	if v.UserID != 0 {
		state.userID = v.UserID
	}
	if v.Transport != "" {
		state.transport = v.Transport
	}
	return state
}

// Touch records a request from a viewer.
func (t *Tracker) Touch(v Visit) {
	if v.ThreadID <= 0 || v.Viewer == "" {
		return
	}
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.touchLocked(v, now)
}

// Join records a viewer opening a stream. Pair every Join with a Leave.
func (t *Tracker) Join(v Visit) {
	if v.ThreadID <= 0 || v.Viewer == "" {
		return
	}
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.touchLocked(v, now).open++
}

// Leave records a stream closing. The viewer stays listed until idle, so a
// reconnecting client does not flicker out of the roster.
func (t *Tracker) Leave(threadID int64, viewer string) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if state, ok := t.viewers[viewerKey{threadID, viewer}]; ok {
		if state.open > 0 {
			state.open--
		}
		state.lastSeen = now
	}
}

// Viewers returns the viewers of a thread, most recently active first.
// staleThreshold excludes viewers idle for longer without an open stream;
// pass 0 to include everyone tracked.
func (t *Tracker) Viewers(threadID int64, staleThreshold time.Duration) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	entries := make([]Entry, 0)
	for k, state := range t.viewers {
		if k.thread != threadID {
			continue
		}
		idle := now.Sub(state.lastSeen)
		if staleThreshold > 0 && state.open == 0 && idle > staleThreshold {
			continue
		}
		entries = append(entries, Entry{
			Viewer:      k.viewer,
			UserID:      state.userID,
			Transport:   state.transport,
			FirstSeen:   state.firstSeen,
			LastSeen:    state.lastSeen,
			IdleSecs:    idle.Seconds(),
			Requests:    state.requests,
			OpenStreams: state.open,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastSeen.After(entries[j].LastSeen)
	})
	return entries
}

// Count returns how many viewers a thread has within staleThreshold.
func (t *Tracker) Count(threadID int64, staleThreshold time.Duration) int {
	return len(t.Viewers(threadID, staleThreshold))
}

// StartReaper launches a background goroutine that periodically forgets
// idle viewers. Call Stop() to shut it down.
func (t *Tracker) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.IdleThreshold == 0 {
		cfg.IdleThreshold = 90 * time.Second
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 30 * time.Second
	}

	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go t.reapLoop(cfg)
	slog.Info("presence: reaper started",
		"idle_threshold", cfg.IdleThreshold,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg *ReaperConfig) {
	defer close(t.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.C:
			t.sweep(cfg)
		}
	}
}

func (t *Tracker) sweep(cfg *ReaperConfig) int {
	now := t.now()

	var gone []viewerKey
	t.mu.Lock()
	for k, state := range t.viewers {
		if state.open > 0 {
			continue
		}
		if now.Sub(state.lastSeen) > cfg.IdleThreshold {
			delete(t.viewers, k)
			gone = append(gone, k)
		}
	}
	t.mu.Unlock()

	for _, k := range gone {
		slog.Debug("presence: viewer left", "thread_id", k.thread, "viewer", k.viewer)
		if cfg.OnLeave != nil {
			cfg.OnLeave(k.thread, k.viewer)
		}
	}
	return len(gone)
}
