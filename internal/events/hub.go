package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// hubBuffer is the per-subscriber channel capacity. A notice only needs to
// wake its reader once, so a full channel drops further notices.
const hubBuffer = 16

// Hub fans notices out to in-process subscribers. It implements Publisher so
// it can sit next to the NATS publisher in a MultiPublisher.
type Hub struct {
	mu     sync.Mutex
	subs   map[*hubSub]struct{}
	closed bool
}

type hubSub struct {
	pattern string
	ch      chan Notice
}

var _ Publisher = (*Hub)(nil)

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*hubSub]struct{})}
}

// Subscribe registers for notices whose subject matches pattern
// (NATS-style "*" and ">" wildcards). Call cancel to unsubscribe; it closes
// the channel.
func (h *Hub) Subscribe(pattern string) (<-chan Notice, func()) {
	s := &hubSub{pattern: pattern, ch: make(chan Notice, hubBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[s]; ok {
				delete(h.subs, s)
				close(s.ch)
			}
		})
	}
	return s.ch, cancel
}

// Broadcast delivers n to every matching subscriber without blocking.
func (h *Hub) Broadcast(n Notice) {
	subject := n.Subject()

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if !MatchSubject(s.pattern, subject) {
			continue
		}
		select {
		case s.ch <- n:
		default:
		}
	}
}

// Publish broadcasts a Notice, or raw JSON encoding one.
func (h *Hub) Publish(_ context.Context, _ string, event any) error {
	switch v := event.(type) {
	case Notice:
		h.Broadcast(v)
	case *Notice:
		h.Broadcast(*v)
	case []byte:
		var n Notice
		if err := json.Unmarshal(v, &n); err != nil {
			return fmt.Errorf("decoding notice: %w", err)
		}
		h.Broadcast(n)
	default:
		return fmt.Errorf("hub cannot publish %T", event)
	}
	return nil
}

// Subscribers returns the number of registered subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close unsubscribes everyone and closes their channels.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for s := range h.subs {
		close(s.ch)
		delete(h.subs, s)
	}
	return nil
}

// MatchSubject matches a dot-separated subject against a pattern.
// Supports "*" as a single-segment wildcard and ">" as a multi-segment
// suffix wildcard (NATS-style).
func MatchSubject(pattern, subject string) bool {
	if pattern == subject {
		return true
	}

	patParts := strings.Split(pattern, ".")
	subParts := strings.Split(subject, ".")

	for i, pp := range patParts {
		if pp == ">" {
			// ">" matches one or more remaining segments.
			return i < len(subParts)
		}
		if i >= len(subParts) {
			return false
		}
		if pp != "*" && pp != subParts[i] {
			return false
		}
	}

	return len(patParts) == len(subParts)
}
