package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/alfredjeanlab/threadlive/internal/model"
	"github.com/alfredjeanlab/threadlive/internal/presence"
)

// Presence transport labels.
const (
	transportStream       = "stream"
	transportBlockingPoll = "blocking_poll"
	transportTimedPoll    = "timed_poll"
)

// pollResponse is the body of GET /v1/poll.
type pollResponse struct {
	Success   bool             `json:"success"`
	Events    []model.Envelope `json:"events"`
	Timestamp int64            `json:"timestamp"`
}

// parseBool accepts the usual spellings; anything else yields def.
func parseBool(raw string, def bool) bool {
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

// handlePoll handles GET /v1/poll. With longpoll (the default) it blocks
// until events arrive or the wait times out; otherwise it returns at once.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	threadID, err := int64Param(q.Get("thread_id"), "thread_id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	cursor, err := model.ParseCursor(q.Get("last_event_timestamp"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	longpoll := parseBool(q.Get("longpoll"), true)

	p := principalFromRequest(r)
	visit := presence.Visit{ThreadID: threadID, Viewer: s.viewerID(w, r, p), UserID: p.UserID, Transport: transportTimedPoll}

	var batchErr error
	resp := pollResponse{Success: true}
	if longpoll {
		visit.Transport = transportBlockingPoll
		s.Presence.Touch(visit)

		var timeout time.Duration
		if secs, err := strconv.Atoi(q.Get("timeout")); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
		batch, err := s.delivery.WaitFor(r.Context(), threadID, cursor, timeout)
		if err == nil {
			resp.Events, resp.Timestamp = batch.Envelopes(), batch.Now.Unix()
		}
		batchErr = err
	} else {
		s.Presence.Touch(visit)

		limit, _ := strconv.Atoi(q.Get("limit"))
		batch, err := s.delivery.Fetch(r.Context(), threadID, cursor, limit)
		if err == nil {
			resp.Events, resp.Timestamp = batch.Envelopes(), batch.Now.Unix()
		}
		batchErr = err
	}
	if batchErr != nil {
		if r.Context().Err() != nil {
			return
		}
		s.writeDomainError(w, r, batchErr)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleThreadCursor handles GET /v1/threads/{id}/cursor.
func (s *Server) handleThreadCursor(w http.ResponseWriter, r *http.Request) {
	threadID, err := int64Param(r.PathValue("id"), "thread id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	c, err := s.log.LatestCursor(r.Context(), threadID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"thread_id": threadID, "timestamp": int64(c)})
}

// handleThreadViewers handles GET /v1/threads/{id}/viewers.
func (s *Server) handleThreadViewers(w http.ResponseWriter, r *http.Request) {
	threadID, err := int64Param(r.PathValue("id"), "thread id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	stale := s.viewerStaleAfter
	if secs, err := strconv.Atoi(r.URL.Query().Get("stale_secs")); err == nil && secs > 0 {
		stale = time.Duration(secs) * time.Second
	}
	viewers := s.Presence.Viewers(threadID, stale)
	writeJSON(w, http.StatusOK, map[string]any{
		"thread_id": threadID,
		"count":     len(viewers),
		"viewers":   viewers,
	})
}

// handleEventStats handles GET /v1/stats/events?days=N (default 7).
func (s *Server) handleEventStats(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 365 {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = n
	}
	stats, err := s.log.Stats(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
