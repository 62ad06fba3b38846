package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/alfredjeanlab/threadlive/internal/model"
	"github.com/alfredjeanlab/threadlive/internal/presence"
)

// sseSink writes stream envelopes as Server-Sent Events. Headers are written
// on Open, after the stream holds a delivery slot, so a rejected stream can
// still answer with a JSON error.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	opened  bool
}

func (s *sseSink) Open() error {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
	s.opened = true
	return nil
}

func (s *sseSink) Send(env model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := writeSSEEvent(s.w, string(env.Event), data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// writeSSEEvent writes a single SSE event to the writer.
func writeSSEEvent(w http.ResponseWriter, event string, data []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// handleStream handles GET /v1/stream (SSE endpoint).
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

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

	p := principalFromRequest(r)
	viewer := s.viewerID(w, r, p)
	s.Presence.Join(presence.Visit{ThreadID: threadID, Viewer: viewer, UserID: p.UserID, Transport: transportStream})
	defer s.Presence.Leave(threadID, viewer)

	sink := &sseSink{w: w, flusher: flusher}
	err = s.delivery.Stream(r.Context(), threadID, cursor, sink)
	switch {
	case err == nil, r.Context().Err() != nil:
	case !sink.opened:
		s.writeDomainError(w, r, err)
	default:
		s.logger.Warn("stream ended with error", "thread_id", threadID, "error", err)
	}
}
