package rpc

import "github.com/alfredjeanlab/threadlive/internal/model"

// FetchRequest asks for the events of a thread after a cursor.
type FetchRequest struct {
	ThreadID int64        `json:"thread_id"`
	Cursor   model.Cursor `json:"last_event_timestamp"`
	Limit    int          `json:"limit,omitempty"`
}

// WaitRequest blocks until events after the cursor exist or the timeout ends.
type WaitRequest struct {
	ThreadID       int64        `json:"thread_id"`
	Cursor         model.Cursor `json:"last_event_timestamp"`
	TimeoutSeconds int          `json:"timeout_seconds,omitempty"`
}

// StreamRequest opens a server stream of envelopes.
type StreamRequest struct {
	ThreadID int64        `json:"thread_id"`
	Cursor   model.Cursor `json:"last_event_timestamp"`
}

// EventsResponse carries a batch of envelopes and the server time.
type EventsResponse struct {
	Events    []model.Envelope `json:"events"`
	Timestamp int64            `json:"timestamp"`
}
