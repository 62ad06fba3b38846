package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies what happened in a thread.
type EventType string

// Stored event types.
const (
	EventNewAnswer      EventType = "new_answer"
	EventVoteUpdate     EventType = "vote_update"
	EventQuestionUpdate EventType = "question_update"
	EventModeration     EventType = "moderation_update"
	EventBestAnswer     EventType = "best_answer"
)

// Wire-only markers. These are never written to the log.
const (
	EventHeartbeat EventType = "heartbeat"
	EventClose     EventType = "close"
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	return string(t)
}

// IsValid reports whether t is one of the stored event types.
func (t EventType) IsValid() bool {
	switch t {
	case EventNewAnswer, EventVoteUpdate, EventQuestionUpdate, EventModeration, EventBestAnswer:
		return true
	}
	return false
}

// IsMarker reports whether t is a transport marker rather than a log entry.
func (t EventType) IsMarker() bool {
	return t == EventHeartbeat || t == EventClose
}

// Event is one immutable entry of a thread's log.
type Event struct {
	ID        int64           `json:"id"`
	Type      EventType       `json:"type"`
	ThreadID  int64           `json:"thread_id"`
	SubjectID int64           `json:"subject_id,omitempty"`
	ActorID   int64           `json:"actor_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Delivered bool            `json:"delivered,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEvent builds an unsaved event with payload marshaled to JSON.
// A nil payload is stored as an empty object.
func NewEvent(typ EventType, threadID, subjectID, actorID int64, payload any) (*Event, error) {
	raw := json.RawMessage(`{}`)
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
		}
		raw = b
	}
	return &Event{
		Type:      typ,
		ThreadID:  threadID,
		SubjectID: subjectID,
		ActorID:   actorID,
		Payload:   raw,
	}, nil
}

// Cursor returns the cursor position of the event.
func (e *Event) Cursor() Cursor {
	return CursorAt(e.CreatedAt)
}

// Envelope converts the event to its wire form.
func (e *Event) Envelope() Envelope {
	data := e.Payload
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	return Envelope{
		Event:     e.Type,
		ThreadID:  e.ThreadID,
		Timestamp: e.CreatedAt.Unix(),
		ID:        e.ID,
		Data:      data,
	}
}

// Envelope is the wire shape shared by every transport.
type Envelope struct {
	Event     EventType       `json:"event"`
	ThreadID  int64           `json:"thread_id,omitempty"`
	Timestamp int64           `json:"timestamp"`
	ID        int64           `json:"id,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// HeartbeatEnvelope returns the keepalive marker sent on idle streams.
func HeartbeatEnvelope(threadID int64, now time.Time) Envelope {
	return Envelope{Event: EventHeartbeat, ThreadID: threadID, Timestamp: now.Unix(), Data: json.RawMessage(`{}`)}
}

// CloseEnvelope returns the marker sent when a stream ends on its own.
func CloseEnvelope(threadID int64, now time.Time) Envelope {
	return Envelope{Event: EventClose, ThreadID: threadID, Timestamp: now.Unix(), Data: json.RawMessage(`{}`)}
}

// Envelopes converts events to wire form, preserving order.
func Envelopes(events []*Event) []Envelope {
	out := make([]Envelope, 0, len(events))
	for _, e := range events {
		out = append(out, e.Envelope())
	}
	return out
}

// Decode returns the typed payload carried by the envelope.
func (env Envelope) Decode() (Payload, error) {
	return DecodePayload(env.Event, env.Data)
}
