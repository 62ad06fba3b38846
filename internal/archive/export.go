package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/threadlive/internal/model"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Cutoff     time.Time `json:"cutoff"`
	EventCount int       `json:"event_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// archivedEvent is the stored shape of one event. Unlike the wire envelope
// it keeps the subject and actor.
type archivedEvent struct {
	ID        int64           `json:"id"`
	Type      model.EventType `json:"event_type"`
	ThreadID  int64           `json:"thread_id"`
	SubjectID int64           `json:"subject_id"`
	ActorID   int64           `json:"actor_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// ExportJSONL writes a header followed by one record per event to w.
// Events are written in the order given.
func ExportJSONL(w io.Writer, cutoff time.Time, evts []*model.Event) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    "1",
		Type:       "header",
		Timestamp:  time.Now().UTC(),
		Cutoff:     cutoff.UTC(),
		EventCount: len(evts),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, e := range evts {
		data, err := json.Marshal(archivedEvent{
			ID:        e.ID,
			Type:      e.Type,
			ThreadID:  e.ThreadID,
			SubjectID: e.SubjectID,
			ActorID:   e.ActorID,
			Payload:   e.Payload,
			CreatedAt: e.CreatedAt.UTC(),
		})
		if err != nil {
			return fmt.Errorf("encode event %d: %w", e.ID, err)
		}
		if err := enc.Encode(record{Type: "event", Data: data}); err != nil {
			return fmt.Errorf("encode event %d: %w", e.ID, err)
		}
	}
	return nil
}
