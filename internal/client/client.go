// Package client provides the wire clients for the threadlive service: an
// HTTP/JSON implementation (long polling plus Server-Sent Events) and a gRPC
// implementation of the same event-reading contract.
package client

import (
	"context"
	"time"

	"github.com/alfredjeanlab/threadlive/internal/model"
	"github.com/alfredjeanlab/threadlive/internal/rpc"
)

// Batch is one fetch or wait result.
type Batch = rpc.EventsResponse

// StreamCallbacks receive the progress of a stream.
type StreamCallbacks struct {
	// OnOpen is called once the server has accepted the stream.
	OnOpen func()

	// OnEnvelope is called for every event and heartbeat, in order. The
	// close marker is consumed by Stream and not passed on. An error stops
	// the stream and is returned by Stream.
	OnEnvelope func(model.Envelope) error
}

func (cb StreamCallbacks) open() {
	if cb.OnOpen != nil {
		cb.OnOpen()
	}
}

func (cb StreamCallbacks) envelope(env model.Envelope) error {
	if cb.OnEnvelope != nil {
		return cb.OnEnvelope(env)
	}
	return nil
}

// EventSource reads a thread's events. Both clients implement it.
type EventSource interface {
	// Fetch returns the events after cursor in one round trip.
	Fetch(ctx context.Context, threadID int64, cursor model.Cursor, limit int) (*Batch, error)

	// Wait blocks until events after cursor exist or the server-side
	// timeout elapses; an empty batch is a normal result.
	Wait(ctx context.Context, threadID int64, cursor model.Cursor, timeout time.Duration) (*Batch, error)

	// Stream delivers events until the server closes the stream. It
	// returns nil when the close marker arrives and an error otherwise.
	Stream(ctx context.Context, threadID int64, cursor model.Cursor, cb StreamCallbacks) error

	Close() error
}

// Identity is the user the client acts as. The gateway in front of the
// server normally sets these headers; the CLI sets them directly.
type Identity struct {
	UserID       int64
	Capabilities string
	ViewerID     string
}
