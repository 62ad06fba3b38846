package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/alfredjeanlab/threadlive/internal/model"
)

// ErrStreamEnded reports a stream that ended without the close marker.
var ErrStreamEnded = errors.New("stream ended without close marker")

// TransportError wraps a failure to reach the server or to read its reply.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status code back to the shared error taxonomy so callers
// can use errors.Is(err, model.ErrNotFound) and friends.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return model.ErrInvalidArgument
	case http.StatusForbidden:
		return model.ErrPermissionDenied
	case http.StatusNotFound:
		return model.ErrNotFound
	case http.StatusConflict:
		return model.ErrConflict
	case http.StatusTooManyRequests:
		return model.ErrRateLimited
	case http.StatusServiceUnavailable:
		return model.ErrUnavailable
	}
	return nil
}
