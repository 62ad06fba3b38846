package client

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/alfredjeanlab/threadlive/internal/model"
)

// maxSSELine bounds one data line.
const maxSSELine = 1 << 20

// readSSE parses a text/event-stream body and dispatches envelopes until
// the close marker (nil), a callback error, or the end of the body.
func readSSE(body io.Reader, cb StreamCallbacks) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var env model.Envelope
			if err := json.Unmarshal([]byte(data.String()), &env); err != nil {
				return &TransportError{Op: "decode stream event", Err: err}
			}
			data.Reset()
			if env.Event == model.EventClose {
				return nil
			}
			if err := cb.envelope(env); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
			// Comment.
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
		// "event:" lines repeat the envelope type and need no handling.
	}
	if err := scanner.Err(); err != nil {
		return &TransportError{Op: "read stream", Err: err}
	}
	return &TransportError{Op: "read stream", Err: ErrStreamEnded}
}
