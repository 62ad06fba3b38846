package client

import (
	"errors"
	"io"
	"sync/atomic"
	"time"
)

// DefaultStreamIdleTimeout is how long a stream may go without any data,
// heartbeats included, before the client abandons it. Servers send a
// heartbeat every 20s by default.
const DefaultStreamIdleTimeout = 45 * time.Second

// ErrStreamIdle reports a stream that went silent past the idle timeout.
var ErrStreamIdle = errors.New("stream idle")

// idleWatch calls expire once kick has not been called for d.
type idleWatch struct {
	d     time.Duration
	timer *time.Timer
	fired atomic.Bool
}

func newIdleWatch(d time.Duration, expire func()) *idleWatch {
	w := &idleWatch{d: d}
	w.timer = time.AfterFunc(d, func() {
		w.fired.Store(true)
		expire()
	})
	return w
}

func (w *idleWatch) kick()         { w.timer.Reset(w.d) }
func (w *idleWatch) stop()         { w.timer.Stop() }
func (w *idleWatch) expired() bool { return w.fired.Load() }

// idleReader kicks w whenever bytes arrive.
type idleReader struct {
	r io.Reader
	w *idleWatch
}

func (r idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.w.kick()
	}
	return n, err
}
