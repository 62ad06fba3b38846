package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/threadlive/internal/idgen"
)

// OriginHeader names the server instance that published a notice.
const OriginHeader = "Threadlive-Origin"

// NATSBus exchanges notices with other server instances over one NATS
// connection. It is both a Publisher and a Subscriber. Its subscriptions
// skip notices it published itself, since the local Hub already has them.
type NATSBus struct {
	conn      *nats.Conn
	origin    string
	malformed atomic.Int64
}

var (
	_ Publisher  = (*NATSBus)(nil)
	_ Subscriber = (*NATSBus)(nil)
)

// NewNATSBus connects to url, reconnecting forever. Extra options such as
// disconnect or reconnect handlers are applied after the defaults.
func NewNATSBus(url string, opts ...nats.Option) (*NATSBus, error) {
	origin := idgen.InstanceID()
	defaults := []nats.Option{
		nats.Name("threadlive-" + origin),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSBus{conn: nc, origin: origin}, nil
}

// Origin returns the instance tag put on published notices.
func (b *NATSBus) Origin() string { return b.origin }

// Malformed counts received messages that were not valid notices.
func (b *NATSBus) Malformed() int64 { return b.malformed.Load() }

// Publish sends a Notice on its own subject. Other payloads, or a topic
// that is not the notice's subject, are rejected.
func (b *NATSBus) Publish(ctx context.Context, topic string, event any) error {
	n, ok := event.(Notice)
	if !ok {
		return fmt.Errorf("publishing to %s: %T is not a notice", topic, event)
	}
	if topic != n.Subject() {
		return fmt.Errorf("notice for %s published on %s", n.Subject(), topic)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling notice: %w", err)
	}
	msg := nats.NewMsg(topic)
	msg.Header.Set(OriginHeader, b.origin)
	msg.Data = data
	return b.conn.PublishMsg(msg)
}

// decodeNotice parses a message and checks that the notice belongs on the
// subject it arrived on.
func decodeNotice(msg *nats.Msg) (Notice, error) {
	var n Notice
	if err := json.Unmarshal(msg.Data, &n); err != nil {
		return Notice{}, err
	}
	if n.Subject() != msg.Subject {
		return Notice{}, fmt.Errorf("notice for %s arrived on %s", n.Subject(), msg.Subject)
	}
	return n, nil
}

// Subscribe delivers notices from other instances that match topic, which
// may use NATS wildcards. A full channel drops notices; readers re-check the
// log on their own interval. cancel unsubscribes and closes the channel.
func (b *NATSBus) Subscribe(topic string) (<-chan Notice, func(), error) {
	ch := make(chan Notice, 64)
	var (
		mu     sync.Mutex
		closed bool
	)
	sub, err := b.conn.Subscribe(topic, func(msg *nats.Msg) {
		if msg.Header.Get(OriginHeader) == b.origin {
			return
		}
		n, err := decodeNotice(msg)
		if err != nil {
			b.malformed.Add(1)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- n:
		default:
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	// Notices published on other connections are only routed once the
	// server has registered the subscription.
	if err := b.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}

	cancel := func() {
		_ = sub.Unsubscribe()
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			close(ch)
		}
	}
	return ch, cancel, nil
}

// Close drops the connection.
func (b *NATSBus) Close() error {
	b.conn.Close()
	return nil
}
