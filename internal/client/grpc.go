package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/threadlive/internal/model"
	"github.com/alfredjeanlab/threadlive/internal/rpc"
)

// GRPCClient reads events over the threadlive.v1.Events service.
type GRPCClient struct {
	conn       *grpc.ClientConn
	events     *rpc.EventsClient
	token      string
	identity   Identity
	streamIdle time.Duration
}

var _ EventSource = (*GRPCClient)(nil)

// NewGRPCClient dials addr (e.g. "localhost:9090") without TLS.
func NewGRPCClient(addr, token string, id Identity) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &GRPCClient{
		conn:       conn,
		events:     rpc.NewEventsClient(conn),
		token:      token,
		identity:   id,
		streamIdle: DefaultStreamIdleTimeout,
	}, nil
}

// SetStreamIdleTimeout changes how long Stream waits for data before it
// gives up on a silent connection. Zero or less restores the default.
func (c *GRPCClient) SetStreamIdleTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultStreamIdleTimeout
	}
	c.streamIdle = d
}

// Close closes the underlying connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) outgoing(ctx context.Context) context.Context {
	var kv []string
	if c.token != "" {
		kv = append(kv, "authorization", "Bearer "+c.token)
	}
	if c.identity.UserID > 0 {
		kv = append(kv, "x-user-id", strconv.FormatInt(c.identity.UserID, 10))
	}
	if c.identity.Capabilities != "" {
		kv = append(kv, "x-user-capabilities", c.identity.Capabilities)
	}
	if c.identity.ViewerID != "" {
		kv = append(kv, "x-viewer-id", c.identity.ViewerID)
	}
	if len(kv) == 0 {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, kv...)
}

func (c *GRPCClient) Fetch(ctx context.Context, threadID int64, cursor model.Cursor, limit int) (*Batch, error) {
	resp, err := c.events.Fetch(c.outgoing(ctx), &rpc.FetchRequest{ThreadID: threadID, Cursor: cursor, Limit: limit})
	if err != nil {
		return nil, fromStatus("fetch", err)
	}
	return resp, nil
}

func (c *GRPCClient) Wait(ctx context.Context, threadID int64, cursor model.Cursor, timeout time.Duration) (*Batch, error) {
	req := &rpc.WaitRequest{ThreadID: threadID, Cursor: cursor, TimeoutSeconds: int(timeout / time.Second)}
	resp, err := c.events.Wait(c.outgoing(ctx), req)
	if err != nil {
		return nil, fromStatus("wait", err)
	}
	return resp, nil
}

// Stream reads the thread's event stream. Like the HTTP client it gives up
// on a stream that stays silent past the idle timeout.
func (c *GRPCClient) Stream(ctx context.Context, threadID int64, cursor model.Cursor, cb StreamCallbacks) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	watch := newIdleWatch(c.streamIdle, cancel)
	defer watch.stop()
	fail := func(op string, err error) error {
		if watch.expired() {
			return &TransportError{Op: op, Err: ErrStreamIdle}
		}
		return fromStatus(op, err)
	}

	stream, err := c.events.Stream(c.outgoing(ctx), &rpc.StreamRequest{ThreadID: threadID, Cursor: cursor})
	if err != nil {
		return fail("open stream", err)
	}
	// The server sends headers once the stream holds a slot. A rejected
	// stream is trailers-only: no header, and Recv reports the status.
	md, err := stream.Header()
	if err != nil {
		return fail("open stream", err)
	}
	watch.kick()
	if md != nil {
		cb.open()
	}
	for {
		env, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return &TransportError{Op: "read stream", Err: ErrStreamEnded}
		}
		if err != nil {
			return fail("read stream", err)
		}
		watch.kick()
		if env.Event == model.EventClose {
			return nil
		}
		if err := cb.envelope(*env); err != nil {
			return err
		}
	}
}

// fromStatus converts a gRPC status into the client error taxonomy:
// server decisions become APIError, connection trouble TransportError.
func fromStatus(op string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return &TransportError{Op: op, Err: err}
	}
	var code int
	switch st.Code() {
	case codes.InvalidArgument:
		code = http.StatusBadRequest
	case codes.Unauthenticated:
		code = http.StatusUnauthorized
	case codes.PermissionDenied:
		code = http.StatusForbidden
	case codes.NotFound:
		code = http.StatusNotFound
	case codes.Aborted:
		code = http.StatusConflict
	case codes.ResourceExhausted:
		code = http.StatusTooManyRequests
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return &TransportError{Op: op, Err: context.DeadlineExceeded}
	case codes.Unavailable:
		// Covers both a full slot pool and an unreachable server.
		return &TransportError{Op: op, Err: fmt.Errorf("%w: %s", model.ErrUnavailable, st.Message())}
	case codes.Internal:
		code = http.StatusInternalServerError
	default:
		return &TransportError{Op: op, Err: err}
	}
	return &APIError{StatusCode: code, Message: st.Message()}
}
