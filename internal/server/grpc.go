package server

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"

	"github.com/alfredjeanlab/threadlive/internal/delivery"
	"github.com/alfredjeanlab/threadlive/internal/model"
	"github.com/alfredjeanlab/threadlive/internal/presence"
	"github.com/alfredjeanlab/threadlive/internal/rpc"
)

// NewGRPCServer creates a gRPC server with standard interceptors, registers
// the Events service, health, and reflection, and returns it ready to serve.
func NewGRPCServer(s *Server, authToken string) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor,
			LoggingInterceptor,
			AuthInterceptor(authToken),
		),
		grpc.ChainStreamInterceptor(
			StreamRecoveryInterceptor,
			StreamLoggingInterceptor,
			StreamAuthInterceptor(authToken),
		),
	)

	rpc.RegisterEventsServer(srv, &eventsService{s: s})

	hs := health.NewServer()
	hs.SetServingStatus(rpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	reflection.Register(srv)

	return srv
}

// eventsService adapts Server to rpc.EventsServer.
type eventsService struct {
	s *Server
}

func (e *eventsService) touch(ctx context.Context, threadID int64, transport string) {
	p := principalFromContext(ctx)
	if viewer := viewerIDFromContext(ctx, p); viewer != "" {
		e.s.Presence.Touch(presence.Visit{ThreadID: threadID, Viewer: viewer, UserID: p.UserID, Transport: transport})
	}
}

func response(b *delivery.Batch) *rpc.EventsResponse {
	return &rpc.EventsResponse{Events: b.Envelopes(), Timestamp: b.Now.Unix()}
}

func (e *eventsService) Fetch(ctx context.Context, req *rpc.FetchRequest) (*rpc.EventsResponse, error) {
	e.touch(ctx, req.ThreadID, transportTimedPoll)
	b, err := e.s.delivery.Fetch(ctx, req.ThreadID, req.Cursor, req.Limit)
	if err != nil {
		return nil, grpcStatus(err)
	}
	return response(b), nil
}

func (e *eventsService) Wait(ctx context.Context, req *rpc.WaitRequest) (*rpc.EventsResponse, error) {
	e.touch(ctx, req.ThreadID, transportBlockingPoll)
	b, err := e.s.delivery.WaitFor(ctx, req.ThreadID, req.Cursor, time.Duration(req.TimeoutSeconds)*time.Second)
	if err != nil {
		return nil, grpcStatus(err)
	}
	return response(b), nil
}

func (e *eventsService) Stream(req *rpc.StreamRequest, stream grpc.ServerStreamingServer[model.Envelope]) error {
	ctx := stream.Context()
	p := principalFromContext(ctx)
	if viewer := viewerIDFromContext(ctx, p); viewer != "" {
		e.s.Presence.Join(presence.Visit{ThreadID: req.ThreadID, Viewer: viewer, UserID: p.UserID, Transport: transportStream})
		defer e.s.Presence.Leave(req.ThreadID, viewer)
	}

	return grpcStatus(e.s.delivery.Stream(ctx, req.ThreadID, req.Cursor, grpcSink{stream}))
}

// grpcSink sends response headers once the stream holds a slot.
type grpcSink struct {
	stream grpc.ServerStreamingServer[model.Envelope]
}

func (g grpcSink) Open() error {
	return g.stream.SendHeader(metadata.MD{})
}

func (g grpcSink) Send(env model.Envelope) error {
	return g.stream.Send(&env)
}
