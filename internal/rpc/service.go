package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/alfredjeanlab/threadlive/internal/model"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "threadlive.v1.Events"

// Full method names.
const (
	FetchMethod  = "/" + ServiceName + "/Fetch"
	WaitMethod   = "/" + ServiceName + "/Wait"
	StreamMethod = "/" + ServiceName + "/Stream"
)

// EventsServer is the server API for the Events service.
type EventsServer interface {
	Fetch(context.Context, *FetchRequest) (*EventsResponse, error)
	Wait(context.Context, *WaitRequest) (*EventsResponse, error)
	Stream(*StreamRequest, grpc.ServerStreamingServer[model.Envelope]) error
}

// RegisterEventsServer registers srv on s.
func RegisterEventsServer(s grpc.ServiceRegistrar, srv EventsServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fetchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(FetchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventsServer).Fetch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FetchMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EventsServer).Fetch(ctx, req.(*FetchRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func waitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(WaitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventsServer).Wait(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WaitMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EventsServer).Wait(ctx, req.(*WaitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func streamHandler(srv any, stream grpc.ServerStream) error {
	in := new(StreamRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(EventsServer).Stream(in, &grpc.GenericServerStream[StreamRequest, model.Envelope]{ServerStream: stream})
}

// ServiceDesc describes the Events service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EventsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Fetch", Handler: fetchHandler},
		{MethodName: "Wait", Handler: waitHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Stream", Handler: streamHandler, ServerStreams: true},
	},
	Metadata: "threadlive/v1/events",
}

// EventsClient calls the Events service with the JSON codec.
type EventsClient struct {
	cc grpc.ClientConnInterface
}

// NewEventsClient returns a client bound to cc.
func NewEventsClient(cc grpc.ClientConnInterface) *EventsClient {
	return &EventsClient{cc: cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *EventsClient) Fetch(ctx context.Context, in *FetchRequest, opts ...grpc.CallOption) (*EventsResponse, error) {
	out := new(EventsResponse)
	if err := c.cc.Invoke(ctx, FetchMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *EventsClient) Wait(ctx context.Context, in *WaitRequest, opts ...grpc.CallOption) (*EventsResponse, error) {
	out := new(EventsResponse)
	if err := c.cc.Invoke(ctx, WaitMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *EventsClient) Stream(ctx context.Context, in *StreamRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[model.Envelope], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], StreamMethod, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[StreamRequest, model.Envelope]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
