package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// LoggingInterceptor logs the method name, duration, and error (if any) for every
// unary RPC call.
func LoggingInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	logRPC(info.FullMethod, time.Since(start), err)
	return resp, err
}

// StreamLoggingInterceptor is LoggingInterceptor for streaming RPCs.
func StreamLoggingInterceptor(
	srv any,
	ss grpc.ServerStream,
	info *grpc.StreamServerInfo,
	handler grpc.StreamHandler,
) error {
	start := time.Now()
	err := handler(srv, ss)
	logRPC(info.FullMethod, time.Since(start), err)
	return err
}

func logRPC(method string, duration time.Duration, err error) {
	if err != nil && status.Code(err) != codes.Canceled {
		slog.Error("rpc completed",
			"method", method,
			"duration", duration,
			"error", err,
		)
		return
	}
	slog.Info("rpc completed",
		"method", method,
		"duration", duration,
	)
}

// RecoveryInterceptor catches panics in downstream handlers, logs the stack
// trace, and returns a codes.Internal error instead of crashing the server.
func RecoveryInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (resp any, err error) {
	defer recoverRPC(info.FullMethod, &err)
	return handler(ctx, req)
}

// StreamRecoveryInterceptor is RecoveryInterceptor for streaming RPCs.
func StreamRecoveryInterceptor(
	srv any,
	ss grpc.ServerStream,
	info *grpc.StreamServerInfo,
	handler grpc.StreamHandler,
) (err error) {
	defer recoverRPC(info.FullMethod, &err)
	return handler(srv, ss)
}

func recoverRPC(method string, err *error) {
	if r := recover(); r != nil {
		slog.Error("panic recovered in gRPC handler",
			"method", method,
			"panic", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)
		*err = status.Errorf(codes.Internal, "internal server error")
	}
}

// authExempt reports whether a method skips bearer auth.
func authExempt(method string) bool {
	return strings.HasPrefix(method, "/"+healthpb.Health_ServiceDesc.ServiceName+"/")
}

// checkBearer validates the "authorization" metadata against token.
func checkBearer(ctx context.Context, token string) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}

	vals := md.Get("authorization")
	if len(vals) == 0 {
		return status.Error(codes.Unauthenticated, "missing authorization header")
	}

	provided := vals[0]
	if !strings.HasPrefix(provided, "Bearer ") {
		return status.Error(codes.Unauthenticated, "invalid authorization scheme")
	}
	provided = strings.TrimPrefix(provided, "Bearer ")

	if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
		return status.Error(codes.Unauthenticated, "invalid token")
	}
	return nil
}

// AuthInterceptor returns a gRPC unary interceptor that checks the
// "authorization" metadata header for a valid Bearer token. When token is
// empty, auth is disabled and all requests pass through. The standard health
// service is always exempt.
func AuthInterceptor(token string) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if token == "" || authExempt(info.FullMethod) {
			return handler(ctx, req)
		}
		if err := checkBearer(ctx, token); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor is AuthInterceptor for streaming RPCs.
func StreamAuthInterceptor(token string) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if token == "" || authExempt(info.FullMethod) {
			return handler(srv, ss)
		}
		if err := checkBearer(ss.Context(), token); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

// AuthMiddleware wraps an http.Handler and checks the Authorization header for
// a valid Bearer token. When token is empty, auth is disabled and all requests
// pass through. GET /v1/health and GET /metrics are always exempt.
func AuthMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && (r.URL.Path == "/v1/health" || r.URL.Path == "/metrics") {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "invalid authorization scheme")
			return
		}

		provided := strings.TrimPrefix(auth, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
