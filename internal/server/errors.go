package server

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/threadlive/internal/model"
)

// httpStatus maps a domain error to an HTTP status code.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidArgument), errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrPermissionDenied), errors.Is(err, model.ErrSelfVote):
		return http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// grpcStatus maps a domain error to a gRPC status error.
func grpcStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var code codes.Code
	switch {
	case errors.Is(err, model.ErrInvalidArgument), errors.Is(err, model.ErrValidation):
		code = codes.InvalidArgument
	case errors.Is(err, model.ErrPermissionDenied), errors.Is(err, model.ErrSelfVote):
		code = codes.PermissionDenied
	case errors.Is(err, model.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, model.ErrConflict):
		code = codes.Aborted
	case errors.Is(err, model.ErrRateLimited):
		code = codes.ResourceExhausted
	case errors.Is(err, model.ErrUnavailable):
		code = codes.Unavailable
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		return status.Errorf(codes.Internal, "internal error: %v", err)
	}
	return status.Error(code, err.Error())
}
