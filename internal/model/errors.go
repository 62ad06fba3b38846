package model

import "errors"

// Error taxonomy shared by every layer. Wrap with fmt.Errorf("...: %w") and
// test with errors.Is.
var (
	ErrValidation       = errors.New("validation failed")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrPermissionDenied = errors.New("permission denied")
	ErrSelfVote         = errors.New("cannot vote on own content")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnavailable      = errors.New("unavailable")
)
