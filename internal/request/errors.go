package request

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a malformed draft rejected before any external call.
	ErrValidation = errors.New("validation failed")

	// ErrService marks a failed or timed-out reasoning or image call. It is
	// recoverable by a manual retry.
	ErrService = errors.New("reasoning service error")

	// ErrMergeService marks a failed build merge. The build did not happen.
	ErrMergeService = errors.New("merge service error")

	// ErrNotFound is returned for unknown request or build ids.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when an operation does not apply to
	// the request's current lifecycle state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrBuildInProgress is returned when a build holds the requests an
	// operation needs.
	ErrBuildInProgress = errors.New("build in progress")

	// ErrNothingToBuild is returned when a build is triggered with no ready
	// requests.
	ErrNothingToBuild = errors.New("no ready requests to build")
)

// ValidationError describes why a draft was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
