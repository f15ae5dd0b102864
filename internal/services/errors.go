package services

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials asks the caller to collect scan credentials and
	// retry. Nothing was created or sent when it is returned.
	ErrMissingCredentials = errors.New("scan credentials required")
	// ErrNetworkFailure wraps a failed call to the analysis backend.
	ErrNetworkFailure  = errors.New("analysis backend unreachable")
	ErrScanInProgress  = errors.New("a scan is already running for this project")
	ErrScanNotFound    = errors.New("scan not found")
	ErrIssueNotFound   = errors.New("issue not found")
	ErrProjectNotFound = errors.New("project not found")
	ErrGuardViolation  = errors.New("transition not allowed")
)

// GuardError is an invalid workflow transition. It is reported before any
// state changes.
type GuardError struct {
	Message string
}

func (e *GuardError) Error() string { return e.Message }

func (e *GuardError) Is(target error) bool { return target == ErrGuardViolation }

func guardf(format string, args ...any) error {
	return &GuardError{Message: fmt.Sprintf(format, args...)}
}

func networkFailure(err error) error {
	return fmt.Errorf("%w: %w", ErrNetworkFailure, err)
}
