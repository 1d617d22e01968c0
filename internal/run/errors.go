package run

import (
	"errors"
	"fmt"
)

var (
	ErrRunInProgress       = errors.New("a run is already in progress")
	ErrUnknownBackend      = errors.New("unknown extraction backend")
	ErrAvailabilityDenied  = errors.New("gemini backend is not available on the server")
	ErrAvailabilityUnknown = errors.New("gemini availability could not be confirmed")
)

// RetryExhaustedError reports the queue entry a run stopped on.
type RetryExhaustedError struct {
	EntryID  string
	FileName string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("processing %s failed after %d attempts: %v", e.FileName, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// RejectedError reports an entry the service refused outright.
type RejectedError struct {
	EntryID  string
	FileName string
	Err      error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("processing %s was rejected: %v", e.FileName, e.Err)
}

func (e *RejectedError) Unwrap() error { return e.Err }
