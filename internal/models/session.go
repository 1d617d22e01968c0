package models

import "time"

// RunState is the run controller's state.
type RunState string

const (
	RunStateIdle                 RunState = "idle"
	RunStateCheckingAvailability RunState = "checking_availability"
	RunStateProcessing           RunState = "processing"
	RunStateBlocked              RunState = "blocked"
)

// Backend selects which remote extraction endpoint a run uses.
type Backend string

const (
	BackendOCR    Backend = "ocr"
	BackendGemini Backend = "gemini"
)

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, bool) {
	switch Backend(s) {
	case BackendOCR, BackendGemini:
		return Backend(s), true
	}
	return "", false
}

// OutcomeStatus describes how a run ended.
type OutcomeStatus string

const (
	OutcomeCompleted               OutcomeStatus = "completed"
	OutcomeAvailabilityDenied      OutcomeStatus = "availability_denied"
	OutcomeAvailabilityUnreachable OutcomeStatus = "availability_unreachable"
	OutcomeRetryExhausted          OutcomeStatus = "retry_exhausted"
	OutcomeRejected                OutcomeStatus = "rejected"
	OutcomeCanceled                OutcomeStatus = "canceled"
)

// RunOutcome is the typed result of a finished run.
type RunOutcome struct {
	Status     OutcomeStatus `json:"status"`
	Backend    Backend       `json:"backend"`
	Processed  int           `json:"processed"`
	Remaining  int           `json:"remaining"`
	FailedFile *FileRef      `json:"failedFile,omitempty"`
	Attempts   int           `json:"attempts,omitempty"`
	Message    string        `json:"message,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// RunStatus is a point-in-time view of the run controller.
type RunStatus struct {
	State       RunState    `json:"state"`
	Backend     Backend     `json:"backend,omitempty"`
	Current     *FileRef    `json:"current,omitempty"`
	Attempt     int         `json:"attempt,omitempty"`
	Processed   int         `json:"processed"`
	LastOutcome *RunOutcome `json:"lastOutcome,omitempty"`
}
