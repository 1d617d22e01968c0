package ocrclient

import (
	"fmt"
	"net/http"
)

// TransportError reports that the sidecar could not be reached or its reply
// could not be read.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteServiceError reports a non-2xx reply.
type RemoteServiceError struct {
	Op     string
	Status int
	Detail string
}

func (e *RemoteServiceError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.Status, e.Detail)
}

// Retryable reports whether the same request may succeed later. Client
// errors other than timeouts and throttling mean the input was rejected.
func (e *RemoteServiceError) Retryable() bool {
	switch {
	case e.Status >= 500:
		return true
	case e.Status == http.StatusRequestTimeout, e.Status == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}
