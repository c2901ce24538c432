package fetcher

import (
	"fmt"
)

// Kind classifies a TransportError.
type Kind string

const (
	Timeout           Kind = "Timeout"
	ConnectionRefused Kind = "ConnectionRefused"
	Unreachable       Kind = "Unreachable"
	NonSuccessStatus  Kind = "NonSuccessStatus"
	MalformedBody     Kind = "MalformedBody"
	Rejected          Kind = "Rejected"
)

// TransportError is any failure to obtain a usable payload from upstream.
// All kinds are retryable by the poller.
type TransportError struct {
	Kind Kind
	// StatusCode is set for NonSuccessStatus.
	StatusCode int
	// Code and Message are the envelope values for Rejected.
	Code    string
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	switch e.Kind {
	case NonSuccessStatus:
		return fmt.Sprintf("transport: unexpected HTTP status %d", e.StatusCode)
	case Rejected:
		return fmt.Sprintf("transport: upstream rejected request: code=%s message=%q", e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("transport: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("transport: %s", e.Kind)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is matches another *TransportError of the same kind, and status code
// when the target sets one.
func (e *TransportError) Is(target error) bool {
	t, ok := target.(*TransportError)
	if !ok || t.Kind != e.Kind {
		return false
	}
	return t.StatusCode == 0 || t.StatusCode == e.StatusCode
}

// Sentinels for errors.Is.
var (
	ErrTimeout           = &TransportError{Kind: Timeout}
	ErrConnectionRefused = &TransportError{Kind: ConnectionRefused}
	ErrUnreachable       = &TransportError{Kind: Unreachable}
	ErrNonSuccessStatus  = &TransportError{Kind: NonSuccessStatus}
	ErrMalformedBody     = &TransportError{Kind: MalformedBody}
	ErrRejected          = &TransportError{Kind: Rejected}
)
