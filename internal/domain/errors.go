package domain

import (
	"errors"
	"fmt"
)

// NetworkError is a transport-level failure talking to the provider.
// It is the only retryable error kind.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError means the provider answered but rejected the request.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
}

// MalformedResponseError signals that the provider payload no longer matches
// the expected contract.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return "malformed provider response: " + e.Reason
}

// IsRetryable reports whether err may succeed when the request is repeated.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// ErrUnknownCategory is returned for category ids missing from the catalog.
var ErrUnknownCategory = errors.New("unknown category")
