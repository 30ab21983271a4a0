package nlp

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
)

// Common backend errors
var (
	// ErrEmptyResponse indicates the backend returned no text
	ErrEmptyResponse = errors.New("the backend returned an empty response")

	// ErrNoBackends indicates a pool was built without endpoints
	ErrNoBackends = errors.New("no inference backends configured")

	// ErrUnknownKind indicates an unsupported backend kind
	ErrUnknownKind = errors.New("unknown backend kind")
)

// EmptyResponseError represents an empty response error
type EmptyResponseError struct {
	Message string
}

func (e *EmptyResponseError) Error() string {
	return e.Message
}

// Is implements errors.Is support for EmptyResponseError.
// This allows errors.Is(err, ErrEmptyResponse) to work as well.
func (e *EmptyResponseError) Is(target error) bool {
	if target == ErrEmptyResponse {
		return true
	}
	_, ok := target.(*EmptyResponseError)
	return ok
}

// NewEmptyResponseError creates a new empty response error (message is required)
func NewEmptyResponseError(message string) *EmptyResponseError {
	return &EmptyResponseError{Message: message}
}

// StatusError is a non-success HTTP response from a backend.
type StatusError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend %s returned status %d: %s", e.Backend, e.StatusCode, e.Body)
}

// HTTPStatusCode returns the response status code.
func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// ErrorKind classifies a failed call for logs and verdict rationales.
// Retries do not depend on it: every failure is retried the same way.
type ErrorKind string

const (
	ErrorKindTimeout     ErrorKind = "timeout"
	ErrorKindTransport   ErrorKind = "transport"
	ErrorKindStatus      ErrorKind = "status"
	ErrorKindEmpty       ErrorKind = "empty_response"
	ErrorKindCircuitOpen ErrorKind = "circuit_open"
	ErrorKindCanceled    ErrorKind = "canceled"
)

// BackendCallError is returned when a call fails after all attempts.
type BackendCallError struct {
	Backend  string
	Attempts int
	Kind     ErrorKind
	Err      error
}

func (e *BackendCallError) Error() string {
	return fmt.Sprintf("backend %s failed after %d attempt(s) (%s): %v", e.Backend, e.Attempts, e.Kind, e.Err)
}

func (e *BackendCallError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support for BackendCallError.
func (e *BackendCallError) Is(target error) bool {
	_, ok := target.(*BackendCallError)
	return ok
}

// classifyError maps err to an ErrorKind. parent is the caller's context,
// used to tell a cancelled run from a per-attempt timeout.
func classifyError(parent context.Context, err error) ErrorKind {
	if err == nil {
		return ""
	}
	if parent != nil && parent.Err() != nil {
		return ErrorKindCanceled
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrorKindCircuitOpen
	}
	if errors.Is(err, ErrEmptyResponse) {
		return ErrorKindEmpty
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrorKindCanceled
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return ErrorKindStatus
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return ErrorKindStatus
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return ErrorKindStatus
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorKindTimeout
	}
	return ErrorKindTransport
}
