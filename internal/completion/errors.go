package completion

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sony/gobreaker"
)

// Kind classifies a failed completion.
type Kind int

const (
	// KindTimeout means the backend did not answer within the request timeout.
	KindTimeout Kind = iota + 1
	// KindNetwork covers transport failures, non-2xx statuses and an open breaker.
	KindNetwork
	// KindMalformed means the body was not JSON.
	KindMalformed
	// KindEmpty means the body parsed but carried no reply text.
	KindEmpty
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network_error"
	case KindMalformed:
		return "malformed_response"
	case KindEmpty:
		return "empty_content"
	default:
		return "unknown"
	}
}

// Error is returned by every failed completion.
type Error struct {
	Kind    Kind
	Backend string
	// Message is the error text reported by the backend itself, if any.
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s completion failed: %s", e.Backend, e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind of err. Errors that are not *Error report KindNetwork.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindNetwork
}

// transportError classifies a failure to exchange a request with the backend.
func transportError(backend string, err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	kind := KindNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Backend: backend, Err: err}
}

// countsAsFailure reports whether err should trip the circuit breaker.
func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	switch KindOf(err) {
	case KindTimeout, KindNetwork:
		return true
	default:
		return false
	}
}
