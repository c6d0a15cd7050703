package a2s

import (
	"context"
	"errors"
)

// Error kinds. Every error returned by Query wraps exactly one of them
// (or the context error when the query was cancelled), so callers match with errors.Is.
var (
	// ErrNetwork covers address resolution, socket creation, send and receive failures.
	ErrNetwork = errors.New("network error")

	// ErrTimeout means no response arrived within the per-receive timeout.
	ErrTimeout = errors.New("timeout waiting for response")

	// ErrUnexpectedResponse means the response tag is not valid in the current protocol state.
	ErrUnexpectedResponse = errors.New("unexpected response")

	// ErrIncompleteFragments means a multi-packet response did not complete before the timeout.
	ErrIncompleteFragments = errors.New("incomplete multi-packet response")

	// ErrMalformedResponse means the payload is too short to hold the required fields.
	ErrMalformedResponse = errors.New("malformed response")
)

// Query stages reported in QueryError.Op.
const (
	OpDial       = "dial"
	OpSend       = "send"
	OpReceive    = "receive"
	OpChallenge  = "challenge"
	OpReassemble = "reassemble"
	OpParse      = "parse"
)

// QueryError describes a failed query.
type QueryError struct {
	// Kind is one of the Err* values above, or context.Canceled / context.DeadlineExceeded.
	Kind error

	// Err is the underlying cause, may be nil.
	Err error

	// Addr is the queried host:port.
	Addr string

	// Op is the query stage that failed.
	Op string
}

func newError(op string, kind, cause error) *QueryError {
	return &QueryError{Op: op, Kind: kind, Err: cause}
}

func (e *QueryError) Error() string {
	msg := "a2s " + e.Op
	if e.Addr != "" {
		msg += " " + e.Addr
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *QueryError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

// Retryable reports whether a later retry of the same query may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrIncompleteFragments)
}

// KindName returns a stable short name of the error kind, suitable for storage and JSON.
func KindName(err error) string {
	if err == nil {
		return ""
	}

	kind := err
	var qe *QueryError
	if errors.As(err, &qe) {
		kind = qe.Kind
	}

	switch {
	case errors.Is(kind, ErrTimeout):
		return "timeout"
	case errors.Is(kind, ErrIncompleteFragments):
		return "incomplete_fragments"
	case errors.Is(kind, ErrUnexpectedResponse):
		return "unexpected_response"
	case errors.Is(kind, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(kind, ErrNetwork):
		return "network"
	case errors.Is(kind, context.Canceled), errors.Is(kind, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
