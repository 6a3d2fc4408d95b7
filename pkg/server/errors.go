package server

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common connection and server error conditions.
var (
	// ErrConnectionClosed is returned when sending on a closed connection.
	ErrConnectionClosed = errors.New("server: connection closed")

	// ErrHostNotFound is returned when a WebSocket names an unknown host.
	ErrHostNotFound = errors.New("server: host not found")

	// ErrEventQueueFull is returned when the event queue is full and an event is dropped.
	ErrEventQueueFull = errors.New("server: event queue full")

	// ErrNoHandler is returned when an event arrives for a key nothing handles.
	ErrNoHandler = errors.New("server: no handler for event")

	// ErrNoEnvironment is wrapped by UsageError when an operation runs
	// outside any host execution.
	ErrNoEnvironment = errors.New("no current script environment")

	// ErrNoConnection is wrapped by UsageError when an operation needs a
	// current connection and there is none.
	ErrNoConnection = errors.New("no current connection")

	// ErrNotAFunction is wrapped by UsageError when broadcast is given
	// something other than a function.
	ErrNotAFunction = errors.New("requires a function argument")

	// ErrInvalidKey is wrapped by UsageError for an empty storage key.
	ErrInvalidKey = errors.New("key must not be empty")
)

// UsageError reports an operation invoked incorrectly by host code.
type UsageError struct {
	Op  string
	Err error
}

// Error returns the error message.
func (e *UsageError) Error() string {
	return fmt.Sprintf("server: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *UsageError) Unwrap() error {
	return e.Err
}

func usageError(op string, err error) *UsageError {
	return &UsageError{Op: op, Err: err}
}

// ProtocolError reports a frame from a client that could not be decoded.
// The connection stays open.
type ProtocolError struct {
	ConnectionID string
	Err          error
}

// Error returns the error message with connection context.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("server: protocol error on connection %s: %v", e.ConnectionID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// HandlerError wraps a panic that occurred in a handler.
type HandlerError struct {
	ConnectionID string
	Op           string
	Panic        any
	Stack        []byte
}

// Error returns the error message.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("server: handler panic on connection %s during %s: %v",
		e.ConnectionID, e.Op, e.Panic)
}

// BroadcastFailure is the failure of a broadcast function on one connection.
type BroadcastFailure struct {
	ConnectionID string
	Err          error
}

// BroadcastError collects the per-connection failures of one broadcast.
type BroadcastError struct {
	Failures []BroadcastFailure
}

// Error returns the error message.
func (e *BroadcastError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "server: broadcast failed on %d connection(s)", len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "; %s: %v", f.ConnectionID, f.Err)
	}
	return b.String()
}

// Unwrap returns the per-connection errors for errors.Is/As.
func (e *BroadcastError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}
