package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyMessage is returned for a zero-length frame.
	ErrEmptyMessage = errors.New("protocol: empty message")

	// ErrMalformed is returned when a payload is not a JSON object or array
	// of objects with exactly one key each.
	ErrMalformed = errors.New("protocol: malformed message")

	// ErrUnknownKind is returned for an object whose key is not in the
	// vocabulary.
	ErrUnknownKind = errors.New("protocol: unknown message kind")

	// ErrMissingID is returned for a request or reply without a valid ID.
	ErrMissingID = errors.New("protocol: missing correlation id")

	// ErrMissingField is returned when a required field is empty.
	ErrMissingField = errors.New("protocol: missing required field")

	// ErrBatchTooLarge is returned when an array exceeds MaxBatchSize.
	ErrBatchTooLarge = errors.New("protocol: batch too large")

	// ErrAbsentValue is returned when decoding a Value that was not sent.
	ErrAbsentValue = errors.New("protocol: value absent")
)

// DecodeError reports a payload that could not be decoded. Payload holds the
// offending bytes so the caller can log them.
type DecodeError struct {
	Payload []byte
	Err     error
}

// Error returns the error message with a prefix of the payload.
func (e *DecodeError) Error() string {
	p := e.Payload
	suffix := ""
	if len(p) > maxQuotedPayload {
		p = p[:maxQuotedPayload]
		suffix = "..."
	}
	return fmt.Sprintf("%v: %q%s", e.Err, p, suffix)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeError(payload []byte, err error) *DecodeError {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return &DecodeError{Payload: cp, Err: err}
}
