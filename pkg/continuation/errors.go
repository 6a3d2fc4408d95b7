package continuation

import "errors"

var (
	// ErrConnectionLost is returned to a suspended caller whose target closed
	// before answering.
	ErrConnectionLost = errors.New("continuation: connection lost")

	// ErrTimeout is returned to a suspended caller whose target did not
	// answer within the scheduler's timeout.
	ErrTimeout = errors.New("continuation: timed out waiting for reply")

	// ErrUnmatchedReply is returned by Resume for an unknown, late, or
	// duplicate correlation ID.
	ErrUnmatchedReply = errors.New("continuation: reply matches no pending call")

	// ErrNoTarget is returned when Suspend is called without a target.
	ErrNoTarget = errors.New("continuation: no target")
)
