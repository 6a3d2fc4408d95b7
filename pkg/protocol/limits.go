package protocol

const (
	// MaxMessageSize bounds a single inbound WebSocket frame.
	MaxMessageSize = 64 * 1024

	// MaxBatchSize bounds the number of messages in one inbound array.
	MaxBatchSize = 256

	// maxQuotedPayload bounds how much of an offending payload a
	// DecodeError repeats in its message.
	maxQuotedPayload = 128
)
