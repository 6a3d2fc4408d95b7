package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound is one decoded frame: either a control token or a sequence of
// messages in arrival order.
type Inbound struct {
	Control  Control
	Messages []Message
}

// Encode writes msg as a single-key envelope.
func Encode(msg Message) ([]byte, error) {
	if err := validate(msg); err != nil {
		return nil, err
	}
	return json.Marshal(envelope(msg))
}

// EncodeBatch writes msgs as a JSON array of envelopes. A single message is
// still framed as a one-element array.
func EncodeBatch(msgs []Message) ([]byte, error) {
	out := make([]map[string]Message, 0, len(msgs))
	for _, msg := range msgs {
		if err := validate(msg); err != nil {
			return nil, err
		}
		out = append(out, envelope(msg))
	}
	return json.Marshal(out)
}

func envelope(msg Message) map[string]Message {
	return map[string]Message{msg.Kind().String(): msg}
}

// Decode parses one frame. Control tokens are matched before any JSON
// parsing. For arrays, well-formed messages are returned alongside the
// joined errors of their malformed siblings.
func Decode(data []byte) (*Inbound, error) {
	if len(data) == 0 {
		return nil, ErrEmptyMessage
	}
	if c, ok := ParseControl(string(data)); ok {
		return &Inbound{Control: c}, nil
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmptyMessage
	}

	switch trimmed[0] {
	case '{':
		msg, err := decodeOne(trimmed)
		if err != nil {
			return nil, err
		}
		return &Inbound{Messages: []Message{msg}}, nil

	case '[':
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, decodeError(data, fmt.Errorf("%w: %v", ErrMalformed, err))
		}
		if len(raws) > MaxBatchSize {
			return nil, decodeError(data, ErrBatchTooLarge)
		}
		in := &Inbound{Messages: make([]Message, 0, len(raws))}
		var errs []error
		for _, raw := range raws {
			msg, err := decodeOne(raw)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			in.Messages = append(in.Messages, msg)
		}
		return in, errors.Join(errs...)

	default:
		return nil, decodeError(data, ErrMalformed)
	}
}

// DecodeMessage parses a single envelope.
func DecodeMessage(data []byte) (Message, error) {
	return decodeOne(bytes.TrimSpace(data))
}

func decodeOne(raw []byte) (Message, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, decodeError(raw, fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	if len(env) != 1 {
		return nil, decodeError(raw, fmt.Errorf("%w: want exactly one key, got %d", ErrMalformed, len(env)))
	}

	for key, body := range env {
		kind := ParseKind(key)
		if kind == KindInvalid {
			return nil, decodeError(raw, fmt.Errorf("%w %q", ErrUnknownKind, key))
		}
		msg := newMessage(kind)
		if err := json.Unmarshal(body, msg); err != nil {
			return nil, decodeError(raw, fmt.Errorf("%w: %s: %v", ErrMalformed, kind, err))
		}
		if err := validate(msg); err != nil {
			return nil, decodeError(raw, err)
		}
		return msg, nil
	}
	panic("unreachable")
}

// validate enforces the required fields of each kind.
func validate(msg Message) error {
	switch m := msg.(type) {
	case Request:
		if !m.RequestID().Valid() {
			return fmt.Errorf("%w: %s", ErrMissingID, m.Kind())
		}
	case Reply:
		if !m.ReplyID().Valid() {
			return fmt.Errorf("%w: %s", ErrMissingID, m.Kind())
		}
	case *Event:
		if m.Type == "" {
			return fmt.Errorf("%w: event type", ErrMissingField)
		}
	case *Bind:
		if m.Type == "" || m.Selector == "" {
			return fmt.Errorf("%w: bind selector and type", ErrMissingField)
		}
	case *Unbind:
		if m.Type == "" || m.Selector == "" {
			return fmt.Errorf("%w: unbind selector and type", ErrMissingField)
		}
	case *Store:
		if m.Key == "" {
			return fmt.Errorf("%w: store key", ErrMissingField)
		}
	case *Call:
		if m.Name == "" {
			return fmt.Errorf("%w: call name", ErrMissingField)
		}
	case nil:
		return fmt.Errorf("%w: nil message", ErrMalformed)
	}
	return nil
}
