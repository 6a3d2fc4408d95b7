package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ID correlates a request with its reply.
type ID string

// FormatID renders a sequence number as an ID.
func FormatID(n uint64) ID {
	return ID(strconv.FormatUint(n, 10))
}

// Valid reports whether the ID is a decimal, non-zero sequence number.
func (id ID) Valid() bool {
	n, err := strconv.ParseUint(string(id), 10, 64)
	return err == nil && n != 0
}

// Value is an arbitrary JSON value carried by a message.
//
// The zero Value is absent, which is distinct from an explicit JSON null:
// a client answering with {"result":{"id":"7"}} returns an absent value,
// while {"result":{"id":"7","value":null}} returns null.
type Value json.RawMessage

// NewValue marshals v into a Value.
func NewValue(v any) (Value, error) {
	if raw, ok := v.(Value); ok {
		return raw.Clone(), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Value(data), nil
}

// StringValue returns the JSON encoding of s.
func StringValue(s string) Value {
	data, _ := json.Marshal(s)
	return Value(data)
}

// IsAbsent reports whether no value was carried at all.
func (v Value) IsAbsent() bool {
	return len(v) == 0
}

// IsNull reports whether the value is an explicit JSON null.
func (v Value) IsNull() bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// String returns a JSON string value unquoted, and any other value as its
// JSON text. An absent value yields "".
func (v Value) String() string {
	if len(v) == 0 {
		return ""
	}
	trimmed := bytes.TrimSpace(v)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}

// Decode unmarshals the value into dst.
func (v Value) Decode(dst any) error {
	if len(v) == 0 {
		return ErrAbsentValue
	}
	return json.Unmarshal(v, dst)
}

// Clone returns a copy that shares no memory with v.
func (v Value) Clone() Value {
	if v == nil {
		return nil
	}
	out := make(Value, len(v))
	copy(out, v)
	return out
}

// Equal reports whether two values encode the same JSON, ignoring
// insignificant whitespace.
func (v Value) Equal(other Value) bool {
	if len(v) == 0 || len(other) == 0 {
		return len(v) == len(other)
	}
	var a, b bytes.Buffer
	if json.Compact(&a, v) != nil || json.Compact(&b, other) != nil {
		return bytes.Equal(v, other)
	}
	return bytes.Equal(a.Bytes(), b.Bytes())
}

// MarshalJSON encodes an absent value as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if len(v) == 0 {
		return []byte("null"), nil
	}
	return v, nil
}

// UnmarshalJSON stores a copy of data.
func (v *Value) UnmarshalJSON(data []byte) error {
	*v = append((*v)[0:0], data...)
	return nil
}
