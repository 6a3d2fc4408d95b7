package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Form holds the serialized controls of a submitted form, in document
// order. A name sent with several values appears once per value.
//
// On the wire the client sends the form as a string holding a JSON object
// that maps each name to a string, or to an array of strings when the name
// repeats. A bare object and an array of {name, value} pairs are accepted
// too.
type Form []FormField

// Get returns the first value of name.
func (f Form) Get(name string) (string, bool) {
	for _, field := range f {
		if field.Name == name {
			return field.Value, true
		}
	}
	return "", false
}

// Values returns every value of name.
func (f Form) Values(name string) []string {
	var out []string
	for _, field := range f {
		if field.Name == name {
			out = append(out, field.Value)
		}
	}
	return out
}

// Names returns the distinct field names in first-seen order.
func (f Form) Names() []string {
	seen := make(map[string]bool, len(f))
	var names []string
	for _, field := range f {
		if !seen[field.Name] {
			seen[field.Name] = true
			names = append(names, field.Name)
		}
	}
	return names
}

// MarshalJSON encodes the form the way the client sends it.
func (f Form) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, name := range f.Names() {
		if i > 0 {
			b.WriteByte(',')
		}
		key, _ := json.Marshal(name)
		b.Write(key)
		b.WriteByte(':')
		values := f.Values(name)
		var v []byte
		if len(values) == 1 {
			v, _ = json.Marshal(values[0])
		} else {
			v, _ = json.Marshal(values)
		}
		b.Write(v)
	}
	b.WriteByte('}')
	return json.Marshal(b.String())
}

// UnmarshalJSON accepts a string-encoded object, an object or an array of
// fields.
func (f *Form) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = nil
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*f = nil
			return nil
		}
		return f.decodeObject([]byte(s))
	case '{':
		return f.decodeObject(data)
	case '[':
		var fields []FormField
		if err := json.Unmarshal(data, &fields); err != nil {
			return err
		}
		*f = fields
		return nil
	default:
		return fmt.Errorf("protocol: form must be an object, got %s", data)
	}
}

// decodeObject reads a name to value(s) object, keeping the key order.
func (f *Form) decodeObject(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("protocol: form must be an object, got %v", tok)
	}

	var fields Form
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if len(raw) > 0 && raw[0] == '[' {
			var values []json.RawMessage
			if err := json.Unmarshal(raw, &values); err != nil {
				return err
			}
			for _, v := range values {
				fields = append(fields, FormField{Name: name, Value: formScalar(v)})
			}
			continue
		}
		fields = append(fields, FormField{Name: name, Value: formScalar(raw)})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*f = fields
	return nil
}

// formScalar renders one field value. Strings are unquoted, null is empty
// and other JSON values keep their literal text.
func formScalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if bytes.Equal(raw, []byte("null")) {
		return ""
	}
	return string(raw)
}
