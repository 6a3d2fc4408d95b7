package server

import (
	"sort"
	"sync"

	"github.com/jibbrjabbr/jj/pkg/protocol"
)

// ClientStorage is the server-side key/value store of one connection.
// Values are held as JSON, so a stored value never aliases live data:
// callers always get back a fresh decode of what was stored.
type ClientStorage struct {
	mu     sync.RWMutex
	values map[string]protocol.Value
}

// NewClientStorage creates an empty ClientStorage.
func NewClientStorage() *ClientStorage {
	return &ClientStorage{values: make(map[string]protocol.Value)}
}

// Set stores the JSON encoding of v under key and returns it.
func (s *ClientStorage) Set(key string, v any) (protocol.Value, error) {
	if key == "" {
		return nil, usageError("store", ErrInvalidKey)
	}
	val, err := protocol.NewValue(v)
	if err != nil {
		return nil, err
	}
	s.SetValue(key, val)
	return val, nil
}

// SetValue stores an already encoded value.
func (s *ClientStorage) SetValue(key string, v protocol.Value) {
	s.mu.Lock()
	s.values[key] = v.Clone()
	s.mu.Unlock()
}

// Value returns a copy of the value stored under key.
func (s *ClientStorage) Value(key string) (protocol.Value, bool) {
	s.mu.RLock()
	v, ok := s.values[key]
	s.mu.RUnlock()
	return v.Clone(), ok
}

// Get decodes the value stored under key into dst. It reports false,
// leaving dst untouched, when nothing was stored.
func (s *ClientStorage) Get(key string, dst any) (bool, error) {
	v, ok := s.Value(key)
	if !ok {
		return false, nil
	}
	return true, v.Decode(dst)
}

// Delete removes key.
func (s *ClientStorage) Delete(key string) {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
}

// Keys returns the stored keys in sorted order.
func (s *ClientStorage) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored keys.
func (s *ClientStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Snapshot returns a copy of every entry.
func (s *ClientStorage) Snapshot() map[string]protocol.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]protocol.Value, len(s.values))
	for k, v := range s.values {
		out[k] = v.Clone()
	}
	return out
}

// Restore adds every entry of snapshot, replacing existing keys.
func (s *ClientStorage) Restore(snapshot map[string]protocol.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range snapshot {
		s.values[k] = v.Clone()
	}
}
