package server

import (
	"github.com/jibbrjabbr/jj/pkg/protocol"
)

// ClientStorage returns the current connection's storage.
func (c *Context) ClientStorage() (*ClientStorage, error) {
	conn, err := c.requireConnection("clientStorage")
	if err != nil {
		return nil, err
	}
	return conn.Storage(), nil
}

// Store writes value under key for the current connection and mirrors it
// to the browser's own storage. The last write wins.
func (c *Context) Store(key string, value any) (protocol.Value, error) {
	conn, err := c.requireConnection("store")
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, usageError("store", ErrInvalidKey)
	}
	val, err := conn.Storage().Set(key, value)
	if err != nil {
		return nil, err
	}
	if err := c.send("store", &protocol.Store{Key: key, Value: val}); err != nil {
		return nil, err
	}
	return val, nil
}

// Retrieve reads key for the current connection. A key the server already
// holds is answered without a round trip; otherwise the browser's storage
// is asked. found is false when the key was never stored.
func (c *Context) Retrieve(key string) (value protocol.Value, found bool, err error) {
	conn, err := c.requireConnection("retrieve")
	if err != nil {
		return nil, false, err
	}
	if key == "" {
		return nil, false, usageError("retrieve", ErrInvalidKey)
	}
	if v, ok := conn.Storage().Value(key); ok {
		return v, true, nil
	}

	v, err := c.suspend("retrieve", &protocol.Retrieve{Key: key})
	if err != nil {
		return nil, false, err
	}
	if v.IsAbsent() {
		return nil, false, nil
	}
	conn.Storage().SetValue(key, v)
	return v, true, nil
}
