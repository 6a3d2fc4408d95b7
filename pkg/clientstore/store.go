package clientstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jibbrjabbr/jj/pkg/protocol"
)

// Store defines the interface for snapshot persistence backends.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save persists a snapshot. If key already exists it is overwritten.
	Save(ctx context.Context, key string, data []byte, expiresAt time.Time) error

	// Load retrieves a snapshot by key.
	// Returns (nil, nil) if the key doesn't exist or has expired.
	Load(ctx context.Context, key string) ([]byte, error)

	// Delete removes a snapshot. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// ErrStoreClosed is returned when operations are attempted on a closed store.
type ErrStoreClosed struct{}

func (e ErrStoreClosed) Error() string {
	return "client store is closed"
}

// Key returns the storage key of a browser on a host.
func Key(host, client string) string {
	return host + "/" + client
}

// EncodeSnapshot serializes storage entries.
func EncodeSnapshot(values map[string]protocol.Value) ([]byte, error) {
	if values == nil {
		values = map[string]protocol.Value{}
	}
	return json.Marshal(values)
}

// DecodeSnapshot parses data written by EncodeSnapshot.
func DecodeSnapshot(data []byte) (map[string]protocol.Value, error) {
	values := make(map[string]protocol.Value)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("clientstore: decode snapshot: %w", err)
	}
	return values, nil
}
