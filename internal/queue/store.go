// Package queue implements the durable per-user offline queue. Envelopes for
// recipients without a live session are appended to a per-user list in an
// external key-value store and drained in insertion order on reconnect.
//
// Two backends are provided: an embedded Badger store (default, no extra
// infrastructure) and a Redis store. Both sit behind a Handle that is either
// connected to exactly one Store or disconnected.
package queue

import (
	"context"
	"errors"
)

// ErrUnavailable is returned while no backend is connected.
var ErrUnavailable = errors.New("offline queue unavailable")

// Store is the durable list contract consumed by OfflineQueue. Keys are
// opaque per-user list names and items are opaque encoded envelopes;
// decoding belongs to OfflineQueue so one bad item cannot fail a whole list.
type Store interface {
	// Push appends item to the list at key.
	Push(ctx context.Context, key string, item []byte) error
	// Range returns the whole list at key in insertion order.
	Range(ctx context.Context, key string) ([][]byte, error)
	// DeleteAll clears the list at key.
	DeleteAll(ctx context.Context, key string) error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}
