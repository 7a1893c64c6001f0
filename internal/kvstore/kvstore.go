// Package kvstore provides the key-value persistence primitive the
// cache is built on: get/set/remove plus a byte-usage query, with a
// total quota that set operations can trip.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has never been set or
// was removed.
var ErrNotFound = errors.New("key not found")

// ErrQuotaExceeded is returned by Set when writing the value would
// push total usage past the configured quota. Callers are expected to
// degrade rather than fail hard.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// DefaultQuotaBytes mirrors the historical browser-storage limit
// applied when no unlimited-storage capability is granted.
const DefaultQuotaBytes = 10 << 20 // 10 MiB

// KV is the persistence collaborator interface.
type KV interface {
	// Get returns the stored value, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores the value, returning ErrQuotaExceeded if the write
	// would exceed the store's byte quota.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes the key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// BytesInUse reports total stored bytes (keys + values).
	BytesInUse(ctx context.Context) (int64, error)

	// Close releases resources.
	Close() error
}
