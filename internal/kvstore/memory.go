package kvstore

import (
	"context"
	"sync"
)

// MemoryKV is an in-memory KV implementation with the same quota
// semantics as the file-backed store. Used in tests and for ephemeral
// runs where nothing should touch disk.
type MemoryKV struct {
	mu    sync.RWMutex
	data  map[string][]byte
	quota int64 // 0 = unlimited
}

// NewMemoryKV creates an in-memory store with the given byte quota
// (0 disables the quota).
func NewMemoryKV(quota int64) *MemoryKV {
	return &MemoryKV{
		data:  make(map[string][]byte),
		quota: quota,
	}
}

// Get returns a copy of the stored value, or ErrNotFound.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set stores a copy of the value, enforcing the quota against the
// projected total usage including the new value.
func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quota > 0 {
		projected := m.usageLocked() - entrySize(key, m.data[key]) + entrySize(key, value)
		if projected > m.quota {
			return ErrQuotaExceeded
		}
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	return nil
}

// Remove deletes the key.
func (m *MemoryKV) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// BytesInUse reports total stored bytes.
func (m *MemoryKV) BytesInUse(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usageLocked(), nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryKV) Close() error { return nil }

func (m *MemoryKV) usageLocked() int64 {
	var total int64
	for k, v := range m.data {
		total += entrySize(k, v)
	}
	return total
}

func entrySize(key string, value []byte) int64 {
	if value == nil {
		return 0
	}
	return int64(len(key) + len(value))
}
