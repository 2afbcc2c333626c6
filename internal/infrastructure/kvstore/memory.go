// Package kvstore provides the key-value backends beneath the chunked store.
package kvstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/avatarctic/satcrack-offline/internal/core/ports"
)

// MemoryBackend is an in-process KVBackend with an optional byte quota,
// mirroring the per-origin limit of browser storage.
type MemoryBackend struct {
	mu    sync.RWMutex
	data  map[string][]byte
	used  int
	quota int
}

// NewMemoryBackend creates a backend; quota <= 0 means unlimited.
func NewMemoryBackend(quota int) *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte), quota: quota}
}

func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	size := len(key) + len(value)
	prev := 0
	if old, ok := m.data[key]; ok {
		prev = len(key) + len(old)
	}
	if m.quota > 0 && m.used-prev+size > m.quota {
		return fmt.Errorf("set %q (%d bytes): %w", key, len(value), ports.ErrQuotaExceeded)
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	m.used += size - prev
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.data[key]; ok {
		m.used -= len(key) + len(old)
		delete(m.data, key)
	}
	return nil
}

// Used returns the bytes currently counted against the quota.
func (m *MemoryBackend) Used() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used
}
