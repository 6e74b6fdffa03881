package kv

import (
	"context"
	"sync"
)

// MemoryBackend keeps records in process memory
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]map[string][]byte)}
}

// Read implements Backend
func (b *MemoryBackend) Read(_ context.Context, typ, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.records[typ][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Write implements Backend
func (b *MemoryBackend) Write(_ context.Context, typ, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.records[typ] == nil {
		b.records[typ] = make(map[string][]byte)
	}
	b.records[typ][key] = append([]byte(nil), data...)
	return nil
}

// Keys implements Backend
func (b *MemoryBackend) Keys(_ context.Context, typ string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.records[typ]))
	for k := range b.records[typ] {
		keys = append(keys, k)
	}
	return keys, nil
}

// Close implements Backend
func (b *MemoryBackend) Close() error { return nil }
