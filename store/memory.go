package store

import (
	"context"
	"sync"
)

// MemoryBackend is an in-process medium, used in tests and in single-binary
// dev setups where neither postgres nor redis is running.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data: map[string][]byte{},
	}
}

func memKey(userID string, scope Scope, key string) string {
	return userID + "/" + string(scope) + "/" + key
}

func (b *MemoryBackend) Set(ctx context.Context, userID string, scope Scope, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	b.data[memKey(userID, scope, key)] = cp
	return nil
}

func (b *MemoryBackend) Get(ctx context.Context, userID string, scope Scope, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[memKey(userID, scope, key)]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (b *MemoryBackend) Remove(ctx context.Context, userID string, scope Scope, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, memKey(userID, scope, key))
	return nil
}

func (b *MemoryBackend) Clear(ctx context.Context, userID string, scope Scope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	prefix := userID + "/" + string(scope) + "/"
	for k := range b.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(b.data, k)
		}
	}
	return nil
}
