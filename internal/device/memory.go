package device

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps bindings in process. Used for STORE_BACKEND=memory and tests.
type MemoryStore struct {
	mu       sync.Mutex
	bindings map[string]Binding
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bindings: make(map[string]Binding)}
}

func (m *MemoryStore) Get(_ context.Context, deviceID string) (Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bindings[deviceID]
	if !ok {
		return Binding{}, ErrNotFound
	}
	return b, nil
}

func (m *MemoryStore) Upsert(_ context.Context, b Binding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings[b.DeviceID] = b
	return nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, b := range m.bindings {
		if b.ExpireAt.Before(now) {
			delete(m.bindings, id)
			n++
		}
	}
	return n, nil
}
