package localstore

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/facesaju/internal/record/domain"
)

// memoryBackend keeps records for the life of the process only. It backs a
// Store when the embedded database cannot be opened.
type memoryBackend struct {
	mu         sync.RWMutex
	records    map[string][]byte
	tombstones map[string]time.Time
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{
		records:    make(map[string][]byte),
		tombstones: make(map[string]time.Time),
	}
}

func (m *memoryBackend) load(_ context.Context, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

func (m *memoryBackend) insert(_ context.Context, id string, payload []byte, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tombstones[id]; ok {
		return domain.ErrRecordExists
	}
	if _, ok := m.records[id]; ok {
		return domain.ErrRecordExists
	}
	m.records[id] = append([]byte(nil), payload...)
	return nil
}

func (m *memoryBackend) save(_ context.Context, id string, payload []byte, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = append([]byte(nil), payload...)
	return nil
}

func (m *memoryBackend) remove(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	if _, ok := m.tombstones[id]; !ok {
		m.tombstones[id] = now
	}
	return nil
}

func (m *memoryBackend) close() error { return nil }
