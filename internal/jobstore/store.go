package jobstore

import (
	"context"
	"sync"

	"ytdl-web/internal/model"
)

// Store maps job keys to progress records. One writer per key, any number of
// readers. Get returns false for keys that have no record yet.
type Store interface {
	Get(ctx context.Context, key string) (model.Progress, bool, error)
	Set(ctx context.Context, key string, p model.Progress) error
}

// Memory is a Store for a single process.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]model.Progress
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]model.Progress)}
}

func (m *Memory) Get(ctx context.Context, key string) (model.Progress, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Progress{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.entries[key]
	return p, ok, nil
}

func (m *Memory) Set(ctx context.Context, key string, p model.Progress) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[key] = p
	m.mu.Unlock()
	return nil
}

func (m *Memory) size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
