package lock

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Locker for single-instance deployments and tests.
type Memory struct {
	mu    sync.Mutex
	held  map[string]memoryEntry
	clock func() time.Time
	seq   uint64
}

type memoryEntry struct {
	token   uint64
	expires time.Time
}

// NewMemory creates an empty in-process locker.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]memoryEntry), clock: time.Now}
}

func (m *Memory) TryAcquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	if e, ok := m.held[key]; ok && now.Before(e.expires) {
		return nil, false, nil
	}

	m.seq++
	token := m.seq
	m.held[key] = memoryEntry{token: token, expires: now.Add(ttl)}

	var once sync.Once
	release := func(context.Context) error {
		err := ErrNotHeld
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if e, ok := m.held[key]; ok && e.token == token {
				delete(m.held, key)
				err = nil
			}
		})
		return err
	}
	return release, true, nil
}
