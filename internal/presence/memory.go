package presence

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store used when no redis is configured, and in
// tests.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Status
}

// NewMemory creates an in-memory presence store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Status)}
}

func (m *Memory) SetStatus(_ context.Context, userID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[userID] = Status{Status: status, LastSeen: time.Now()}
	return nil
}

func (m *Memory) Heartbeat(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	if !ok {
		e = Status{Status: "offline"}
	}
	e.LastSeen = time.Now()
	m.entries[userID] = e
	return nil
}

func (m *Memory) Get(_ context.Context, userID string) (*Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[userID]
	if !ok {
		return nil, ErrUnknownUser
	}
	return &Status{Status: e.Status, LastSeen: e.LastSeen}, nil
}
