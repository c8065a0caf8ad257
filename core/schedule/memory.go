package schedule

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/smartwatt/core/model"
)

// MemoryStore keeps the schedule in process memory.
type MemoryStore struct {
	mu sync.Mutex
	s  Schedule
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{s: Schedule{}}
}

func (m *MemoryStore) Get(_ context.Context, device string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.s[device]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, device)
	}
	return e, nil
}

func (m *MemoryStore) Put(_ context.Context, device string, e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.Merge(Schedule{device: e})
	return nil
}

func (m *MemoryStore) PutAll(_ context.Context, s Schedule) error {
	for dev, e := range s {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%s: %w", dev, err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.Merge(s)
	return nil
}

func (m *MemoryStore) All(context.Context) (Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.Clone(), nil
}

func (m *MemoryStore) Close() error { return nil }

// MemoryRecent is a RecentLog held in memory.
type MemoryRecent struct {
	mu    sync.Mutex
	items []model.OptimizationResult
}

// NewMemoryRecent returns a log keeping the newest RecentCap entries.
func NewMemoryRecent() *MemoryRecent {
	return &MemoryRecent{}
}

func (m *MemoryRecent) Record(_ context.Context, r model.OptimizationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = Prepend(m.items, r)
	return nil
}

func (m *MemoryRecent) List(context.Context) ([]model.OptimizationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.OptimizationResult, len(m.items))
	copy(out, m.items)
	return out, nil
}

func (m *MemoryRecent) Close() error { return nil }
