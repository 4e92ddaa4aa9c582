// internal/jobs/memory.go
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// MemoryStore keeps job state in process memory. It is the default backend;
// state does not survive a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	jobs   map[string]schemas.JobRecord
	events map[string][]schemas.StatusEvent
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[string]schemas.JobRecord),
		events: make(map[string][]schemas.StatusEvent),
	}
}

func (m *MemoryStore) Create(_ context.Context, rec schemas.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[rec.ID]; exists {
		return fmt.Errorf("job %s already exists", rec.ID)
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	m.jobs[rec.ID] = rec
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*schemas.JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := rec
	return &out, nil
}

func (m *MemoryStore) UpdateState(_ context.Context, id string, state schemas.JobState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	rec.State = state
	rec.UpdatedAt = time.Now().UTC()
	m.jobs[id] = rec
	return nil
}

func (m *MemoryStore) SetResult(_ context.Context, id string, result *schemas.ResultPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	rec.Result = result
	rec.State = schemas.JobCompleted
	rec.UpdatedAt = time.Now().UTC()
	m.jobs[id] = rec
	return nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, id string, event schemas.StatusEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return ErrNotFound
	}
	m.events[id] = append(m.events[id], event)
	return nil
}

func (m *MemoryStore) Events(_ context.Context, id string) ([]schemas.StatusEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.jobs[id]; !ok {
		return nil, ErrNotFound
	}
	events := m.events[id]
	out := make([]schemas.StatusEvent, len(events))
	copy(out, events)
	return out, nil
}
