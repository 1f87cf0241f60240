package store

import (
	"context"
	"sync"
)

// MemStore is an in-memory Store for development, tests, and ephemeral
// runs. Contents are lost when the process exits; use one of the SQL
// backends when runs must survive a restart (suspended approval runs in
// particular can stay parked for days).
//
// Checkpoints are deep-copied through JSON on the way in and out so callers
// never share slices or maps with stored snapshots.
type MemStore[S any] struct {
	mu   sync.RWMutex
	runs map[string]map[int]Checkpoint[S]
}

// NewMemStore creates an empty in-memory store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{runs: make(map[string]map[int]Checkpoint[S])}
}

// Save implements Store.
func (m *MemStore[S]) Save(_ context.Context, cp Checkpoint[S]) error {
	copied, err := copyCheckpoint(cp)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	steps, ok := m.runs[cp.RunID]
	if !ok {
		steps = make(map[int]Checkpoint[S])
		m.runs[cp.RunID] = steps
	}
	steps[cp.StepID] = copied
	return nil
}

// LoadLatest implements Store.
func (m *MemStore[S]) LoadLatest(_ context.Context, runID string) (Checkpoint[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	steps, ok := m.runs[runID]
	if !ok || len(steps) == 0 {
		var zero Checkpoint[S]
		return zero, ErrNotFound
	}

	best := -1
	for step := range steps {
		if step > best {
			best = step
		}
	}
	return copyCheckpoint(steps[best])
}
