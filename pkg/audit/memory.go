package audit

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and local runs, mirroring
// pkg/lead.MemoryStore's mutex-guarded slice idiom.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemoryStore) FindByExecutionID(ctx context.Context, executionID string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		execID := e.MCPExecutionID
		if execID == "" {
			execID = e.ExecutionID
		}
		if execID == executionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns every stored entry, used by tests asserting on audit
// invariants across a whole run.
func (m *MemoryStore) All() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}
