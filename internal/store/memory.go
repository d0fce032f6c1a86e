package store

import (
	"context"
	"sync"

	"github.com/halvely/push-relay-agent/internal/model"
)

// MemoryStore is an in-process Store used in tests and when no database is
// configured.
type MemoryStore struct {
	mu    sync.Mutex
	state *model.RegistrationState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(ctx context.Context) (*model.RegistrationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return model.NewRegistrationState(), nil
	}
	return m.state.Clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, state *model.RegistrationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state.Clone()
	return nil
}

var _ Store = (*MemoryStore)(nil)
