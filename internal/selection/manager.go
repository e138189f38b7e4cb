package selection

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrDraftNotFound = errors.New("draft not found")

// Manager owns the live drafts, one per payment screen. A draft is created on
// screen entry, addressed by an opaque id, and discarded on settlement or
// when the screen closes.
type Manager struct {
	mu     sync.Mutex
	loader ReferenceLoader
	drafts map[string]*Draft
}

func NewManager(loader ReferenceLoader) *Manager {
	return &Manager{
		loader: loader,
		drafts: map[string]*Draft{},
	}
}

func (m *Manager) Create(token string) (string, *Draft) {
	id := uuid.NewString()
	draft := NewDraft(m.loader, token)
	m.mu.Lock()
	m.drafts[id] = draft
	m.mu.Unlock()
	return id, draft
}

func (m *Manager) Get(id string) (*Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	draft, ok := m.drafts[id]
	if !ok {
		return nil, ErrDraftNotFound
	}
	return draft, nil
}

// Discard closes the draft and forgets it. Used both for navigation away and
// after a settled submission.
func (m *Manager) Discard(id string) error {
	m.mu.Lock()
	draft, ok := m.drafts[id]
	delete(m.drafts, id)
	m.mu.Unlock()
	if !ok {
		return ErrDraftNotFound
	}
	draft.Close()
	return nil
}
