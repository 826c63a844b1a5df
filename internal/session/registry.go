package session

import (
	"sync"

	"github.com/akamquiz/akamquiz/internal/bank"
	"github.com/akamquiz/akamquiz/internal/store"
)

// Registry hands out one Manager per user so sessions never cross accounts.
type Registry struct {
	bank     *bank.Bank
	store    *store.Store
	onFinish func(userID string) error

	mu       sync.Mutex
	managers map[string]*Manager
}

// NewRegistry creates a registry whose managers all share the given
// on-finish follow-up (typically the auth manager's stats write-back).
func NewRegistry(b *bank.Bank, s *store.Store, onFinish func(string) error) *Registry {
	return &Registry{
		bank:     b,
		store:    s,
		onFinish: onFinish,
		managers: make(map[string]*Manager),
	}
}

// ManagerFor returns the user's manager, creating it on first use.
func (r *Registry) ManagerFor(userID string) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.managers[userID]; ok {
		return m
	}
	m := NewManager(r.bank, r.store, userID, r.onFinish)
	r.managers[userID] = m
	return m
}

// Drop abandons a user's session and releases the manager, typically on
// logout. Idempotent.
func (r *Registry) Drop(userID string) {
	r.mu.Lock()
	m, ok := r.managers[userID]
	delete(r.managers, userID)
	r.mu.Unlock()
	if ok {
		m.Reset()
	}
}
