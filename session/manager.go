package session

import (
	"sync"

	"signup-middleware/auth"
	"signup-middleware/drafts"
	"signup-middleware/guards"
	"signup-middleware/models"
	"signup-middleware/progress"
	"signup-middleware/verification"
)

// Manager hands out one Context per user. Contexts live for the life of
// the process; state is small and sign-out drops them. Durable storage is
// shared across tabs/devices but contexts are not synchronized across
// instances; a concurrently open tab sees divergent in-memory state until
// it re-resolves (known limitation, not solved here).
type Manager struct {
	mu     sync.Mutex
	byUser map[string]*Context

	progressState *progress.State
	verifState    *verification.State
	draftStore    *drafts.Store
	backend       *verification.Client
}

func NewManager(
	progressState *progress.State,
	verifState *verification.State,
	draftStore *drafts.Store,
	backend *verification.Client,
) *Manager {
	return &Manager{
		byUser:        map[string]*Context{},
		progressState: progressState,
		verifState:    verifState,
		draftStore:    draftStore,
		backend:       backend,
	}
}

// ForUser returns the user's context, creating and resolving it on first
// sight.
func (m *Manager) ForUser(userID string, email string) *Context {
	m.mu.Lock()
	c, ok := m.byUser[userID]
	if !ok {
		watcher := auth.NewWatcher()
		c = NewContext(watcher, m.progressState, m.verifState, m.draftStore, m.backend)
		c.Start()
		m.byUser[userID] = c
	}
	m.mu.Unlock()

	c.watcher.Emit(userID, email)
	return c
}

// Drop forgets a user's context, typically after sign-out.
func (m *Manager) Drop(userID string) {
	m.mu.Lock()
	c, ok := m.byUser[userID]
	if ok {
		delete(m.byUser, userID)
	}
	m.mu.Unlock()
	if ok {
		c.Stop()
	}
}

// Anonymous is the snapshot for a request with no usable identity: the
// provider has reported (there is no user), so guards may decide.
func (m *Manager) Anonymous() guards.Snapshot {
	return guards.Snapshot{
		Identity: models.IdentitySnapshot{AuthResolved: true},
	}
}
