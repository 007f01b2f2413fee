package auth

import (
	"log"
	"sync"

	"signup-middleware/models"
)

// Watcher adapts the provider's callback model into a single current value
// plus a resolved flag. AuthResolved flips exactly once, atomically with
// the delivery of the first emission: no subscriber can ever observe
// resolved=true alongside stale default identity data.
type Watcher struct {
	mu        sync.Mutex
	resolved  bool
	current   models.IdentitySnapshot
	listeners map[int]func(models.IdentitySnapshot)
	nextID    int
}

func NewWatcher() *Watcher {
	return &Watcher{
		listeners: map[int]func(models.IdentitySnapshot){},
	}
}

// Subscribe registers onChange for every emission, including the first one
// after registration. If the provider has already reported, the current
// value is delivered immediately. The returned func releases the listener.
func (w *Watcher) Subscribe(onChange func(models.IdentitySnapshot)) (unsubscribe func()) {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.listeners[id] = onChange
	resolved := w.resolved
	current := w.current
	w.mu.Unlock()

	if resolved {
		onChange(current)
	}

	return func() {
		w.mu.Lock()
		delete(w.listeners, id)
		w.mu.Unlock()
	}
}

// Emit records a provider state report (sign-in, sign-out or a token
// refresh re-emit) and notifies subscribers. An empty userID means "no
// user".
func (w *Watcher) Emit(userID string, email string) {
	w.mu.Lock()
	w.current = models.IdentitySnapshot{
		UserID:       userID,
		Email:        email,
		AuthResolved: true,
	}
	w.resolved = true
	snap := w.current
	listeners := make([]func(models.IdentitySnapshot), 0, len(w.listeners))
	for _, l := range w.listeners {
		listeners = append(listeners, l)
	}
	w.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

// ResolveFailOpen is the init-failure path: the provider could not be
// reached, so resolve to "not authenticated" instead of hanging every
// guard in a loading state forever.
func (w *Watcher) ResolveFailOpen(err error) {
	if err != nil {
		log.Printf("identity provider init failed, resolving as anonymous: %v", err.Error())
	}
	w.Emit("", "")
}

// Snapshot returns the current value without subscribing.
func (w *Watcher) Snapshot() models.IdentitySnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}
