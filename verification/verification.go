// Package verification holds the short-lived email verification challenge
// and the client for the backend functions that issue and check codes.
package verification

import (
	"context"
	"log"
	"time"

	"signup-middleware/models"
	"signup-middleware/store"
)

const stateKey = "verification_state"

// TTL is how long a challenge stays usable. Past it the record reads as
// absent and the user re-initiates, no error dialog.
const TTL = 15 * time.Minute

type State struct {
	store *store.Store
	now   func() time.Time
}

func NewState(st *store.Store) *State {
	return &State{
		store: st,
		now:   time.Now,
	}
}

// Save stores the challenge with the current timestamp so it survives a
// page reload between requesting a code and submitting it.
func (s *State) Save(ctx context.Context, userKey string, rec models.VerificationState) models.VerificationState {
	rec.Timestamp = s.now().UnixNano() / int64(time.Millisecond)
	s.store.Set(ctx, store.Ephemeral, userKey, stateKey, rec)
	return rec
}

// Load returns the stored challenge, or nil if absent, unreadable or
// expired. An expired record is cleared from storage as a side effect.
func (s *State) Load(ctx context.Context, userKey string) *models.VerificationState {
	var rec models.VerificationState
	if !s.store.Get(ctx, store.Ephemeral, userKey, stateKey, &rec) {
		return nil
	}
	age := s.now().UnixNano()/int64(time.Millisecond) - rec.Timestamp
	if age >= TTL.Milliseconds() {
		err := s.store.Remove(ctx, store.Ephemeral, userKey, stateKey)
		if err != nil {
			log.Printf("verification: failed to clear expired record for %v: %v", userKey, err.Error())
		}
		return nil
	}
	return &rec
}

func (s *State) Clear(ctx context.Context, userKey string) error {
	return s.store.Remove(ctx, store.Ephemeral, userKey, stateKey)
}
