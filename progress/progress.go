// Package progress owns the durable signup progress record and the
// canonical step ordering. Path segments and ?step=N query addressing both
// resolve through the same table here, so they cannot drift apart.
package progress

import (
	"context"
	"fmt"
	"time"

	"signup-middleware/models"
	"signup-middleware/store"
)

const stateKey = "signup_state"

// steps holds the canonical ordering. The index is the value stored in
// SignupProgress; completing the last one routes to the member portal.
var steps = []struct {
	Name string
	Path string
}{
	{Name: "welcome", Path: "/"},
	{Name: "account", Path: "/signup/account"},
	{Name: "contact_info", Path: "/signup/contact"},
	{Name: "package", Path: "/signup/package"},
	{Name: "funding", Path: "/signup/funding"},
	{Name: "summary", Path: "/summary"},
}

func StepCount() int {
	return len(steps)
}

// FinalStepIndex is the index whose completion marks the signup done.
func FinalStepIndex() int {
	return len(steps) - 1
}

// StepPathForIndex returns the route for a step index. Callers must clamp
// before calling; out-of-range is an error, not a silent default.
func StepPathForIndex(i int) (string, error) {
	if i < 0 || i >= len(steps) {
		return "", fmt.Errorf("step index %v out of range [0, %v]", i, len(steps)-1)
	}
	return steps[i].Path, nil
}

func StepNameForIndex(i int) (string, error) {
	if i < 0 || i >= len(steps) {
		return "", fmt.Errorf("step index %v out of range [0, %v]", i, len(steps)-1)
	}
	return steps[i].Name, nil
}

func StepIndexForName(name string) (int, bool) {
	for i, s := range steps {
		if s.Name == name {
			return i, true
		}
	}
	return 0, false
}

func StepIndexForPath(path string) (int, bool) {
	for i, s := range steps {
		if s.Path == path {
			return i, true
		}
	}
	return 0, false
}

// State is the durable CRUD over the SignupProgress record. It does not
// validate monotonicity itself; session.Context.AdvanceStep is the one
// writer and enforces that there.
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

// Save writes the full record with a fresh timestamp.
func (s *State) Save(ctx context.Context, userID string, progressIdx int, step string, completed bool) models.SignupProgress {
	rec := models.SignupProgress{
		SignupProgress:  progressIdx,
		SignupStep:      step,
		SignupCompleted: completed,
		Timestamp:       s.now().UnixNano() / int64(time.Millisecond),
	}
	s.store.Set(ctx, store.Durable, userID, stateKey, rec)
	return rec
}

// Load returns the stored record, or nil if absent or unreadable.
func (s *State) Load(ctx context.Context, userID string) *models.SignupProgress {
	var rec models.SignupProgress
	if !s.store.Get(ctx, store.Durable, userID, stateKey, &rec) {
		return nil
	}
	return &rec
}

func (s *State) Clear(ctx context.Context, userID string) error {
	return s.store.Remove(ctx, store.Durable, userID, stateKey)
}
