// Package session is the composition root: it combines the identity
// watcher with the durable signup progress into the one value guards and
// pages consume, and it is the only writer of progress into storage.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"

	"signup-middleware/auth"
	"signup-middleware/drafts"
	"signup-middleware/errs"
	"signup-middleware/guards"
	"signup-middleware/models"
	"signup-middleware/progress"
	"signup-middleware/verification"
)

// Context tracks one user's composed session state. It moves through
// Initializing -> Resolved-Anonymous -> Resolved-Authenticated and back on
// sign-out, driven by watcher emissions.
type Context struct {
	mu          sync.Mutex
	identity    models.IdentitySnapshot
	progressRec *models.SignupProgress
	unsubscribe func()

	watcher       *auth.Watcher
	progressState *progress.State
	verifState    *verification.State
	draftStore    *drafts.Store
	backend       *verification.Client // remote progress mirror, best effort
}

func NewContext(
	watcher *auth.Watcher,
	progressState *progress.State,
	verifState *verification.State,
	draftStore *drafts.Store,
	backend *verification.Client,
) *Context {
	return &Context{
		watcher:       watcher,
		progressState: progressState,
		verifState:    verifState,
		draftStore:    draftStore,
		backend:       backend,
	}
}

// Start subscribes to the identity watcher. Acquire on mount, release with
// Stop on unmount.
func (c *Context) Start() {
	c.unsubscribe = c.watcher.Subscribe(c.handleAuthChange)
}

func (c *Context) Stop() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// handleAuthChange is the transition function. A nil-user emission clears
// only the in-memory progress: durable rows survive a transient provider
// blip and are removed solely by the explicit sign-out and fresh-signup
// flows. Guards read the momentarily-nil value as "still loading".
func (c *Context) handleAuthChange(snap models.IdentitySnapshot) {
	c.mu.Lock()
	previous := c.identity
	c.identity = snap

	if snap.UserID == "" {
		c.progressRec = nil
		c.mu.Unlock()
		return
	}

	needsHydrate := c.progressRec == nil || previous.UserID != snap.UserID
	c.mu.Unlock()

	if needsHydrate {
		c.hydrate(context.Background(), snap.UserID)
	}
}

// hydrate loads progress from durable storage, optimistically; a later
// authoritative source (the verified-progress fetch after email
// verification) corrects it through SeedProgress. A user with no stored
// record gets a zero record rather than nil, so guards can tell "no
// progress" from "not loaded yet".
func (c *Context) hydrate(ctx context.Context, userID string) {
	rec := c.progressState.Load(ctx, userID)
	if rec == nil {
		zero := c.progressState.Save(ctx, userID, 0, "welcome", false)
		rec = &zero
	}

	c.mu.Lock()
	// the watcher may have signed us out while the load was in flight;
	// don't resurrect progress for a gone user
	if c.identity.UserID == userID {
		c.progressRec = rec
	}
	c.mu.Unlock()
}

// Snapshot returns the value guards evaluate against.
func (c *Context) Snapshot() guards.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return guards.Snapshot{
		Identity: c.identity,
		Progress: c.progressRec,
	}
}

// SeedProgress installs a server-verified progress value, e.g. the one
// returned by a successful email code verification.
func (c *Context) SeedProgress(ctx context.Context, progressIdx int, step string) error {
	c.mu.Lock()
	userID := c.identity.UserID
	c.mu.Unlock()
	if userID == "" {
		return errs.NewAuthenticationError("not signed in")
	}

	completed := progressIdx == progress.FinalStepIndex()
	rec := c.progressState.Save(ctx, userID, progressIdx, step, completed)

	c.mu.Lock()
	c.progressRec = &rec
	c.mu.Unlock()
	return nil
}

// AdvanceStep records the completion of a step. The durable write is
// confirmed by re-reading before the next path is handed back, so a caller
// that navigates on return can never race a destination page re-reading
// stale progress. Progress only moves forward; replaying an older step is
// a no-op on the stored index.
func (c *Context) AdvanceStep(ctx context.Context, step string, progressIdx int) (nextPath string, err error) {
	c.mu.Lock()
	userID := c.identity.UserID
	current := c.progressRec
	c.mu.Unlock()

	if userID == "" {
		return "", errs.NewAuthenticationError("not signed in")
	}

	idx, ok := progress.StepIndexForName(step)
	if !ok {
		return "", errs.NewValidationError(fmt.Sprintf("unknown step %v", step))
	}
	if idx != progressIdx {
		return "", errs.NewValidationError(fmt.Sprintf("step %v is index %v, not %v", step, idx, progressIdx))
	}

	effective := progressIdx
	if current != nil && current.SignupProgress > effective {
		effective = current.SignupProgress
	}
	effectiveStep, err := progress.StepNameForIndex(effective)
	if err != nil {
		return "", errs.NewValidationError(err.Error())
	}
	completed := effective == progress.FinalStepIndex()

	c.progressState.Save(ctx, userID, effective, effectiveStep, completed)

	// confirm durability before reporting any navigation target
	confirmed := c.progressState.Load(ctx, userID)
	if confirmed == nil || confirmed.SignupProgress < effective {
		return "", errs.NewInternalError("progress write could not be confirmed, navigation is not safe")
	}

	c.mu.Lock()
	c.progressRec = confirmed
	c.mu.Unlock()

	// mirror to the remote record, best effort; the durable local write
	// is what gates navigation
	if c.backend != nil {
		if mirrorErr := c.backend.UpdateSignupProgress(ctx, effectiveStep, effective); mirrorErr != nil {
			log.Printf("failed to mirror progress %v/%v for user %v: %v", effectiveStep, effective, userID, mirrorErr.Error())
		}
	}

	if completed {
		return "/member-portal", nil
	}
	return progress.StepPathForIndex(effective + 1)
}

// SignOut clears all of the user's stored state before the landing
// redirect, so a new anonymous session on the same device can never see a
// previous user's progress. Returns the landing path.
func (c *Context) SignOut(ctx context.Context) (string, error) {
	c.mu.Lock()
	userID := c.identity.UserID
	c.mu.Unlock()

	if userID != "" {
		if err := c.clearStoredState(ctx, userID); err != nil {
			return "", err
		}
	}

	c.watcher.Emit("", "")
	return "/", nil
}

// FreshSignup discards progress, drafts and any in-flight verification and
// restarts the wizard from step 0, keeping the user signed in.
func (c *Context) FreshSignup(ctx context.Context) (string, error) {
	c.mu.Lock()
	userID := c.identity.UserID
	c.mu.Unlock()

	if userID == "" {
		return "", errs.NewAuthenticationError("not signed in")
	}
	if err := c.clearStoredState(ctx, userID); err != nil {
		return "", err
	}

	zero := c.progressState.Save(ctx, userID, 0, "welcome", false)
	c.mu.Lock()
	c.progressRec = &zero
	c.mu.Unlock()
	return "/", nil
}

func (c *Context) clearStoredState(ctx context.Context, userID string) error {
	if err := c.progressState.Clear(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear progress for %v: %v", userID, err.Error())
	}
	if err := c.verifState.Clear(ctx, userID); err != nil {
		log.Printf("failed to clear verification state for %v: %v", userID, err.Error())
	}
	c.draftStore.ClearAll(ctx, userID)
	return nil
}
