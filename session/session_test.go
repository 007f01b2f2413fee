package session

import (
	"context"
	"testing"

	"signup-middleware/auth"
	"signup-middleware/drafts"
	"signup-middleware/errs"
	"signup-middleware/guards"
	"signup-middleware/progress"
	"signup-middleware/store"
	"signup-middleware/verification"
)

type fixture struct {
	watcher  *auth.Watcher
	sess     *Context
	durable  *store.MemoryBackend
	progress *progress.State
	drafts   *drafts.Store
}

func newFixture() *fixture {
	durable := store.NewMemoryBackend()
	st := store.New(durable, store.NewMemoryBackend())
	progressState := progress.NewState(st)
	verifState := verification.NewState(st)
	draftStore := drafts.NewStore(st)
	watcher := auth.NewWatcher()

	sess := NewContext(watcher, progressState, verifState, draftStore, nil)
	sess.Start()

	return &fixture{
		watcher:  watcher,
		sess:     sess,
		durable:  durable,
		progress: progressState,
		drafts:   draftStore,
	}
}

// freshProgressState simulates the destination page of a navigation
// re-reading progress from the durable medium with no shared memory.
func (f *fixture) freshProgressState() *progress.State {
	return progress.NewState(store.New(f.durable, store.NewMemoryBackend()))
}

func TestStartsInitializing(t *testing.T) {
	f := newFixture()
	snap := f.sess.Snapshot()
	if snap.Identity.AuthResolved {
		t.Error("session must start unresolved")
	}
	if guards.Evaluate("/signup/contact", snap).Kind != guards.Loading {
		t.Error("guards must hold at loading before the first emission")
	}
}

func TestSignInHydratesStoredProgress(t *testing.T) {
	f := newFixture()
	f.progress.Save(context.Background(), "user-1", 3, "package", false)

	f.watcher.Emit("user-1", "member@example.com")

	snap := f.sess.Snapshot()
	if snap.Progress == nil {
		t.Fatal("progress should be hydrated from durable storage")
	}
	if snap.Progress.SignupProgress != 3 || snap.Progress.SignupStep != "package" {
		t.Errorf("unexpected progress %+v", snap.Progress)
	}
}

func TestSignInWithNoRecordGetsZeroRecordNotNil(t *testing.T) {
	f := newFixture()
	f.watcher.Emit("user-1", "member@example.com")

	snap := f.sess.Snapshot()
	if snap.Progress == nil {
		t.Fatal("a user with no stored record must get a zero record, nil means loading")
	}
	if snap.Progress.SignupProgress != 0 {
		t.Errorf("unexpected progress %+v", snap.Progress)
	}
}

func TestProviderBlipClearsMemoryButNotDurable(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.progress.Save(ctx, "user-1", 2, "contact_info", false)

	f.watcher.Emit("user-1", "member@example.com")
	f.watcher.Emit("", "") // transient provider hiccup

	snap := f.sess.Snapshot()
	if snap.Progress != nil {
		t.Error("in-memory progress must clear on a nil-user emission")
	}
	if rec := f.progress.Load(ctx, "user-1"); rec == nil || rec.SignupProgress != 2 {
		t.Errorf("durable progress must survive the blip, got %+v", rec)
	}

	// and signing back in recovers it
	f.watcher.Emit("user-1", "member@example.com")
	snap = f.sess.Snapshot()
	if snap.Progress == nil || snap.Progress.SignupProgress != 2 {
		t.Errorf("progress should re-hydrate after the blip, got %+v", snap.Progress)
	}
}

func TestAdvanceStepDurableBeforeNavigation(t *testing.T) {
	// by the time AdvanceStep hands back a navigation target, a fresh
	// store instance must already observe the new progress
	f := newFixture()
	f.watcher.Emit("user-1", "member@example.com")

	nextPath, err := f.sess.AdvanceStep(context.Background(), "package", 3)
	if err != nil {
		t.Fatal(err)
	}

	rec := f.freshProgressState().Load(context.Background(), "user-1")
	if rec == nil || rec.SignupProgress != 3 {
		t.Fatalf("durable progress not visible to a fresh instance: %+v", rec)
	}

	want, _ := progress.StepPathForIndex(4)
	if nextPath != want {
		t.Errorf("next path %v, want %v", nextPath, want)
	}
}

func TestAdvanceStepNeverMovesBackwards(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.watcher.Emit("user-1", "member@example.com")

	if _, err := f.sess.AdvanceStep(ctx, "package", 3); err != nil {
		t.Fatal(err)
	}
	// replaying an earlier step (revisit + resubmit) must not regress
	if _, err := f.sess.AdvanceStep(ctx, "contact_info", 2); err != nil {
		t.Fatal(err)
	}

	snap := f.sess.Snapshot()
	if snap.Progress.SignupProgress != 3 {
		t.Errorf("progress regressed to %v", snap.Progress.SignupProgress)
	}
}

func TestAdvanceStepRejectsMismatchedStepAndIndex(t *testing.T) {
	f := newFixture()
	f.watcher.Emit("user-1", "member@example.com")

	_, err := f.sess.AdvanceStep(context.Background(), "package", 2)
	if err == nil {
		t.Fatal("mismatched step name and index must be rejected")
	}
	if _, ok := err.(*errs.ValidationError); !ok {
		t.Errorf("want validation error, got %T", err)
	}
}

func TestAdvanceStepRequiresUser(t *testing.T) {
	f := newFixture()
	f.watcher.Emit("", "")

	_, err := f.sess.AdvanceStep(context.Background(), "contact_info", 2)
	if _, ok := err.(*errs.AuthenticationError); !ok {
		t.Errorf("want authentication error, got %T (%v)", err, err)
	}
}

func TestFinalStepCompletesAndRoutesToPortal(t *testing.T) {
	f := newFixture()
	f.watcher.Emit("user-1", "member@example.com")

	final := progress.FinalStepIndex()
	name, _ := progress.StepNameForIndex(final)
	nextPath, err := f.sess.AdvanceStep(context.Background(), name, final)
	if err != nil {
		t.Fatal(err)
	}
	if nextPath != "/member-portal" {
		t.Errorf("next path %v, want /member-portal", nextPath)
	}

	snap := f.sess.Snapshot()
	if !snap.Progress.SignupCompleted {
		t.Error("completing the final step must set signupCompleted")
	}
	if guards.Evaluate("/member-portal", snap).Kind != guards.Render {
		t.Error("portal should render once completed")
	}
}

func TestSignOutClearsDurableStateBeforeLanding(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.watcher.Emit("user-1", "member@example.com")
	if _, err := f.sess.AdvanceStep(ctx, "contact_info", 2); err != nil {
		t.Fatal(err)
	}
	f.drafts.SaveDraft(ctx, "user-1", "contact_info", []byte(`{"firstName":"Ada"}`))

	landing, err := f.sess.SignOut(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if landing != "/" {
		t.Errorf("landing %v, want /", landing)
	}

	if rec := f.progress.Load(ctx, "user-1"); rec != nil {
		t.Errorf("durable progress must be cleared on sign-out, got %+v", rec)
	}
	if d := f.drafts.LoadDraft(ctx, "user-1", "contact_info"); d != nil {
		t.Error("drafts must be cleared on sign-out")
	}

	// and a subsequent guard evaluation for a gated route goes to login
	action := guards.Evaluate("/signup/contact", f.sess.Snapshot())
	if action.Kind != guards.Redirect {
		t.Fatalf("got %v, want redirect", action.Kind)
	}
	if action.RedirectTo[:6] != "/login" {
		t.Errorf("got %v, want a login redirect", action.RedirectTo)
	}
}

func TestFreshSignupResetsToStepZeroKeepingUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.watcher.Emit("user-1", "member@example.com")
	if _, err := f.sess.AdvanceStep(ctx, "funding", 4); err != nil {
		t.Fatal(err)
	}

	landing, err := f.sess.FreshSignup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if landing != "/" {
		t.Errorf("landing %v, want /", landing)
	}

	snap := f.sess.Snapshot()
	if snap.Identity.UserID != "user-1" {
		t.Error("fresh signup keeps the user signed in")
	}
	if snap.Progress == nil || snap.Progress.SignupProgress != 0 {
		t.Errorf("progress should be reset to zero, got %+v", snap.Progress)
	}
}

func TestManagerReusesContextPerUser(t *testing.T) {
	durable := store.NewMemoryBackend()
	st := store.New(durable, store.NewMemoryBackend())
	m := NewManager(progress.NewState(st), verification.NewState(st), drafts.NewStore(st), nil)

	a := m.ForUser("user-1", "a@b.c")
	b := m.ForUser("user-1", "a@b.c")
	if a != b {
		t.Error("same user should get the same context")
	}

	other := m.ForUser("user-2", "x@y.z")
	if other == a {
		t.Error("different users must not share a context")
	}

	m.Drop("user-1")
	again := m.ForUser("user-1", "a@b.c")
	if again == a {
		t.Error("dropped context should be rebuilt on next sight")
	}
}
