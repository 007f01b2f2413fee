package guards

import (
	"net/url"
	"strings"
	"testing"

	"signup-middleware/models"
	"signup-middleware/progress"
)

func authed(userID string, prog int, completed bool) Snapshot {
	name, _ := progress.StepNameForIndex(prog)
	return Snapshot{
		Identity: models.IdentitySnapshot{UserID: userID, Email: userID + "@example.com", AuthResolved: true},
		Progress: &models.SignupProgress{
			SignupProgress:  prog,
			SignupStep:      name,
			SignupCompleted: completed,
		},
	}
}

func anonymous() Snapshot {
	return Snapshot{Identity: models.IdentitySnapshot{AuthResolved: true}}
}

func TestNoDecisionBeforeAuthResolves(t *testing.T) {
	// whatever identity or progress values are sitting in memory, an
	// unresolved provider means loading and nothing else
	snaps := []Snapshot{
		{},
		{Identity: models.IdentitySnapshot{UserID: "user-1"}},
		{
			Identity: models.IdentitySnapshot{UserID: "user-1"},
			Progress: &models.SignupProgress{SignupProgress: 4, SignupCompleted: true},
		},
	}
	paths := []string{"/", "/signup/account", "/signup/contact", "/signup/funding", "/login", "/member-portal", "/summary"}
	for _, snap := range snaps {
		for _, path := range paths {
			if got := Evaluate(path, snap); got.Kind != Loading {
				t.Errorf("path %v with unresolved auth: got %v, want loading", path, got.Kind)
			}
		}
	}
}

func TestForwardJumpSnapsBackNeverForward(t *testing.T) {
	// property: requiredStep > signupProgress always lands on
	// stepPathForIndex(signupProgress), and that target itself renders
	for prog := 0; prog < progress.StepCount(); prog++ {
		for target := prog + 2; target < progress.StepCount(); target++ {
			path, _ := progress.StepPathForIndex(target)
			snap := authed("user-1", prog, false)
			got := Evaluate(path, snap)
			if got.Kind != Redirect {
				t.Fatalf("progress %v requesting step %v: got %v, want redirect", prog, target, got.Kind)
			}
			want, _ := progress.StepPathForIndex(prog)
			if got.RedirectTo != want {
				t.Errorf("progress %v requesting step %v: redirected to %v, want %v", prog, target, got.RedirectTo, want)
			}
			// no redirect loop: the snap-back target must render
			if followup := Evaluate(got.RedirectTo, snap); followup.Kind != Render {
				t.Errorf("snap-back target %v does not render: %v -> %v", got.RedirectTo, followup.Kind, followup.RedirectTo)
			}
		}
	}
}

func TestCompletedStepsAlwaysRevisitable(t *testing.T) {
	for prog := 0; prog < progress.StepCount()-1; prog++ {
		for k := 0; k <= prog; k++ {
			path, _ := progress.StepPathForIndex(k)
			got := Evaluate(path, authed("user-1", prog, false))
			if got.Kind != Render {
				t.Errorf("progress %v revisiting step %v (%v): got %v/%v, want render", prog, k, path, got.Kind, got.RedirectTo)
			}
		}
	}
}

func TestNextUncompletedStepRenders(t *testing.T) {
	for prog := 0; prog < progress.StepCount()-1; prog++ {
		path, _ := progress.StepPathForIndex(prog + 1)
		got := Evaluate(path, authed("user-1", prog, false))
		if got.Kind != Render {
			t.Errorf("progress %v requesting next step %v: got %v, want render", prog, path, got.Kind)
		}
	}
}

func TestAnonymousDeepStepGoesToLoginWithReturnTarget(t *testing.T) {
	// resolved-anonymous asking for the contact step is sent to login
	// carrying the original path
	got := Evaluate("/signup/contact", anonymous())
	if got.Kind != Redirect {
		t.Fatalf("got %v, want redirect", got.Kind)
	}
	if !strings.HasPrefix(got.RedirectTo, "/login?continue=") {
		t.Fatalf("got %v, want a /login redirect with a continue target", got.RedirectTo)
	}
	u, err := url.Parse(got.RedirectTo)
	if err != nil {
		t.Fatal(err)
	}
	if u.Query().Get("continue") != "/signup/contact" {
		t.Errorf("continue target %v, want /signup/contact", u.Query().Get("continue"))
	}
}

func TestAuthCheckedBeforeStepSufficiency(t *testing.T) {
	// an unauthenticated user requesting a deep step must go to login,
	// not be snapped to step 0
	got := Evaluate("/signup/funding", anonymous())
	if got.Kind != Redirect || !strings.HasPrefix(got.RedirectTo, "/login") {
		t.Errorf("got %v %v, want a login redirect", got.Kind, got.RedirectTo)
	}
}

func TestMidSignupForwardJumpSnapsBack(t *testing.T) {
	// authenticated, progress=1, requests step index 3
	path, _ := progress.StepPathForIndex(3)
	got := Evaluate(path, authed("user-1", 1, false))
	want, _ := progress.StepPathForIndex(1)
	if got.Kind != Redirect || got.RedirectTo != want {
		t.Errorf("got %v %v, want redirect to %v", got.Kind, got.RedirectTo, want)
	}
}

func TestCompletedUserOnLoginGoesToPortal(t *testing.T) {
	got := Evaluate("/login", authed("user-1", progress.FinalStepIndex(), true))
	if got.Kind != Redirect || got.RedirectTo != "/member-portal" {
		t.Errorf("got %v %v, want redirect to /member-portal", got.Kind, got.RedirectTo)
	}
}

func TestIncompleteUserOnLoginResumesAtCurrentStep(t *testing.T) {
	got := Evaluate("/login", authed("user-1", 2, false))
	want, _ := progress.StepPathForIndex(2)
	if got.Kind != Redirect || got.RedirectTo != want {
		t.Errorf("got %v %v, want redirect to %v", got.Kind, got.RedirectTo, want)
	}
}

func TestAnonymousUserMayViewLogin(t *testing.T) {
	if got := Evaluate("/login", anonymous()); got.Kind != Render {
		t.Errorf("got %v, want render", got.Kind)
	}
}

func TestCompletedUserOnMidSignupStepGoesToPortal(t *testing.T) {
	got := Evaluate("/signup/package", authed("user-1", progress.FinalStepIndex(), true))
	if got.Kind != Redirect || got.RedirectTo != "/member-portal" {
		t.Errorf("got %v %v, want redirect to /member-portal", got.Kind, got.RedirectTo)
	}
}

func TestIncompleteUserCannotEnterPortal(t *testing.T) {
	got := Evaluate("/member-portal", authed("user-1", 3, false))
	want, _ := progress.StepPathForIndex(3)
	if got.Kind != Redirect || got.RedirectTo != want {
		t.Errorf("got %v %v, want redirect to %v", got.Kind, got.RedirectTo, want)
	}
}

func TestCompletedUserEntersPortal(t *testing.T) {
	got := Evaluate("/member-portal", authed("user-1", progress.FinalStepIndex(), true))
	if got.Kind != Render {
		t.Errorf("got %v, want render", got.Kind)
	}
}

func TestNilProgressWhileAuthenticatedMeansLoading(t *testing.T) {
	snap := Snapshot{Identity: models.IdentitySnapshot{UserID: "user-1", AuthResolved: true}}
	got := Evaluate("/signup/contact", snap)
	if got.Kind != Loading {
		t.Errorf("got %v, want loading while the durable hydrate is in flight", got.Kind)
	}
}

func TestWelcomeRendersForEveryone(t *testing.T) {
	if got := Evaluate("/", anonymous()); got.Kind != Render {
		t.Errorf("anonymous: got %v, want render", got.Kind)
	}
	if got := Evaluate("/", authed("user-1", 2, false)); got.Kind != Render {
		t.Errorf("mid-signup: got %v, want render", got.Kind)
	}
}

func TestUnknownPathFallsThroughToRouter(t *testing.T) {
	if got := Evaluate("/no-such-page", anonymous()); got.Kind != Render {
		t.Errorf("got %v, want render (router serves the 404)", got.Kind)
	}
}

func TestNavLatchFiresOncePerPath(t *testing.T) {
	var l NavLatch
	if !l.TryNavigate("/login") {
		t.Fatal("first navigation should fire")
	}
	if l.TryNavigate("/login") {
		t.Error("repeat navigation for the same path should be suppressed")
	}
	if !l.TryNavigate("/signup/account") {
		t.Error("a new path should fire again")
	}
	if !l.TryNavigate("/login") {
		t.Error("returning to a previous path resets the latch")
	}
}
