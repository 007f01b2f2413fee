// Package guards is the single redirect policy. Every page asks it what to
// do with a requested path and dispatches the result; no handler re-derives
// gating rules on its own.
package guards

import (
	"net/url"
	"sync"

	"signup-middleware/models"
	"signup-middleware/progress"
)

type Kind string

const (
	Render   Kind = "render"
	Redirect Kind = "redirect"
	Loading  Kind = "loading"
)

type Action struct {
	Kind       Kind
	RedirectTo string
}

// Snapshot is the state a decision is made against. Progress is nil while
// the durable hydrate is still in flight for an authenticated user; it is
// never nil once the session context has resolved it (a user with no stored
// record gets a zero record, not nil).
type Snapshot struct {
	Identity models.IdentitySnapshot
	Progress *models.SignupProgress
}

type rule struct {
	requiresAuth bool
	requiredStep int // minimum completed step index, -1 for none
	anonOnly     bool
	signupStep   bool // a mid-signup wizard page
}

// ruleForPath builds the gating rule for a route. Step page k requires the
// previous step (k-1) to be completed, which also makes the natural next
// step reachable: page at index progress+1 requires progress, which holds.
func ruleForPath(path string) (rule, bool) {
	if idx, ok := progress.StepIndexForPath(path); ok {
		r := rule{
			requiredStep: idx - 1,
			signupStep:   idx > 0,
			// welcome and account creation are reachable anonymously,
			// everything deeper needs a signed-in user
			requiresAuth: idx >= 2,
		}
		return r, true
	}
	switch path {
	case "/login":
		return rule{requiredStep: -1, anonOnly: true}, true
	case "/member-portal":
		return rule{requiresAuth: true, requiredStep: progress.FinalStepIndex()}, true
	}
	return rule{}, false
}

// Evaluate maps (path, state) to an action. Rule order matters and is
// fixed: resolve-gate, auth, step sufficiency, anon-only, completed.
func Evaluate(path string, snap Snapshot) Action {
	// Nothing renders and nothing redirects before the identity provider
	// has reported at least once. Premature decisions against a default
	// identity are the bug class this gate exists to stop.
	if !snap.Identity.AuthResolved {
		return Action{Kind: Loading}
	}

	r, known := ruleForPath(path)
	if !known {
		// unknown routes fall through to the router's 404 page
		return Action{Kind: Render}
	}

	authed := snap.Identity.UserID != ""

	// auth before step sufficiency: an anonymous user asking for a deep
	// step goes to login with the original path as the return target, not
	// to step 0
	if r.requiresAuth && !authed {
		return Action{
			Kind:       Redirect,
			RedirectTo: "/login?continue=" + url.QueryEscape(path),
		}
	}

	needsProgress := r.requiredStep > 0 || r.anonOnly || r.signupStep
	if authed && snap.Progress == nil && needsProgress {
		// still hydrating; a momentarily-nil progress while authenticated
		// must not be read as "no progress"
		return Action{Kind: Loading}
	}

	prog := 0
	completed := false
	if snap.Progress != nil {
		prog = snap.Progress.SignupProgress
		completed = snap.Progress.SignupCompleted
	}

	if r.requiredStep > prog {
		// snap back to the furthest legitimately-reached step, never
		// forward
		target, err := progress.StepPathForIndex(prog)
		if err != nil {
			target = "/"
		}
		return Action{Kind: Redirect, RedirectTo: target}
	}

	if r.anonOnly && authed {
		if completed {
			return Action{Kind: Redirect, RedirectTo: "/member-portal"}
		}
		target, err := progress.StepPathForIndex(prog)
		if err != nil {
			target = "/"
		}
		return Action{Kind: Redirect, RedirectTo: target}
	}

	if r.signupStep && completed {
		return Action{Kind: Redirect, RedirectTo: "/member-portal"}
	}

	return Action{Kind: Render}
}

// NavLatch stops a navigation side effect from firing more than once for
// the same path. Without it, several redirect effects resolving in the same
// cycle issue duplicate navigations (historically visible on the login
// page).
type NavLatch struct {
	mu    sync.Mutex
	path  string
	fired bool
}

// TryNavigate reports whether the caller may issue a navigation for path.
// The latch resets itself when the path changes.
func (l *NavLatch) TryNavigate(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if path != l.path {
		l.path = path
		l.fired = false
	}
	if l.fired {
		return false
	}
	l.fired = true
	return true
}
