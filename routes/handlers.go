package routes

import (
	"io/ioutil"
	"log"
	"net/http"
	"strconv"

	"signup-middleware/auth"
	"signup-middleware/config"
	"signup-middleware/drafts"
	"signup-middleware/erp"
	"signup-middleware/errs"
	"signup-middleware/guards"
	"signup-middleware/helpers"
	"signup-middleware/models"
	"signup-middleware/payments"
	"signup-middleware/progress"
	"signup-middleware/ratelimit"
	"signup-middleware/session"
	"signup-middleware/store"
	"signup-middleware/verification"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// verifSessionCookie keys an anonymous visitor's in-flight verification so
// it survives a page reload between requesting a code and submitting it.
const verifSessionCookie = "signup_session"

// Handler carries the wired-up state the signup and portal routes need.
// Per-app outbound clients are keyed by FusionAuth application id.
type Handler struct {
	Conf     config.Config
	Store    *store.Store
	Sessions *session.Manager
	Verif    *verification.State
	Drafts   *drafts.Store
	Limiter  *ratelimit.Limiter
	Backends map[string]*verification.Client
	ERPs     map[string]*erp.Client
}

func (h *Handler) backendFor(app config.App) *verification.Client {
	return h.Backends[app.FusionAuthAppID]
}

func (h *Handler) erpFor(app config.App) *erp.Client {
	return h.ERPs[app.FusionAuthAppID]
}

// snapshotFor resolves the request's identity from the JWT cookie and
// returns the guard snapshot for it. An absent or invalid JWT is a resolved
// anonymous identity, never an error.
func (h *Handler) snapshotFor(c *gin.Context, app config.App) guards.Snapshot {
	jwt := GetJWTFromGin(c, app)
	if jwt == "" {
		return h.Sessions.Anonymous()
	}
	user, err := auth.GetUserByJWT(app, jwt)
	if err != nil {
		log.Printf("route decision: jwt didn't resolve, treating as anonymous: %v", err.Error())
		return h.Sessions.Anonymous()
	}
	return h.Sessions.ForUser(user.Id, user.Email).Snapshot()
}

// NormalizeStepPath rewrites the legacy single-page form "/signup?step=N"
// onto the canonical per-step path, clamping N into the valid range. Any
// other path passes through untouched.
func NormalizeStepPath(path string, stepQuery string) string {
	if path != "/signup" {
		return path
	}
	n := 1
	if stepQuery != "" {
		if v, err := strconv.Atoi(stepQuery); err == nil {
			n = v
		}
	}
	if n < 0 {
		n = 0
	}
	if n > progress.FinalStepIndex() {
		n = progress.FinalStepIndex()
	}
	p, err := progress.StepPathForIndex(n)
	if err != nil {
		return "/"
	}
	return p
}

// RouteDecision answers "may the frontend render this path" for the
// requested path query parameter.
func (h *Handler) RouteDecision(c *gin.Context, app config.App) {
	path := NormalizeStepPath(c.Query("path"), c.Query("step"))
	if path == "" {
		c.JSON(400, gin.H{"success": false, "error": "path query parameter is required"})
		return
	}

	// the welcome page is a hard reset point: landing back on it discards
	// any in-flight verification challenge
	if idx, ok := progress.StepIndexForPath(path); ok && idx == 0 {
		if key := h.currentVerifSessionKey(c, app); key != "" {
			if err := h.Verif.Clear(c.Request.Context(), key); err != nil {
				log.Printf("failed to clear verification for %v on welcome reset: %v", key, err.Error())
			}
		}
	}

	act := guards.Evaluate(path, h.snapshotFor(c, app))
	c.JSON(200, models.RouteDecision{
		Action:     string(act.Kind),
		RedirectTo: act.RedirectTo,
	})
}

// currentVerifSessionKey returns the key the visitor's verification
// challenge is stored under, or "" when the request carries neither a
// signed-in user nor a session cookie. Never mints a new id.
func (h *Handler) currentVerifSessionKey(c *gin.Context, app config.App) string {
	if jwt := GetJWTFromGin(c, app); jwt != "" {
		if user, err := auth.GetUserByJWT(app, jwt); err == nil {
			return user.Id
		}
	}
	if existing, err := c.Cookie(verifSessionCookie); err == nil {
		return existing
	}
	return ""
}

// verifSessionKey is currentVerifSessionKey plus minting: an anonymous
// visitor with no session cookie gets one so the challenge survives a
// reload.
func (h *Handler) verifSessionKey(c *gin.Context, app config.App) string {
	if key := h.currentVerifSessionKey(c, app); key != "" {
		return key
	}
	id := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(verifSessionCookie, id, int(verification.TTL.Seconds()), "/", app.JWT.CookieDomain, app.JWT.CookieSetSecure, true)
	return id
}

// CreateVerification asks the backend to email a code and remembers the
// challenge so a reload doesn't lose it.
func (h *Handler) CreateVerification(c *gin.Context, app config.App) {
	var req models.CreateVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		c.JSON(400, gin.H{"success": false, "error": "a valid email is required"})
		return
	}

	if !h.Limiter.Allow(req.Email) {
		c.JSON(429, gin.H{"success": false, "error": auth.MsgTooManyRequests})
		return
	}

	resp, err := h.backendFor(app).CreateEmailVerification(c.Request.Context(), req.Email, req.Name)
	if err != nil {
		log.Printf("failed to create verification for %v: %v", req.Email, err.Error())
		helpers.JSONError(c, err)
		return
	}

	key := h.verifSessionKey(c, app)
	h.Verif.Save(c.Request.Context(), key, models.VerificationState{
		Email:          req.Email,
		Name:           req.Name,
		VerificationID: resp.VerificationID,
		IsExistingUser: resp.IsExistingUser,
	})

	c.JSON(200, resp)
}

// VerifyCode submits the user's code. The verification id comes from the
// body or, after a reload, from the stored challenge. The call is never
// retried here: the code is single use.
func (h *Handler) VerifyCode(c *gin.Context, app config.App) {
	var req models.VerifyEmailCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		c.JSON(400, gin.H{"success": false, "error": "a verification code is required"})
		return
	}

	key := h.verifSessionKey(c, app)
	rec := h.Verif.Load(c.Request.Context(), key)
	if req.VerificationID == "" {
		if rec == nil {
			// expired or never started; the frontend prompts to re-initiate
			c.JSON(410, gin.H{"success": false, "error": "your verification expired, request a new code"})
			return
		}
		req.VerificationID = rec.VerificationID
	}

	resp, err := h.backendFor(app).VerifyEmailCode(c.Request.Context(), req.VerificationID, req.Code)
	if err != nil {
		helpers.JSONError(c, err)
		return
	}

	// the challenge is spent regardless of what happens next
	if err := h.Verif.Clear(c.Request.Context(), key); err != nil {
		log.Printf("failed to clear verification for %v: %v", key, err.Error())
	}

	// a signed-in user gets the server-verified progress seeded right away;
	// an anonymous one carries the custom token to the provider first
	if jwt := GetJWTFromGin(c, app); jwt != "" {
		if user, err := auth.GetUserByJWT(app, jwt); err == nil {
			sess := h.Sessions.ForUser(user.Id, user.Email)
			if err := sess.SeedProgress(c.Request.Context(), resp.SignupProgress, resp.SignupStep); err != nil {
				log.Printf("failed to seed verified progress for %v: %v", user.Id, err.Error())
			}
		}
	}

	c.JSON(200, resp)
}

// AdvanceStep records a completed wizard step and hands back the next path
// once the write is confirmed durable.
func (h *Handler) AdvanceStep(c *gin.Context, app config.App) {
	user, err := GetUserFromGin(c, app)
	if err != nil {
		return
	}

	var req models.UpdateProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"success": false, "error": "malformed request"})
		return
	}

	sess := h.Sessions.ForUser(user.Id, user.Email)
	nextPath, err := sess.AdvanceStep(c.Request.Context(), req.Step, req.Progress)
	if err != nil {
		log.Printf("failed to advance step %v for user %v: %v", req.Step, user.Id, err.Error())
		helpers.JSONError(c, err)
		return
	}

	c.JSON(200, models.AdvanceStepResponse{
		Success:  true,
		NextPath: nextPath,
	})
}

// GetDraft returns the saved form draft for a step, if any.
func (h *Handler) GetDraft(c *gin.Context, app config.App) {
	user, err := GetUserFromGin(c, app)
	if err != nil {
		return
	}
	stepName := c.Param("step")
	if _, ok := progress.StepIndexForName(stepName); !ok {
		helpers.Simple404(c)
		return
	}
	data := h.Drafts.LoadDraft(c.Request.Context(), user.Id, stepName)
	if data == nil {
		c.Status(204)
		return
	}
	c.Data(200, "application/json", data)
}

// PutDraft saves the step's form input as-is; each step owns its schema.
func (h *Handler) PutDraft(c *gin.Context, app config.App) {
	user, err := GetUserFromGin(c, app)
	if err != nil {
		return
	}
	stepName := c.Param("step")
	if _, ok := progress.StepIndexForName(stepName); !ok {
		helpers.Simple404(c)
		return
	}
	body, err := ioutil.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.JSON(400, gin.H{"success": false, "error": "a draft body is required"})
		return
	}
	h.Drafts.SaveDraft(c.Request.Context(), user.Id, stepName, body)
	c.JSON(200, gin.H{"success": true})
}

// SignOut clears the user's stored signup state, revokes the provider
// session and expires the cookie, then reports the landing path.
func (h *Handler) SignOut(c *gin.Context, app config.App) {
	user, err := GetUserFromGin(c, app)
	if err != nil {
		return
	}

	sess := h.Sessions.ForUser(user.Id, user.Email)
	landing, err := sess.SignOut(c.Request.Context())
	if err != nil {
		log.Printf("failed to clear state during sign-out for %v: %v", user.Id, err.Error())
		helpers.Simple500(c)
		return
	}
	h.Sessions.Drop(user.Id)

	if err := auth.SignOut(app, ""); err != nil {
		log.Printf("provider logout failed for %v: %v", user.Id, err.Error())
	}
	ClearJWTCookie(c, app)

	c.JSON(200, gin.H{"success": true, "redirectTo": landing})
}

// FreshSignup restarts the wizard from the beginning, keeping the user
// signed in.
func (h *Handler) FreshSignup(c *gin.Context, app config.App) {
	user, err := GetUserFromGin(c, app)
	if err != nil {
		return
	}
	sess := h.Sessions.ForUser(user.Id, user.Email)
	landing, err := sess.FreshSignup(c.Request.Context())
	if err != nil {
		log.Printf("failed to reset signup for %v: %v", user.Id, err.Error())
		helpers.JSONError(c, err)
		return
	}
	c.JSON(200, gin.H{"success": true, "redirectTo": landing})
}

// PasswordLogin performs a direct email+password sign-in and sets the JWT
// cookie. Error messages are the fixed user-safe set; provider detail stays
// in the logs.
func (h *Handler) PasswordLogin(c *gin.Context, app config.App) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		c.JSON(400, gin.H{"success": false, "error": auth.MsgInvalidCredential})
		return
	}

	user, token, err := auth.SignInWithPassword(app, req.Email, req.Password)
	if err != nil {
		if errs.IsTimeout(err) {
			c.JSON(503, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(401, gin.H{"success": false, "error": err.Error()})
		return
	}

	SetJWTCookie(c, app, token)
	h.Sessions.ForUser(user.Id, user.Email)

	if _, err := payments.PropagateUserToStripe(c.Request.Context(), app, h.Store, user); err != nil {
		log.Printf("failed to propagate user %v to stripe after login: %v", user.Id, err.Error())
	}

	c.JSON(200, models.LoggedInResponse{
		LoggedIn:     true,
		UserID:       user.Id,
		UserEmail:    user.Email,
		UserFullName: user.FullName,
	})
}

// OauthCallback completes the hosted-login PKCE flow: exchanges the code,
// sets the cookie, warms the session and redirects back to the frontend.
func (h *Handler) OauthCallback(c *gin.Context, app config.App) {
	oauths := models.OauthState{
		State:    c.Query("state"),
		Code:     c.Query("code"),
		Verifier: app.CodeVerif,
	}
	if oauths.State != app.OauthStr {
		log.Printf("oauth callback state mismatch for app %v", app.FusionAuthAppID)
		helpers.Simple404(c)
		return
	}

	user, jwt, err := auth.Login(app, app.FusionAuthClient, oauths)
	if err != nil {
		log.Printf("oauth login failed: %v", err.Error())
		helpers.Simple500(c)
		return
	}

	SetJWTCookie(c, app, jwt)
	h.Sessions.ForUser(user.Id, user.Email)

	if _, err := payments.PropagateUserToStripe(c.Request.Context(), app, h.Store, user); err != nil {
		log.Printf("failed to propagate user %v to stripe after oauth login: %v", user.Id, err.Error())
	}

	c.Redirect(http.StatusTemporaryRedirect, app.AuthCallbackRedirectURL)
}

// erpCustomerID is the ERP's key for the member. The provider user id is
// the canonical customer id across the middleware.
func erpCustomerID(userID string) string {
	return userID
}

// Invoices proxies the member's invoice list from the ERP.
func (h *Handler) Invoices(c *gin.Context, app config.App) {
	user, err := GetUserFromGin(c, app)
	if err != nil {
		return
	}
	data, err := h.erpFor(app).GetInvoices(c.Request.Context(), erpCustomerID(user.Id))
	if err != nil {
		log.Printf("failed to fetch invoices for %v: %v", user.Id, err.Error())
		helpers.JSONError(c, err)
		return
	}
	c.Data(200, "application/json", data)
}

// Payments proxies the member's payment history from the ERP.
func (h *Handler) Payments(c *gin.Context, app config.App) {
	user, err := GetUserFromGin(c, app)
	if err != nil {
		return
	}
	data, err := h.erpFor(app).GetPayments(c.Request.Context(), erpCustomerID(user.Id))
	if err != nil {
		log.Printf("failed to fetch payments for %v: %v", user.Id, err.Error())
		helpers.JSONError(c, err)
		return
	}
	c.Data(200, "application/json", data)
}

// Autopay proxies the member's autopay status from the ERP.
func (h *Handler) Autopay(c *gin.Context, app config.App) {
	user, err := GetUserFromGin(c, app)
	if err != nil {
		return
	}
	data, err := h.erpFor(app).GetAutopayStatus(c.Request.Context(), erpCustomerID(user.Id))
	if err != nil {
		log.Printf("failed to fetch autopay status for %v: %v", user.Id, err.Error())
		helpers.JSONError(c, err)
		return
	}
	c.Data(200, "application/json", data)
}

// SubmitSummary finalizes signup: the assembled profile goes to the ERP,
// the completed payment is mirrored, and the final step is recorded. A
// settled charge whose ERP record fails surfaces as a warning, never a
// rollback.
func (h *Handler) SubmitSummary(c *gin.Context, app config.App) {
	user, err := GetUserFromGin(c, app)
	if err != nil {
		return
	}

	var req struct {
		Profile   map[string]interface{} `json:"profile"`
		PaymentID string                 `json:"paymentId"`
		Amount    int64                  `json:"amount"`
		Currency  string                 `json:"currency"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"success": false, "error": "malformed request"})
		return
	}

	customerID := erpCustomerID(user.Id)
	if _, err := h.erpFor(app).UpsertCustomer(c.Request.Context(), customerID, req.Profile); err != nil {
		log.Printf("failed to upsert erp customer %v: %v", customerID, err.Error())
		helpers.JSONError(c, err)
		return
	}

	var warning string
	if req.PaymentID != "" {
		if err := payments.RecordPayment(c.Request.Context(), h.erpFor(app), customerID, req.PaymentID, req.Amount, req.Currency); err != nil {
			if !errs.IsPartialFailure(err) {
				helpers.JSONError(c, err)
				return
			}
			warning = err.Error()
		}
	}

	sess := h.Sessions.ForUser(user.Id, user.Email)
	nextPath, err := sess.AdvanceStep(c.Request.Context(), "summary", progress.FinalStepIndex())
	if err != nil {
		log.Printf("failed to record signup completion for %v: %v", user.Id, err.Error())
		helpers.JSONError(c, err)
		return
	}

	resp := gin.H{"success": true, "nextPath": nextPath}
	if warning != "" {
		resp["warning"] = warning
	}
	c.JSON(200, resp)
}

// PostMutation reads or writes a per-user field in the durable store,
// subject to the per-field mutability rules.
func (h *Handler) PostMutation(c *gin.Context, app config.App) {
	var mutation models.PostMutationBody
	if err := c.ShouldBindJSON(&mutation); err != nil || mutation.Field == "" {
		c.JSON(400, gin.H{"success": false, "error": "malformed mutation"})
		return
	}

	mutable, err := payments.IsFieldMutable(c.Request.Context(), app, h.Store, mutation)
	if err != nil {
		log.Printf("mutability check failed for field %v: %v", mutation.Field, err.Error())
		helpers.Simple500(c)
		return
	}
	if !mutable {
		c.JSON(403, gin.H{"success": false, "error": "field is not mutable"})
		return
	}

	user, err := auth.GetUserByJWT(app, mutation.JWT)
	if err != nil {
		c.JSON(403, gin.H{"success": false, "error": "unauthorized"})
		return
	}

	switch mutation.Method {
	case "get":
		var value string
		if !h.Store.Get(c.Request.Context(), store.Durable, user.Id, mutation.Field, &value) {
			helpers.JSONError(c, errs.NewNotFoundError("no value stored for that field"))
			return
		}
		c.JSON(200, gin.H{"success": true, "value": value})
	case "set":
		h.Store.Set(c.Request.Context(), store.Durable, user.Id, mutation.Field, mutation.Value)
		c.JSON(200, gin.H{"success": true})
	default:
		c.JSON(400, gin.H{"success": false, "error": "mutation method must be get or set"})
	}
}
