package models

import "encoding/json"

// SignupProgress is the durable record of how far a user has made it through
// the signup wizard. SignupProgress is the index of the furthest completed
// step and SignupStep is the canonical name at that same index.
type SignupProgress struct {
	SignupProgress  int    `json:"signupProgress"`
	SignupStep      string `json:"signupStep"`
	SignupCompleted bool   `json:"signupCompleted"`
	Timestamp       int64  `json:"timestamp"` // ms epoch of the last write
}

// VerificationState is the in-flight email verification challenge. Valid for
// 15 minutes from Timestamp; consumers treat an expired record as absent.
type VerificationState struct {
	Email          string `json:"email"`
	Name           string `json:"name"`
	VerificationID string `json:"verificationId"`
	IsExistingUser bool   `json:"isExistingUser"`
	Timestamp      int64  `json:"timestamp"` // ms epoch
}

// IdentitySnapshot is the current view of the identity provider's state.
// AuthResolved is false until the provider has reported at least once, and
// no redirect decision may be made before it flips.
type IdentitySnapshot struct {
	UserID       string
	Email        string
	AuthResolved bool
}

type LoggedInResponse struct {
	LoggedIn     bool   `json:"loggedIn"`
	UserID       string `json:"userId"`
	UserEmail    string `json:"userEmail"`
	UserFullName string `json:"userFullName"`
}

type OauthState struct {
	State    string `json:"state"`
	Code     string `json:"code"`
	Verifier string
}

// Envelope is the ERP gateway's uniform response wrapper.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type CreateVerificationRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type CreateVerificationResponse struct {
	Success        bool   `json:"success"`
	VerificationID string `json:"verificationId"`
	IsExistingUser bool   `json:"isExistingUser"`
}

type VerifyEmailCodeRequest struct {
	VerificationID string `json:"verificationId"`
	Code           string `json:"code"`
}

type VerifyEmailCodeResponse struct {
	Success        bool   `json:"success"`
	CustomToken    string `json:"customToken"`
	SignupProgress int    `json:"signupProgress"`
	SignupStep     string `json:"signupStep"`
}

// UpdateProgressRequest is the wire shape for a step completion, both
// inbound from the frontend and outbound to the backend-function mirror.
type UpdateProgressRequest struct {
	Step     string `json:"step"`
	Progress int    `json:"progress"`
}

type AdvanceStepResponse struct {
	Success  bool   `json:"success"`
	NextPath string `json:"nextPath"`
}

// RouteDecision is what the frontend gets back for a requested path:
// render it, redirect somewhere else, or keep showing its loading state.
type RouteDecision struct {
	Action     string `json:"action"` // "render", "redirect" or "loading"
	RedirectTo string `json:"redirectTo,omitempty"`
}

type PostMutationBody struct {
	Domain string `json:"d"`
	JWT    string `json:"s"`
	Field  string `json:"f"`
	Value  string `json:"v"`
	Method string `json:"m"`
	Key    string `json:"k"`
}

type ProductPrice struct {
	ID                     string
	ProductID              string
	IsSubscription         bool
	RecurringInterval      string // day, week, month or year.
	RecurringIntervalCount int64  // For example, interval=month and interval_count=3 bills every 3 months.
	Price                  int64
	PriceDecimal           float64
	PriceStr               string
	Currency               string
	Description            string
}

type ProductSummary struct {
	ID          string
	Name        string
	Description string
	ImageURL    string
	Prices      []ProductPrice
}

type SubscriberField struct {
	Field       string `yaml:"field"`
	FieldRegExp string `yaml:"fieldRegExp"`
	ProductID   string `yaml:"productId"`
}

type MutableFields struct {
	System         []string          `yaml:"system"`
	User           []string          `yaml:"user"`
	SubscriberOnly []SubscriberField `yaml:"subscriberOnly"`
}
