package auth

import (
	"fmt"
	"log"

	"signup-middleware/config"
	"signup-middleware/errs"
	"signup-middleware/models"

	"github.com/FusionAuth/go-client/pkg/fusionauth"
)

// fixed user-safe wording; raw provider error text is logged, never shown
const (
	MsgInvalidCredential = "Invalid email or password."
	MsgUserDisabled      = "This account is currently disabled."
	MsgTooManyRequests   = "Too many attempts. Wait a few minutes and try again."
	MsgNetworkError      = "We couldn't reach the sign-in service. Check your connection and try again."
	MsgGeneric           = "Something went wrong signing you in. Please try again."
)

// GetOauthRedirectURL builds the callback URL FusionAuth redirects to after
// hosted login.
func GetOauthRedirectURL(app config.App) string {
	return fmt.Sprintf("%v/auth/oauth-cb/%v", app.MiddlewareURL, app.FusionAuthAppID)
}

// GetUserByJWT validates the JWT with FusionAuth and returns the user it
// belongs to.
func GetUserByJWT(app config.App, jwt string) (user fusionauth.User, err error) {
	resp, faErrs, err := app.FusionAuthClient.RetrieveUserUsingJWT(jwt)
	if err != nil {
		return user, fmt.Errorf("failed to retrieve user by jwt: %v", err.Error())
	}
	if faErrs != nil && faErrs.Present() {
		return user, fmt.Errorf("fusionauth rejected jwt: %v", faErrs.Error())
	}
	if resp.StatusCode != 200 {
		return user, fmt.Errorf("fusionauth returned status %v for jwt lookup", resp.StatusCode)
	}
	return resp.User, nil
}

// Login exchanges the oauth authorization code (PKCE) for a token and
// resolves the user behind it.
func Login(app config.App, fa *fusionauth.FusionAuthClient, oauths models.OauthState) (user fusionauth.User, jwt string, err error) {
	tokenResp, oauthErr, err := fa.ExchangeOAuthCodeForAccessTokenUsingPKCE(
		oauths.Code,
		app.FusionAuthOauthClientID,
		app.FusionAuthOauthClientSecret,
		GetOauthRedirectURL(app),
		oauths.Verifier,
	)
	if err != nil {
		return user, "", fmt.Errorf("failed to exchange oauth code: %v", err.Error())
	}
	if oauthErr != nil {
		return user, "", fmt.Errorf("oauth exchange rejected: %v", oauthErr.ErrorDescription)
	}

	jwt = tokenResp.AccessToken
	user, err = GetUserByJWT(app, jwt)
	if err != nil {
		return user, "", fmt.Errorf("failed to resolve user after exchange: %v", err.Error())
	}

	return user, jwt, nil
}

// SignInWithPassword performs a direct email+password login. The returned
// error, if any, is already user-displayable; the provider's raw response
// is only logged.
func SignInWithPassword(app config.App, email string, password string) (user fusionauth.User, token string, err error) {
	resp, faErrs, err := app.FusionAuthClient.Login(fusionauth.LoginRequest{
		BaseLoginRequest: fusionauth.BaseLoginRequest{
			ApplicationId: app.FusionAuthAppID,
		},
		LoginId:  email,
		Password: password,
	})
	if err != nil {
		log.Printf("login network failure for %v: %v", email, err.Error())
		return user, "", errs.NewTimeoutError(MsgNetworkError)
	}
	if faErrs != nil && faErrs.Present() {
		log.Printf("login rejected for %v: %v", email, faErrs.Error())
		return user, "", errs.NewAuthenticationError(MsgGeneric)
	}
	if resp.StatusCode != 200 && resp.StatusCode != 202 {
		log.Printf("login status %v for %v", resp.StatusCode, email)
		return user, "", errs.NewAuthenticationError(UserMessageForLoginStatus(resp.StatusCode))
	}

	return resp.User, resp.Token, nil
}

// UserMessageForLoginStatus maps provider status codes onto the fixed set
// of user-safe messages. Unknown codes collapse to the generic message so
// internal detail never leaks.
func UserMessageForLoginStatus(statusCode int) string {
	switch statusCode {
	case 404:
		return MsgInvalidCredential
	case 409, 410, 423:
		return MsgUserDisabled
	case 429:
		return MsgTooManyRequests
	default:
		return MsgGeneric
	}
}

// SignOut revokes the user's sessions at the provider.
func SignOut(app config.App, refreshToken string) error {
	_, err := app.FusionAuthClient.Logout(true, refreshToken)
	if err != nil {
		return fmt.Errorf("failed to log out: %v", err.Error())
	}
	return nil
}

// SendPasswordReset kicks off the provider's forgot-password flow.
func SendPasswordReset(app config.App, email string) error {
	_, faErrs, err := app.FusionAuthClient.ForgotPassword(fusionauth.ForgotPasswordRequest{
		LoginId:       email,
		ApplicationId: app.FusionAuthAppID,
	})
	if err != nil {
		return fmt.Errorf("failed to send password reset for %v: %v", email, err.Error())
	}
	if faErrs != nil && faErrs.Present() {
		return fmt.Errorf("password reset rejected for %v: %v", email, faErrs.Error())
	}
	return nil
}
