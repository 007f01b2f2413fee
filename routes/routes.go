package routes

import (
	"fmt"
	"log"
	"net/http"
	"net/url"

	"signup-middleware/auth"
	"signup-middleware/config"
	"signup-middleware/models"

	"github.com/FusionAuth/go-client/pkg/fusionauth"
	"github.com/gin-gonic/gin"
)

// GetConfigViaRouteOrigin sets the CORS headers that will allow HttpOnly
// cookies to work when requests are made via the web browser, as well as
// automatically retrieving the app config that corresponds to the request
// origin
func GetConfigViaRouteOrigin(c *gin.Context, conf config.Config) (app config.App, success bool) {
	originHeader := c.Request.Header.Get("Origin")
	if originHeader == "" {
		referer := c.Request.Header.Get("Referer")
		if referer == "" {
			c.Data(404, "text/plain", []byte("not found"))
			return
		}
		originHeader = referer
	}
	parsedURL, err := url.Parse(originHeader)
	if err != nil {
		c.Data(404, "text/plain", []byte("not found"))
		return
	}
	origin := parsedURL.Host
	app, ok := conf.GetAppByOrigin(origin)
	if !ok {
		return app, false
	}
	c.Header("Access-Control-Allow-Origin", app.FullDomainURL)
	c.Header("Access-Control-Allow-Credentials", "true")
	return app, true
}

// GetUserFromGin extracts the user via the JWT HttpOnly cookie and will
// set the gin response if there's an error
func GetUserFromGin(c *gin.Context, app config.App) (user fusionauth.User, err error) {
	jwt := GetJWTFromGin(c, app)
	if jwt == "" {
		c.Data(403, "text/plain", []byte("unauthorized"))
		return user, fmt.Errorf("unauthorized")
	}

	// check if the user has a valid jwt
	user, err = auth.GetUserByJWT(app, jwt)
	if err != nil {
		c.Data(403, "text/plain", []byte("unauthorized"))
		return user, fmt.Errorf("unauthorized")
	}

	return user, nil
}

// GetJWTFromGin allows for quick retrieval of a JWT HttpOnly cookie from
// a Gin context
func GetJWTFromGin(c *gin.Context, app config.App) string {
	cookies := c.Request.Cookies()
	for _, cookie := range cookies {
		if cookie.Name == app.JWT.CookieName {
			return cookie.Value
		}
	}
	return ""
}

// LoggedIn allows the frontend to quickly check if the user is logged in
func LoggedIn(c *gin.Context, app config.App) {
	jwt := GetJWTFromGin(c, app)
	resp := models.LoggedInResponse{}

	if jwt == "" {
		c.JSON(200, resp)
		return
	}

	// check if the user has a valid jwt
	user, err := auth.GetUserByJWT(app, jwt)
	if err != nil {
		log.Printf("loggedin: couldn't get user: %v", err.Error())
		c.JSON(200, resp)
		return
	}

	resp.LoggedIn = true
	resp.UserID = user.Id
	resp.UserEmail = user.Email
	resp.UserFullName = user.FullName

	c.JSON(200, resp)
}

// SetJWTCookie writes the HttpOnly session cookie after a successful
// login.
func SetJWTCookie(c *gin.Context, app config.App, jwt string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		app.JWT.CookieName,
		jwt,
		app.JWT.CookieMaxAgeSeconds,
		"/",
		app.JWT.CookieDomain,
		app.JWT.CookieSetSecure,
		true,
	)
}

// ClearJWTCookie expires the session cookie on sign-out.
func ClearJWTCookie(c *gin.Context, app config.App) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		app.JWT.CookieName,
		"",
		-1,
		"/",
		app.JWT.CookieDomain,
		app.JWT.CookieSetSecure,
		true,
	)
}
