package helpers

import (
	"signup-middleware/errs"

	"github.com/gin-gonic/gin"
)

const (
	NotFound                  = "not found"
	ServerError               = "server error"
	OK                        = "OK"
	AccessControlAllowMethods = "Access-Control-Allow-Methods"
	CORSMethodsOptPost        = "OPTIONS, POST"
	CORSMethodsOptGet         = "OPTIONS, GET"
	CORSMethodsOptGetPut      = "OPTIONS, GET, PUT"
)

// Simple404 sets a quick and easy 404 gin response
func Simple404(c *gin.Context) {
	c.Data(404, "text/plain", []byte(NotFound))
}

// Simple500 sets a quick and easy 500 gin response
func Simple500(c *gin.Context) {
	c.Data(500, "text/plain", []byte(ServerError))
}

// Simple200OK sets a quick and easy gin response, typically used for Options
// preflight CORS requests
func Simple200OK(c *gin.Context) {
	c.Data(200, "text/plain", []byte(OK))
}

// SetCORSMethods sets Options and Post headers for CORS
func SetCORSMethods(c *gin.Context) {
	c.Header(AccessControlAllowMethods, CORSMethodsOptPost)
}

// SetCORSMethodsGet sets Options and Get headers for CORS
func SetCORSMethodsGet(c *gin.Context) {
	c.Header(AccessControlAllowMethods, CORSMethodsOptGet)
}

// SetCORSMethodsGetPut sets Options, Get and Put headers for CORS
func SetCORSMethodsGetPut(c *gin.Context) {
	c.Header(AccessControlAllowMethods, CORSMethodsOptGetPut)
}

// JSONError writes the error with a status that matches its kind. Messages
// in the known kinds are already user-safe; anything unrecognized collapses
// to a plain 500 so internal detail doesn't leak.
func JSONError(c *gin.Context, err error) {
	status := 500
	msg := ServerError
	switch err.(type) {
	case *errs.ValidationError:
		status = 400
		msg = err.Error()
	case *errs.AuthenticationError:
		status = 403
		msg = err.Error()
	case *errs.NotFoundError:
		status = 404
		msg = err.Error()
	case *errs.TimeoutError:
		status = 504
		msg = err.Error()
	case *errs.PartialFailureError:
		// the money side succeeded; report it as such with the user-safe note
		c.JSON(200, gin.H{"success": true, "warning": err.Error()})
		return
	}
	c.JSON(status, gin.H{"success": false, "error": msg})
}
