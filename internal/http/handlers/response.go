// Package handlers provides HTTP handler implementations for the public API.
//
// Every response uses middleware.Envelope: {"success": true} on success and
// {"success": false, "errors": [...], "code": "...", "request_id": "..."} on
// failure. The errors array is the client contract; code is a stable machine
// code for programmatic handling.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/club-apply-backend/internal/http/middleware"
)

// fail aborts the request with a single-message envelope. Server errors are
// logged with the request-scoped logger; the client only sees msg.
func fail(c *gin.Context, status int, code, msg string, cause error) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Err(cause).
			Int("status", status).
			Str("code", code).
			Msg("api error")
	}
	middleware.AbortWithError(c, status, code, msg)
}

// Fail is the exported variant of fail for router-level handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg, nil) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// NotFound answers unmatched routes.
func NotFound(c *gin.Context) {
	Fail(c, http.StatusNotFound, middleware.CodeNotFound, "Not found")
}

// MethodNotAllowed answers a known path hit with the wrong method.
func MethodNotAllowed(c *gin.Context) {
	Fail(c, http.StatusMethodNotAllowed, middleware.CodeMethodNotAllowed, "Method not allowed")
}
