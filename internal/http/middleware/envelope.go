package middleware

import (
	"github.com/gin-gonic/gin"
)

// Stable, machine-readable error codes carried in Envelope.Code.
const (
	CodeValidation       = "validation_failed"
	CodeRateLimited      = "rate_limited"
	CodeBotRejected      = "bot_rejected"
	CodeMisconfigured    = "misconfigured"
	CodeInternal         = "internal_error"
	CodeConflict         = "conflict"
	CodeBadRequest       = "bad_request"
	CodeNotFound         = "not_found"
	CodeMethodNotAllowed = "method_not_allowed"
)

// Client-facing messages. Upstream detail never reaches the client.
const (
	MsgRateLimited   = "Too many requests, please try again later."
	MsgBotRejected   = "Bot verification failed"
	MsgMisconfigured = "Server misconfiguration"
	MsgInternal      = "Internal server error"
	MsgInProgress    = "Submission already in progress"
)

// Envelope is the response body of every endpoint. Success responses carry
// only Success=true; failures carry the messages and a code.
type Envelope struct {
	Success bool `json:"success" example:"false"`
	// Human-readable messages, safe to show to users
	Errors []string `json:"errors,omitempty"`
	// Stable, machine-readable code
	Code string `json:"code,omitempty" example:"validation_failed"`
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// AbortWithError writes a failure envelope with a single message and stops
// the chain.
func AbortWithError(c *gin.Context, status int, code, msg string) {
	AbortWithErrors(c, status, code, []string{msg})
}

// AbortWithErrors writes a failure envelope with msgs and stops the chain.
func AbortWithErrors(c *gin.Context, status int, code string, msgs []string) {
	if msgs == nil {
		msgs = []string{}
	}
	c.AbortWithStatusJSON(status, Envelope{
		Success:   false,
		Errors:    msgs,
		Code:      code,
		RequestID: RequestIDFrom(c),
	})
}
