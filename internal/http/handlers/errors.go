package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/club-apply-backend/internal/http/middleware"
	"github.com/tbourn/club-apply-backend/internal/services"
)

// failSubmit maps a pipeline error onto the response contract:
//
//	*services.ValidationError          400 validation_failed, one message per rule
//	services.ErrBotRejected            400 bot_rejected
//	services.ErrSubmissionInProgress   409 conflict
//	services.ErrMisconfigured          500 misconfigured
//	anything else                      500 internal_error
func failSubmit(c *gin.Context, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		middleware.AbortWithErrors(c, http.StatusBadRequest, middleware.CodeValidation, verr.Errors.Messages())
	case errors.Is(err, services.ErrBotRejected):
		fail(c, http.StatusBadRequest, middleware.CodeBotRejected, middleware.MsgBotRejected, err)
	case errors.Is(err, services.ErrSubmissionInProgress):
		fail(c, http.StatusConflict, middleware.CodeConflict, middleware.MsgInProgress, err)
	case errors.Is(err, services.ErrMisconfigured):
		fail(c, http.StatusInternalServerError, middleware.CodeMisconfigured, middleware.MsgMisconfigured, err)
	default:
		fail(c, http.StatusInternalServerError, middleware.CodeInternal, middleware.MsgInternal, err)
	}
}

// failBind answers a body that could not be decoded.
func failBind(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		fail(c, http.StatusRequestEntityTooLarge, middleware.CodeBadRequest, "Request body too large", err)
		return
	}
	fail(c, http.StatusBadRequest, middleware.CodeBadRequest, "Invalid request body", err)
}
