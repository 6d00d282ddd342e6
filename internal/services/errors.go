// Package services holds the application submission pipeline. This file
// centralizes the service-level errors; translating them into HTTP status
// codes and messages is the handler layer's job.
package services

import (
	"errors"
	"strings"

	"github.com/tbourn/club-apply-backend/internal/validation"
)

var (
	// ErrBotRejected indicates that bot verification was required and the
	// token was missing or did not pass.
	ErrBotRejected = errors.New("bot verification failed")

	// ErrMisconfigured is returned when a required integration (spreadsheet
	// credentials, reCAPTCHA secret) is not configured. It wraps the cause.
	ErrMisconfigured = errors.New("server misconfiguration")

	// ErrSubmissionInProgress is returned when another request holding the
	// same submission key has not finished yet.
	ErrSubmissionInProgress = errors.New("submission already in progress")
)

// ValidationError carries every failing field of a rejected application.
type ValidationError struct {
	Errors validation.Errors
}

func (e *ValidationError) Error() string {
	return "invalid application: " + strings.Join(e.Errors.Messages(), "; ")
}
