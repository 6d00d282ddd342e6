// Application HTTP handlers.
//
// This file exposes the membership application endpoints:
//   - POST /apply            (submit; bot check when enabled)
//   - POST /join-us          (submit; bot check always)
//   - POST /apply/validate   (inline form validation, nothing persisted)
//   - GET  /apply/options    (option sets and bot-check settings for the form)
//
// Both submit routes run the same pipeline; they differ only in whether the
// bot-verification step is mandatory.

package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/club-apply-backend/internal/domain"
	"github.com/tbourn/club-apply-backend/internal/http/middleware"
	"github.com/tbourn/club-apply-backend/internal/services"
	"github.com/tbourn/club-apply-backend/internal/validation"
)

// ApplicationService runs the submission pipeline.
type ApplicationService interface {
	Submit(ctx context.Context, req services.SubmitRequest) (*services.SubmitResult, error)
}

// RecaptchaSettings is the public part of the bot-verification setup.
type RecaptchaSettings struct {
	// Enabled makes the token mandatory on /apply.
	Enabled bool   `json:"enabled"`
	SiteKey string `json:"siteKey,omitempty" example:"6Lc_site_key"`
	Action  string `json:"action" example:"join_us_submit"`
}

// Handlers groups the application endpoints.
type Handlers struct {
	apps      ApplicationService
	recaptcha RecaptchaSettings
}

// New constructs Handlers bound to the given service.
func New(apps ApplicationService, rc RecaptchaSettings) *Handlers {
	return &Handlers{apps: apps, recaptcha: rc}
}

//
// DTOs
//

// ValidateResponse is the result of inline form validation.
type ValidateResponse struct {
	Success bool     `json:"success" example:"false"`
	Errors  []string `json:"errors"`
	// FieldErrors maps a form field to its message; absent fields are valid.
	FieldErrors validation.FieldErrors `json:"fieldErrors"`
	// Application is the normalized record the form would submit. Present
	// only when the form is valid.
	Application *domain.Application `json:"application,omitempty"`
}

// OptionsResponse lists the closed option sets accepted by the server.
type OptionsResponse struct {
	AcademicYears   []string          `json:"academicYears"`
	Semesters       []string          `json:"semesters"`
	Specializations []string          `json:"specializations"`
	Teams           []string          `json:"teams"`
	Recaptcha       RecaptchaSettings `json:"recaptcha"`
}

//
// Handlers
//

// Apply godoc
// @Summary      Submit a membership application
// @Description  Validates the application, verifies the bot token when verification is enabled, and appends one row to the spreadsheet. Limited per client by a sliding window.
// @Tags         applications
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header  string              false  "Client submission key; a completed key is replayed without a second row"
// @Param        body             body    domain.Application  true   "Application"
// @Success      200  {object}  middleware.Envelope
// @Failure      400  {object}  middleware.Envelope
// @Failure      409  {object}  middleware.Envelope
// @Failure      429  {object}  middleware.Envelope
// @Failure      500  {object}  middleware.Envelope
// @Router       /apply [post]
func (h *Handlers) Apply(c *gin.Context) {
	h.submit(c, h.recaptcha.Enabled)
}

// JoinUs godoc
// @Summary      Submit a membership application with mandatory bot verification
// @Tags         applications
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header  string              false  "Client submission key"
// @Param        body             body    domain.Application  true   "Application including token"
// @Success      200  {object}  middleware.Envelope
// @Failure      400  {object}  middleware.Envelope
// @Failure      409  {object}  middleware.Envelope
// @Failure      429  {object}  middleware.Envelope
// @Failure      500  {object}  middleware.Envelope
// @Router       /join-us [post]
func (h *Handlers) JoinUs(c *gin.Context) {
	h.submit(c, true)
}

func (h *Handlers) submit(c *gin.Context, requireBotCheck bool) {
	var app domain.Application
	if err := c.ShouldBindJSON(&app); err != nil {
		failBind(c, err)
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	id := middleware.ClientIdentity(c)
	remoteIP := id
	if remoteIP == middleware.UnknownIdentity {
		remoteIP = ""
	}
	res, err := h.apps.Submit(c.Request.Context(), services.SubmitRequest{
		Application:     app,
		RequireBotCheck: requireBotCheck,
		RemoteIP:        remoteIP,
		Identity:        id,
		Key:             key,
	})
	if err != nil {
		failSubmit(c, err)
		return
	}

	if res.Replayed {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
	}
	ok(c, http.StatusOK, middleware.Envelope{Success: true})
}

// ValidateForm godoc
// @Summary      Validate form state
// @Description  Runs the form rules on the browser form state and returns per-field messages. Nothing is stored and the submission window is not consumed.
// @Tags         applications
// @Accept       json
// @Produce      json
// @Param        body  body      validation.Form  true  "Form state"
// @Success      200   {object}  ValidateResponse
// @Failure      400   {object}  middleware.Envelope
// @Router       /apply/validate [post]
func (h *Handlers) ValidateForm(c *gin.Context) {
	var form validation.Form
	if err := c.ShouldBindJSON(&form); err != nil {
		failBind(c, err)
		return
	}

	errs := validation.CheckForm(form)
	resp := ValidateResponse{
		Success:     len(errs) == 0,
		Errors:      errs.Messages(),
		FieldErrors: errs.Map(),
	}
	if resp.Success {
		app := form.Application()
		resp.Application = &app
	}
	ok(c, http.StatusOK, resp)
}

// Options godoc
// @Summary      Form options
// @Description  Academic years, semesters, specializations and teams accepted by the server, plus the public bot-verification settings.
// @Tags         applications
// @Produce      json
// @Success      200  {object}  OptionsResponse
// @Router       /apply/options [get]
func (h *Handlers) Options(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=300")
	ok(c, http.StatusOK, OptionsResponse{
		AcademicYears:   domain.AcademicYears,
		Semesters:       domain.Semesters,
		Specializations: domain.Specializations,
		Teams:           domain.Teams,
		Recaptcha:       h.recaptcha,
	})
}
