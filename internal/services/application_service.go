package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/club-apply-backend/internal/domain"
	"github.com/tbourn/club-apply-backend/internal/recaptcha"
	"github.com/tbourn/club-apply-backend/internal/repo"
	"github.com/tbourn/club-apply-backend/internal/sheets"
	"github.com/tbourn/club-apply-backend/internal/validation"
)

const (
	defaultUpstreamTimeout = 10 * time.Second
	defaultKeyTTL          = 24 * time.Hour
)

// ApplicationService validates, verifies and persists membership
// applications.
type ApplicationService struct {
	// Sheets receives one row per accepted application.
	Sheets sheets.Appender
	// Verifier checks bot-verification tokens. Nil means no secret is
	// configured; a submission that requires verification then fails as
	// misconfigured.
	Verifier recaptcha.Verifier
	// DB stores submission keys. Nil disables key handling.
	DB *gorm.DB

	// UpstreamTimeout bounds each outbound call.
	UpstreamTimeout time.Duration
	// KeyTTL is how long a submission key is remembered.
	KeyTTL time.Duration

	// Now is the clock; nil uses time.Now.
	Now func() time.Time
}

// SubmitRequest is one submission attempt.
type SubmitRequest struct {
	Application domain.Application
	// RequireBotCheck makes the token mandatory.
	RequireBotCheck bool
	// RemoteIP is forwarded to bot verification.
	RemoteIP string
	// Identity is the rate-limit identity, recorded with the submission key.
	Identity string
	// Key is the optional client submission key.
	Key string
}

// SubmitResult describes an accepted submission.
type SubmitResult struct {
	SubmittedAt time.Time
	// Replayed is true when the key had already been completed and nothing
	// was written.
	Replayed bool
}

// step is one stage of the submission pipeline.
type step struct {
	name string
	run  func(ctx context.Context, st *submitState) error
}

type submitState struct {
	req      SubmitRequest
	app      domain.Application
	now      time.Time
	reserved bool
	result   SubmitResult
	done     bool
}

// Submit runs the pipeline: normalize and validate, look up the submission
// key, verify the bot token when required, reserve the key, append the row,
// complete the key. Nothing is written unless every earlier step passed. A
// key that already completed is answered before the token is spent.
//
// Errors: *ValidationError, ErrBotRejected, ErrMisconfigured (wrapping the
// cause), ErrSubmissionInProgress, or an upstream failure.
func (s *ApplicationService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	tr := otel.Tracer("services/ApplicationService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.Bool("bot_check", req.RequireBotCheck),
			attribute.Bool("has_key", req.Key != ""),
		),
	)
	defer span.End()

	st := &submitState{req: req, now: s.now().UTC()}
	steps := []step{
		{"validate", s.validate},
		{"lookup", s.lookup},
		{"verify", s.verify},
		{"reserve", s.reserve},
		{"persist", s.persist},
		{"complete", s.complete},
	}

	for _, p := range steps {
		if st.done {
			break
		}
		if err := s.runStep(ctx, tr, p, st); err != nil {
			if st.reserved {
				s.release(ctx, st.req.Key)
			}
			applications.WithLabelValues(outcomeOf(err)).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, p.name)
			return nil, err
		}
	}

	if st.result.Replayed {
		applications.WithLabelValues(OutcomeReplayed).Inc()
	} else {
		applications.WithLabelValues(OutcomeAccepted).Inc()
	}
	return &st.result, nil
}

func (s *ApplicationService) runStep(ctx context.Context, tr trace.Tracer, p step, st *submitState) error {
	ctx, span := tr.Start(ctx, p.name)
	defer span.End()
	if err := p.run(ctx, st); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *ApplicationService) validate(_ context.Context, st *submitState) error {
	st.app = validation.Normalize(st.req.Application)
	if errs := validation.ValidateApplication(st.app); len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// lookup answers a completed key as a replay and a pending one as in
// progress. reserve repeats the check atomically.
func (s *ApplicationService) lookup(ctx context.Context, st *submitState) error {
	if s.DB == nil || st.req.Key == "" {
		return nil
	}
	rec, err := repo.GetSubmissionKey(ctx, s.DB, st.req.Key, st.now)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up submission key: %w", err)
	}
	if !rec.Completed() {
		return ErrSubmissionInProgress
	}
	st.result = SubmitResult{SubmittedAt: timeOr(rec.CompletedAt, rec.CreatedAt), Replayed: true}
	st.done = true
	return nil
}

func (s *ApplicationService) verify(ctx context.Context, st *submitState) error {
	if !st.req.RequireBotCheck {
		return nil
	}
	if s.Verifier == nil {
		return fmt.Errorf("%w: %w", ErrMisconfigured, recaptcha.ErrMissingSecret)
	}
	if strings.TrimSpace(st.app.Token) == "" {
		return ErrBotRejected
	}

	cctx, cancel := context.WithTimeout(ctx, s.upstreamTimeout())
	defer cancel()
	start := time.Now()
	_, err := s.Verifier.Verify(cctx, st.app.Token, st.req.RemoteIP)
	observeUpstream("recaptcha", start)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, recaptcha.ErrRejected):
		zerolog.Ctx(ctx).Info().Err(err).Msg("bot verification rejected")
		return ErrBotRejected
	case errors.Is(err, recaptcha.ErrMissingSecret):
		return fmt.Errorf("%w: %w", ErrMisconfigured, err)
	default:
		return fmt.Errorf("verify token: %w", err)
	}
}

func (s *ApplicationService) reserve(ctx context.Context, st *submitState) error {
	if s.DB == nil || st.req.Key == "" {
		return nil
	}
	_, err := repo.ReserveSubmissionKey(ctx, s.DB, st.req.Key, st.req.Identity, st.now, s.keyTTL())
	if err == nil {
		st.reserved = true
		return nil
	}
	if !errors.Is(err, repo.ErrDuplicate) {
		return fmt.Errorf("reserve submission key: %w", err)
	}

	rec, gerr := repo.GetSubmissionKey(ctx, s.DB, st.req.Key, st.now)
	if gerr == nil && rec.Completed() {
		st.result = SubmitResult{SubmittedAt: timeOr(rec.CompletedAt, rec.CreatedAt), Replayed: true}
		st.done = true
		return nil
	}
	return ErrSubmissionInProgress
}

func (s *ApplicationService) persist(ctx context.Context, st *submitState) error {
	if s.Sheets == nil {
		return fmt.Errorf("%w: %w", ErrMisconfigured, sheets.ErrNotConfigured)
	}

	cctx, cancel := context.WithTimeout(ctx, s.upstreamTimeout())
	defer cancel()
	start := time.Now()
	err := s.Sheets.AppendRow(cctx, st.app.Row(st.now))
	observeUpstream("sheets", start)

	if err != nil {
		if errors.Is(err, sheets.ErrNotConfigured) {
			return fmt.Errorf("%w: %w", ErrMisconfigured, err)
		}
		return fmt.Errorf("append row: %w", err)
	}
	st.result = SubmitResult{SubmittedAt: st.now}
	return nil
}

// complete marks the key. The row is already written, so a failure here is
// logged and not returned.
func (s *ApplicationService) complete(ctx context.Context, st *submitState) error {
	if !st.reserved {
		return nil
	}
	if err := repo.CompleteSubmissionKey(ctx, s.DB, st.req.Key, st.now); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("complete submission key")
	}
	st.reserved = false
	return nil
}

func (s *ApplicationService) release(ctx context.Context, key string) {
	// The request context may already be done.
	ctx = context.WithoutCancel(ctx)
	if err := repo.ReleaseSubmissionKey(ctx, s.DB, key); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("release submission key")
	}
}

// Replay reports whether key belongs to an already completed submission.
func (s *ApplicationService) Replay(ctx context.Context, key string) (bool, error) {
	if s.DB == nil || key == "" {
		return false, nil
	}
	rec, err := repo.GetSubmissionKey(ctx, s.DB, key, s.now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Completed(), nil
}

// PurgeExpiredKeys removes submission keys past their TTL.
func (s *ApplicationService) PurgeExpiredKeys(ctx context.Context) (int64, error) {
	if s.DB == nil {
		return 0, nil
	}
	return repo.PurgeExpiredSubmissionKeys(ctx, s.DB, s.now().UTC())
}

func (s *ApplicationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *ApplicationService) upstreamTimeout() time.Duration {
	if s.UpstreamTimeout > 0 {
		return s.UpstreamTimeout
	}
	return defaultUpstreamTimeout
}

func (s *ApplicationService) keyTTL() time.Duration {
	if s.KeyTTL > 0 {
		return s.KeyTTL
	}
	return defaultKeyTTL
}

func outcomeOf(err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return OutcomeInvalid
	case errors.Is(err, ErrBotRejected):
		return OutcomeBotRejected
	case errors.Is(err, ErrMisconfigured):
		return OutcomeMisconfigured
	case errors.Is(err, ErrSubmissionInProgress):
		return OutcomeInProgress
	default:
		return OutcomeFailed
	}
}

func timeOr(t *time.Time, fallback time.Time) time.Time {
	if t != nil {
		return *t
	}
	return fallback
}
