package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/club-apply-backend/internal/domain"
	"github.com/tbourn/club-apply-backend/internal/recaptcha"
	"github.com/tbourn/club-apply-backend/internal/repo"
	"github.com/tbourn/club-apply-backend/internal/sheets"
	"github.com/tbourn/club-apply-backend/internal/validation"
)

type fakeSheets struct {
	mu   sync.Mutex
	rows [][]any
	err  error
}

func (f *fakeSheets) AppendRow(_ context.Context, row []any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeSheets) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeVerifier struct {
	err    error
	calls  int
	lastIP string
}

func (f *fakeVerifier) Verify(_ context.Context, token, remoteIP string) (*recaptcha.Result, error) {
	f.calls++
	f.lastIP = remoteIP
	if f.err != nil {
		return nil, f.err
	}
	return &recaptcha.Result{Success: true}, nil
}

// singleUseVerifier accepts each token once, like siteverify.
type singleUseVerifier struct {
	mu    sync.Mutex
	seen  map[string]bool
	calls int
}

func (f *singleUseVerifier) Verify(_ context.Context, token, _ string) (*recaptcha.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[token] {
		return nil, fmt.Errorf("%w: timeout-or-duplicate", recaptcha.ErrRejected)
	}
	f.seen[token] = true
	return &recaptcha.Result{Success: true}, nil
}

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

var fixedNow = time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)

func validApp() domain.Application {
	return domain.Application{
		Email:          "jane@example.com",
		FullName:       "Jane Doe",
		StudentID:      "it12345678",
		AcademicYear:   "Year 2",
		Semester:       "Semester 1",
		Specialization: "Computer Science",
		WhatsApp:       "+94771234567",
		LinkedIn:       "https://linkedin.com/in/janedoe",
		GitHub:         "https://github.com/janedoe",
		Reason:         "I want to build things with other students.",
		PreferredTeam:  domain.TeamList{"Dev", "Design"},
		Token:          "tok",
	}
}

func newService(sh sheets.Appender, v recaptcha.Verifier, db *gorm.DB) *ApplicationService {
	return &ApplicationService{
		Sheets:   sh,
		Verifier: v,
		DB:       db,
		Now:      func() time.Time { return fixedNow },
	}
}

func TestSubmit_HappyPath_AppendsFourteenColumnRow(t *testing.T) {
	sh := &fakeSheets{}
	svc := newService(sh, nil, nil)

	res, err := svc.Submit(context.Background(), SubmitRequest{Application: validApp()})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Replayed || !res.SubmittedAt.Equal(fixedNow) {
		t.Fatalf("unexpected result: %+v", res)
	}
	if sh.count() != 1 {
		t.Fatalf("appended %d rows; want 1", sh.count())
	}
	row := sh.rows[0]
	if len(row) != 14 {
		t.Fatalf("row has %d columns; want 14", len(row))
	}
	if row[0] != fixedNow.Format(time.RFC3339Nano) {
		t.Fatalf("timestamp=%v", row[0])
	}
	if row[3] != "IT12345678" {
		t.Fatalf("student id not normalized: %v", row[3])
	}
	if row[11] != domain.OtherClubsNone {
		t.Fatalf("otherClubs=%v; want None", row[11])
	}
	if row[12] != "Dev, Design" {
		t.Fatalf("teams=%v", row[12])
	}
	if row[13] != "Pending" {
		t.Fatalf("status=%v; want Pending", row[13])
	}
}

func TestSubmit_ValidationFailure_NoAppend(t *testing.T) {
	sh := &fakeSheets{}
	v := &fakeVerifier{}
	svc := newService(sh, v, nil)

	app := validApp()
	app.Email = "nope"
	app.Reason = "short"
	_, err := svc.Submit(context.Background(), SubmitRequest{Application: app, RequireBotCheck: true})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err=%v; want *ValidationError", err)
	}
	if got := verr.Errors.Messages(); len(got) != 2 || got[0] != validation.MsgEmailInvalid || got[1] != validation.MsgReasonTooShort {
		t.Fatalf("messages=%v", got)
	}
	if sh.count() != 0 {
		t.Fatal("nothing may be appended when validation fails")
	}
	if v.calls != 0 {
		t.Fatal("bot verification must not run for an invalid application")
	}
}

func TestSubmit_BotCheck(t *testing.T) {
	t.Run("passes", func(t *testing.T) {
		sh := &fakeSheets{}
		v := &fakeVerifier{}
		svc := newService(sh, v, nil)
		_, err := svc.Submit(context.Background(), SubmitRequest{Application: validApp(), RequireBotCheck: true, RemoteIP: "1.2.3.4"})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if v.calls != 1 || v.lastIP != "1.2.3.4" || sh.count() != 1 {
			t.Fatalf("calls=%d ip=%q rows=%d", v.calls, v.lastIP, sh.count())
		}
	})
	t.Run("missing token", func(t *testing.T) {
		sh := &fakeSheets{}
		v := &fakeVerifier{}
		app := validApp()
		app.Token = "  "
		_, err := newService(sh, v, nil).Submit(context.Background(), SubmitRequest{Application: app, RequireBotCheck: true})
		if !errors.Is(err, ErrBotRejected) {
			t.Fatalf("err=%v; want ErrBotRejected", err)
		}
		if v.calls != 0 || sh.count() != 0 {
			t.Fatal("no verification call and no append expected")
		}
	})
	t.Run("rejected", func(t *testing.T) {
		sh := &fakeSheets{}
		v := &fakeVerifier{err: fmt.Errorf("%w: score", recaptcha.ErrRejected)}
		_, err := newService(sh, v, nil).Submit(context.Background(), SubmitRequest{Application: validApp(), RequireBotCheck: true})
		if !errors.Is(err, ErrBotRejected) || sh.count() != 0 {
			t.Fatalf("err=%v rows=%d", err, sh.count())
		}
	})
	t.Run("no verifier", func(t *testing.T) {
		_, err := newService(&fakeSheets{}, nil, nil).Submit(context.Background(), SubmitRequest{Application: validApp(), RequireBotCheck: true})
		if !errors.Is(err, ErrMisconfigured) || !errors.Is(err, recaptcha.ErrMissingSecret) {
			t.Fatalf("err=%v; want ErrMisconfigured wrapping ErrMissingSecret", err)
		}
	})
	t.Run("upstream failure", func(t *testing.T) {
		v := &fakeVerifier{err: errors.New("connection reset")}
		_, err := newService(&fakeSheets{}, v, nil).Submit(context.Background(), SubmitRequest{Application: validApp(), RequireBotCheck: true})
		if err == nil || errors.Is(err, ErrBotRejected) || errors.Is(err, ErrMisconfigured) {
			t.Fatalf("err=%v; want plain upstream error", err)
		}
	})
	t.Run("not required", func(t *testing.T) {
		v := &fakeVerifier{err: recaptcha.ErrRejected}
		app := validApp()
		app.Token = ""
		if _, err := newService(&fakeSheets{}, v, nil).Submit(context.Background(), SubmitRequest{Application: app}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if v.calls != 0 {
			t.Fatal("verifier must not be called when the check is off")
		}
	})
}

func TestSubmit_Misconfigured(t *testing.T) {
	sh := &fakeSheets{err: sheets.ErrNotConfigured}
	_, err := newService(sh, nil, nil).Submit(context.Background(), SubmitRequest{Application: validApp()})
	if !errors.Is(err, ErrMisconfigured) || !errors.Is(err, sheets.ErrNotConfigured) {
		t.Fatalf("err=%v; want ErrMisconfigured wrapping sheets.ErrNotConfigured", err)
	}

	_, err = newService(nil, nil, nil).Submit(context.Background(), SubmitRequest{Application: validApp()})
	if !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("nil appender: err=%v; want ErrMisconfigured", err)
	}
}

func TestSubmit_AppendFailure(t *testing.T) {
	sh := &fakeSheets{err: errors.New("quota exceeded")}
	_, err := newService(sh, nil, nil).Submit(context.Background(), SubmitRequest{Application: validApp()})
	if err == nil || errors.Is(err, ErrMisconfigured) {
		t.Fatalf("err=%v; want upstream error", err)
	}
}

func TestSubmit_KeyReplay(t *testing.T) {
	db := newServiceDB(t)
	sh := &fakeSheets{}
	svc := newService(sh, nil, db)
	req := SubmitRequest{Application: validApp(), Key: "key-1", Identity: "1.2.3.4"}

	first, err := svc.Submit(context.Background(), req)
	if err != nil || first.Replayed {
		t.Fatalf("first: res=%+v err=%v", first, err)
	}
	second, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.Replayed {
		t.Fatal("second submission with the same key must replay")
	}
	if sh.count() != 1 {
		t.Fatalf("appended %d rows; want 1", sh.count())
	}

	replay, err := svc.Replay(context.Background(), "key-1")
	if err != nil || !replay {
		t.Fatalf("Replay=%v err=%v; want true", replay, err)
	}
	if replay, _ := svc.Replay(context.Background(), "other"); replay {
		t.Fatal("unknown key must not replay")
	}
}

func TestSubmit_KeyReplay_SkipsBotCheck(t *testing.T) {
	db := newServiceDB(t)
	sh := &fakeSheets{}
	v := &singleUseVerifier{}
	svc := newService(sh, v, db)
	req := SubmitRequest{Application: validApp(), RequireBotCheck: true, Key: "key-bot", Identity: "1.2.3.4"}

	first, err := svc.Submit(context.Background(), req)
	if err != nil || first.Replayed {
		t.Fatalf("first: res=%+v err=%v", first, err)
	}
	second, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.Replayed || !second.SubmittedAt.Equal(fixedNow) {
		t.Fatalf("second: res=%+v; want replay of the first", second)
	}
	if v.calls != 1 {
		t.Fatalf("verifier calls=%d; want 1", v.calls)
	}
	if sh.count() != 1 {
		t.Fatalf("rows=%d; want 1", sh.count())
	}

	// a fresh key still pays for its own token
	req.Key = "key-bot-2"
	if _, err := svc.Submit(context.Background(), req); !errors.Is(err, ErrBotRejected) {
		t.Fatalf("reused token on a new key: err=%v; want ErrBotRejected", err)
	}
}

func TestSubmit_KeyReleasedOnFailure(t *testing.T) {
	db := newServiceDB(t)
	sh := &fakeSheets{err: errors.New("boom")}
	svc := newService(sh, nil, db)
	req := SubmitRequest{Application: validApp(), Key: "key-2"}

	if _, err := svc.Submit(context.Background(), req); err == nil {
		t.Fatal("expected failure")
	}
	if _, err := repo.GetSubmissionKey(context.Background(), db, "key-2", fixedNow); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("key must be released after a failed append, err=%v", err)
	}

	// the client may retry with the same key
	sh.err = nil
	if _, err := svc.Submit(context.Background(), req); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if sh.count() != 1 {
		t.Fatalf("rows=%d; want 1", sh.count())
	}
}

func TestSubmit_PendingKeyInProgress(t *testing.T) {
	db := newServiceDB(t)
	if _, err := repo.ReserveSubmissionKey(context.Background(), db, "busy", "x", fixedNow, time.Hour); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	sh := &fakeSheets{}
	v := &fakeVerifier{}
	_, err := newService(sh, v, db).Submit(context.Background(), SubmitRequest{Application: validApp(), RequireBotCheck: true, Key: "busy"})
	if !errors.Is(err, ErrSubmissionInProgress) {
		t.Fatalf("err=%v; want ErrSubmissionInProgress", err)
	}
	if v.calls != 0 {
		t.Fatalf("verifier calls=%d; a pending key must not spend the token", v.calls)
	}
	if sh.count() != 0 {
		t.Fatal("nothing may be appended while the key is pending")
	}
	// the other request's reservation is untouched
	if _, err := repo.GetSubmissionKey(context.Background(), db, "busy", fixedNow); err != nil {
		t.Fatalf("pending key must survive, err=%v", err)
	}
}

func TestPurgeExpiredKeys(t *testing.T) {
	db := newServiceDB(t)
	_, _ = repo.ReserveSubmissionKey(context.Background(), db, "old", "x", fixedNow.Add(-48*time.Hour), time.Hour)
	svc := newService(&fakeSheets{}, nil, db)

	n, err := svc.PurgeExpiredKeys(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("purged=%d err=%v; want 1", n, err)
	}
	if n, _ := newService(nil, nil, nil).PurgeExpiredKeys(context.Background()); n != 0 {
		t.Fatal("no db means nothing to purge")
	}
}

func TestValidationError_Message(t *testing.T) {
	e := &ValidationError{Errors: validation.Errors{{Field: "email", Message: "Invalid email"}, {Field: "reason", Message: "Reason is required"}}}
	if e.Error() != "invalid application: Invalid email; Reason is required" {
		t.Fatalf("Error()=%q", e.Error())
	}
}
