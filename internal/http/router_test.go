package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/club-apply-backend/internal/config"
	"github.com/tbourn/club-apply-backend/internal/http/middleware"
	"github.com/tbourn/club-apply-backend/internal/ratelimit"
	"github.com/tbourn/club-apply-backend/internal/repo"
	"github.com/tbourn/club-apply-backend/internal/services"
)

// --- fake spreadsheet ---
type fakeSheets struct {
	mu   sync.Mutex
	rows int
}

func (f *fakeSheets) AppendRow(context.Context, []any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows++
	return nil
}

func (f *fakeSheets) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows
}

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:  "/api",
		RateRPS:      1000,
		RateBurst:    1000,
		MaxBodyBytes: 64 << 10,
		CORS:         config.CORSConfig{AllowedOrigins: nil},
		Security:     config.SecurityConfig{EnableHSTS: false},
		OTEL:         config.OTELConfig{ServiceName: "test-svc"},
		Submit:       config.SubmitConfig{Window: time.Minute, Max: 5, MaxKeys: 100, TrustForwarded: true},
	}
}

type testServer struct {
	router *gin.Engine
	sheets *fakeSheets
	db     *gorm.DB
}

func newTestServer(t *testing.T, cfg config.Config, ready func(context.Context) error) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{router: gin.New(), sheets: &fakeSheets{}, db: newTestDB(t)}
	svc := &services.ApplicationService{Sheets: ts.sheets, DB: ts.db}
	RegisterRoutes(ts.router, Deps{Applications: svc, Ready: ready}, cfg)
	return ts
}

func (ts *testServer) do(method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func application() map[string]any {
	return map[string]any{
		"email":          "jane@example.com",
		"fullName":       "Jane Doe",
		"studentId":      "IT20230001",
		"academicYear":   "Year 2",
		"semester":       "Semester 1",
		"specialization": "Computer Science",
		"whatsapp":       "+94771234567",
		"linkedin":       "https://linkedin.com/in/janedoe",
		"github":         "https://github.com/janedoe",
		"reason":         "I want to contribute to open source.",
		"preferredTeam":  []string{"Dev"},
	}
}

func envelope(t *testing.T, w *httptest.ResponseRecorder) middleware.Envelope {
	t.Helper()
	var env middleware.Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("json: %v body=%s", err, w.Body.String())
	}
	return env
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	w := ts.do(http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header")
	}

	w = ts.do(http.MethodGet, "/metrics", nil, nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	w = ts.do(http.MethodGet, "/nope", nil, nil)
	if w.Code != http.StatusNotFound || envelope(t, w).Code != middleware.CodeNotFound {
		t.Fatalf("GET /nope = %d %s", w.Code, w.Body.String())
	}

	w = ts.do(http.MethodPost, "/health", nil, nil)
	if w.Code != http.StatusMethodNotAllowed || envelope(t, w).Code != middleware.CodeMethodNotAllowed {
		t.Fatalf("POST /health = %d %s", w.Code, w.Body.String())
	}

	w = ts.do(http.MethodGet, "/api/apply", nil, nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /api/apply = %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.CORS.AllowedOrigins = []string{"http://example.com"}
	ts := newTestServer(t, cfg, nil)

	w := ts.do(http.MethodGet, "/health", nil, map[string]string{"Origin": "http://example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}

	w = ts.do(http.MethodGet, "/health", nil, map[string]string{"Origin": "http://evil.test"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected ACAO for foreign origin: %q", got)
	}
}

func TestRegisterRoutes_Readiness(t *testing.T) {
	ts := newTestServer(t, testConfig(), func(context.Context) error { return errors.New("db down") })

	w := ts.do(http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("GET /health = %d, want 503", w.Code)
	}
}

func TestRegisterRoutes_Swagger(t *testing.T) {
	cfg := testConfig()
	ts := newTestServer(t, cfg, nil)
	if w := ts.do(http.MethodGet, "/swagger/doc.json", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger disabled: got %d", w.Code)
	}

	cfg.SwaggerEnabled = true
	ts = newTestServer(t, cfg, nil)
	w := ts.do(http.MethodGet, "/swagger/doc.json", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("swagger enabled: got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"/apply"`)) {
		t.Fatalf("doc.json missing /apply: %s", w.Body.String())
	}
}

func TestRegisterRoutes_SubmitWindow_SixthRejected(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	for i := 1; i <= 5; i++ {
		w := ts.do(http.MethodPost, "/api/apply", application(), nil)
		if w.Code != http.StatusOK {
			t.Fatalf("attempt %d: status=%d body=%s", i, w.Code, w.Body.String())
		}
		if w.Body.String() != `{"success":true}` {
			t.Fatalf("attempt %d: body=%s", i, w.Body.String())
		}
	}

	w := ts.do(http.MethodPost, "/api/apply", application(), nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("6th attempt: status=%d body=%s", w.Code, w.Body.String())
	}
	ra, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || ra < 1 || ra > 60 {
		t.Fatalf("Retry-After=%q", w.Header().Get("Retry-After"))
	}
	env := envelope(t, w)
	if env.Success || env.Code != middleware.CodeRateLimited || len(env.Errors) != 1 || env.Errors[0] != middleware.MsgRateLimited {
		t.Fatalf("env=%+v", env)
	}
	if n := ts.sheets.count(); n != 5 {
		t.Fatalf("rows=%d want 5", n)
	}

	// Another client is unaffected.
	w = ts.do(http.MethodPost, "/api/join-us", application(), map[string]string{"X-Forwarded-For": "203.0.113.9"})
	if w.Code == http.StatusTooManyRequests {
		t.Fatalf("independent identity was limited")
	}
}

func TestRegisterRoutes_ValidateAndOptions_DoNotConsumeWindow(t *testing.T) {
	cfg := testConfig()
	cfg.Submit.Max = 1
	ts := newTestServer(t, cfg, nil)

	for i := 0; i < 3; i++ {
		if w := ts.do(http.MethodPost, "/api/apply/validate", map[string]any{"email": "x"}, nil); w.Code != http.StatusOK {
			t.Fatalf("validate: %d %s", w.Code, w.Body.String())
		}
		if w := ts.do(http.MethodGet, "/api/apply/options", nil, nil); w.Code != http.StatusOK {
			t.Fatalf("options: %d", w.Code)
		}
	}

	if w := ts.do(http.MethodPost, "/api/apply", application(), nil); w.Code != http.StatusOK {
		t.Fatalf("first submit: %d %s", w.Code, w.Body.String())
	}
	if w := ts.do(http.MethodPost, "/api/apply", application(), nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second submit: %d", w.Code)
	}
}

func TestRegisterRoutes_IdempotentReplay_BypassesWindow(t *testing.T) {
	cfg := testConfig()
	cfg.Submit.Max = 1
	ts := newTestServer(t, cfg, nil)
	hdr := map[string]string{middleware.HeaderIdempotencyKey: "form-session-0001"}

	w := ts.do(http.MethodPost, "/api/apply", application(), hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("first: %d %s", w.Code, w.Body.String())
	}

	w = ts.do(http.MethodPost, "/api/apply", application(), hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("replay: %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("expected replay header")
	}
	if n := ts.sheets.count(); n != 1 {
		t.Fatalf("rows=%d want 1", n)
	}
}

func TestRegisterRoutes_CustomLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	limiter := ratelimit.NewMemory(ratelimit.Config{Window: time.Minute, Limit: 2}, 0)
	svc := &services.ApplicationService{Sheets: &fakeSheets{}, DB: newTestDB(t)}
	RegisterRoutes(r, Deps{Applications: svc, Limiter: limiter}, testConfig())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		raw, _ := json.Marshal(application())
		req := httptest.NewRequest(http.MethodPost, "/api/apply", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes=%v", codes)
	}
}

func TestRegisterRoutes_BodyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBodyBytes = 32
	ts := newTestServer(t, cfg, nil)

	w := ts.do(http.MethodPost, "/api/apply/validate", application(), nil)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}
