// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, the submission window, the spreadsheet and bot-verification
// integrations, scheduling and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tbourn/club-apply-backend/internal/sysutil"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// SubmitConfig controls the per-identity sliding window on submissions.
type SubmitConfig struct {
	Window         time.Duration // SUBMIT_WINDOW
	Max            int           // SUBMIT_MAX attempts per window
	MaxKeys        int           // SUBMIT_MAX_KEYS identities kept in memory
	ClientIPHeader string        // CLIENT_IP_HEADER set by the hosting platform
	TrustForwarded bool          // TRUST_FORWARDED_HEADERS; off when no proxy rewrites X-Forwarded-For
	RedisURL       string        // REDIS_URL; empty keeps windows in memory
}

// SheetsConfig identifies the service account and the target spreadsheet.
type SheetsConfig struct {
	ClientEmail string // GOOGLE_CLIENT_EMAIL
	PrivateKey  string // GOOGLE_PRIVATE_KEY, "\n" escapes allowed
	SheetID     string // GOOGLE_SHEET_ID
	Range       string // GOOGLE_SHEET_RANGE
}

// RecaptchaConfig controls bot verification.
type RecaptchaConfig struct {
	Enabled   bool    // RECAPTCHA_ENABLED; defaults to true when a secret is set
	SecretKey string  // RECAPTCHA_SECRET_KEY
	SiteKey   string  // RECAPTCHA_SITE_KEY (alias NEXT_PUBLIC_RECAPTCHA_SITE_KEY)
	Action    string  // RECAPTCHA_ACTION
	MinScore  float64 // RECAPTCHA_MIN_SCORE in [0..1]
	VerifyURL string  // RECAPTCHA_VERIFY_URL
}

// SchedulerConfig holds the maintenance job schedules.
type SchedulerConfig struct {
	SweepSpec  string        // SCHED_SWEEP_SPEC
	PurgeSpec  string        // SCHED_PURGE_SPEC
	JobTimeout time.Duration // SCHED_JOB_TIMEOUT
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	MaxBodyBytes      int64         // request body cap
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	LogRedact      bool   // scrub PII from access logs
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DBPath string // SQLite path for submission keys

	// Edge rate limiting (token bucket, all routes)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Submission window
	Submit SubmitConfig

	// Outbound calls
	UpstreamTimeout time.Duration

	// Integrations
	Sheets    SheetsConfig
	Recaptcha RecaptchaConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is remembered

	Scheduler SchedulerConfig

	// Observability
	OTEL OTELConfig
}

// LoadDotEnv loads variables from .env files into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	secret := strings.TrimSpace(getenv("RECAPTCHA_SECRET_KEY", ""))

	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(getint("MAX_BODY_BYTES", 64<<10)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		LogRedact:      getbool("LOG_REDACT", true),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),

		// Storage
		DBPath: getenv("DB_PATH", "app.db"),

		// Edge rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		Submit: SubmitConfig{
			Window:         getdur("SUBMIT_WINDOW", 60*time.Second),
			Max:            getint("SUBMIT_MAX", 5),
			MaxKeys:        getint("SUBMIT_MAX_KEYS", 100_000),
			ClientIPHeader: strings.TrimSpace(getenv("CLIENT_IP_HEADER", "")),
			TrustForwarded: getbool("TRUST_FORWARDED_HEADERS", true),
			RedisURL:       strings.TrimSpace(getenv("REDIS_URL", "")),
		},

		UpstreamTimeout: getdur("UPSTREAM_TIMEOUT", 10*time.Second),

		Sheets: SheetsConfig{
			ClientEmail: getenv("GOOGLE_CLIENT_EMAIL", ""),
			PrivateKey:  getenv("GOOGLE_PRIVATE_KEY", ""),
			SheetID:     getenv("GOOGLE_SHEET_ID", ""),
			Range:       getenv("GOOGLE_SHEET_RANGE", "Applications"),
		},
		Recaptcha: RecaptchaConfig{
			Enabled:   getbool("RECAPTCHA_ENABLED", secret != ""),
			SecretKey: secret,
			SiteKey:   strings.TrimSpace(sysutil.FirstNonEmpty(os.Getenv("RECAPTCHA_SITE_KEY"), os.Getenv("NEXT_PUBLIC_RECAPTCHA_SITE_KEY"))),
			Action:    getenv("RECAPTCHA_ACTION", "join_us_submit"),
			MinScore:  getfloat("RECAPTCHA_MIN_SCORE", 0.5),
			VerifyURL: getenv("RECAPTCHA_VERIFY_URL", "https://www.google.com/recaptcha/api/siteverify"),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		Scheduler: SchedulerConfig{
			SweepSpec:  getenv("SCHED_SWEEP_SPEC", "@every 1m"),
			PurgeSpec:  getenv("SCHED_PURGE_SPEC", "@hourly"),
			JobTimeout: getdur("SCHED_JOB_TIMEOUT", 30*time.Second),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "club-apply-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return cfg, errors.New("MAX_BODY_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Submit.Window <= 0 {
		return cfg, errors.New("SUBMIT_WINDOW must be > 0")
	}
	if cfg.Submit.Max < 1 {
		return cfg, errors.New("SUBMIT_MAX must be >= 1")
	}
	if cfg.Submit.MaxKeys < 1 {
		return cfg, errors.New("SUBMIT_MAX_KEYS must be >= 1")
	}
	if cfg.UpstreamTimeout <= 0 {
		return cfg, errors.New("UPSTREAM_TIMEOUT must be > 0")
	}
	if cfg.Recaptcha.MinScore < 0 || cfg.Recaptcha.MinScore > 1 {
		return cfg, errors.New("RECAPTCHA_MIN_SCORE must be in [0,1]")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.Scheduler.JobTimeout <= 0 {
		return cfg, errors.New("SCHED_JOB_TIMEOUT must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	v := os.Getenv(k)
	switch {
	case sysutil.IsTruthy(v):
		return true
	case sysutil.IsFalsy(v):
		return false
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
