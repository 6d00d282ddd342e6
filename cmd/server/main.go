// Command server runs the club membership application backend.
//
//	@title						Club Apply API
//	@version					1.0
//	@description				Membership application submission: validation, rate limiting, bot verification and spreadsheet append.
//	@BasePath					/api
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/club-apply-backend/internal/config"
	httpapi "github.com/tbourn/club-apply-backend/internal/http"
	"github.com/tbourn/club-apply-backend/internal/observability"
	"github.com/tbourn/club-apply-backend/internal/ratelimit"
	"github.com/tbourn/club-apply-backend/internal/recaptcha"
	"github.com/tbourn/club-apply-backend/internal/repo"
	"github.com/tbourn/club-apply-backend/internal/scheduler"
	"github.com/tbourn/club-apply-backend/internal/services"
	"github.com/tbourn/club-apply-backend/internal/sheets"
	"github.com/tbourn/club-apply-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal().Err(err).Msg("load .env")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	setupLogging(cfg)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	limiter, closeLimiter := newLimiter(ctx, cfg.Submit)

	svc := &services.ApplicationService{
		DB:              db,
		UpstreamTimeout: cfg.UpstreamTimeout,
		KeyTTL:          cfg.IdempotencyTTL,
	}
	creds := sheets.Credentials{
		ClientEmail:   cfg.Sheets.ClientEmail,
		PrivateKey:    cfg.Sheets.PrivateKey,
		SpreadsheetID: cfg.Sheets.SheetID,
		Range:         cfg.Sheets.Range,
	}
	if creds.Configured() {
		svc.Sheets = sheets.New(creds)
	} else {
		log.Warn().Msg("spreadsheet credentials missing; submissions will fail as misconfigured")
	}
	if cfg.Recaptcha.SecretKey != "" {
		svc.Verifier = recaptcha.New(cfg.Recaptcha.SecretKey,
			recaptcha.WithVerifyURL(cfg.Recaptcha.VerifyURL),
			recaptcha.WithAction(cfg.Recaptcha.Action),
			recaptcha.WithMinScore(cfg.Recaptcha.MinScore),
		)
	} else if cfg.Recaptcha.Enabled {
		log.Warn().Msg("bot verification enabled without a secret; submissions will fail as misconfigured")
	}

	jobs := scheduler.New(cfg.Scheduler.JobTimeout)
	if sw, ok := limiter.(ratelimit.Sweeper); ok {
		if err := jobs.Add(scheduler.SweepLimiter(sw, cfg.Scheduler.SweepSpec)); err != nil {
			log.Fatal().Err(err).Msg("schedule limiter sweep")
		}
	}
	if err := jobs.Add(scheduler.PurgeKeys(svc, cfg.Scheduler.PurgeSpec)); err != nil {
		log.Fatal().Err(err).Msg("schedule key purge")
	}
	jobs.Start()

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Applications: svc,
		Limiter:      limiter,
		Ready: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}, cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := jobs.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown")
	}
	if err := closeLimiter(); err != nil {
		log.Error().Err(err).Msg("limiter close")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	log.Info().Msg("server exited")
}

func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	lvl := sysutil.SetLogLevel(cfg.LogLevel)

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	log.Logger = log.Logger.With().Str("service", cfg.OTEL.ServiceName).Logger()
	zerolog.DefaultContextLogger = &log.Logger

	log.Debug().Stringer("level", lvl).Msg("logging configured")
}

// newLimiter builds the submission window. A Redis backend is used when
// REDIS_URL is set and reachable; otherwise the window lives in process.
func newLimiter(ctx context.Context, sc config.SubmitConfig) (ratelimit.Limiter, func() error) {
	rc := ratelimit.Config{Window: sc.Window, Limit: sc.Max}
	noClose := func() error { return nil }

	if sc.RedisURL != "" {
		rl, err := ratelimit.NewRedisFromURL(sc.RedisURL, rc)
		if err != nil {
			log.Fatal().Err(err).Msg("parse REDIS_URL")
		}
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		err = rl.Ping(pingCtx)
		if err == nil {
			log.Info().Msg("submission window backed by redis")
			return rl, rl.Close
		}
		log.Warn().Err(err).Msg("redis unreachable; using in-memory submission window")
		_ = rl.Close()
	}

	return ratelimit.NewMemory(rc, sc.MaxKeys), noClose
}
