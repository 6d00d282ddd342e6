// Package httpapi wires the HTTP transport (Gin) to the application service,
// middleware and route handlers. It centralizes tracing, correlation IDs,
// logging, panic recovery, metrics, CORS, security headers, idempotency and
// the two rate limiters.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/club-apply-backend/docs"
	"github.com/tbourn/club-apply-backend/internal/config"
	"github.com/tbourn/club-apply-backend/internal/http/handlers"
	"github.com/tbourn/club-apply-backend/internal/http/middleware"
	"github.com/tbourn/club-apply-backend/internal/ratelimit"
	"github.com/tbourn/club-apply-backend/internal/services"
)

// Deps are the collaborators the routes need.
type Deps struct {
	Applications *services.ApplicationService
	// Limiter is the submission window. Nil uses an in-memory limiter built
	// from cfg.Submit.
	Limiter ratelimit.Limiter
	// Ready reports whether storage is reachable; nil means always ready.
	Ready func(ctx context.Context) error
}

// RegisterRoutes attaches all middleware and endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID, then client identity
//  3. Access log (redacting unless LOG_REDACT=false)
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and security headers
//  8. Edge token bucket
//
// Submission routes add the idempotency validator and the sliding window, in
// that order, so replays of a completed key bypass the window.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	r.Use(middleware.RequestID())
	r.Use(middleware.ClientIP(cfg.Submit.ClientIPHeader, cfg.Submit.TrustForwarded))

	if cfg.LogRedact {
		masks := []string{"X-API-Key"}
		if cfg.Submit.ClientIPHeader != "" {
			masks = append(masks, cfg.Submit.ClientIPHeader)
		}
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{MaskHeaders: masks}))
	} else {
		r.Use(middleware.Logger())
	}

	r.Use(middleware.Recovery())
	r.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	edge := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst)
	r.Use(edge.Handler())

	r.NoRoute(handlers.NotFound)
	r.NoMethod(handlers.MethodNotAllowed)

	r.GET("/health", health(deps.Ready))

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.NewMemory(ratelimit.Config{Window: cfg.Submit.Window, Limit: cfg.Submit.Max}, cfg.Submit.MaxKeys)
	}

	h := handlers.New(deps.Applications, handlers.RecaptchaSettings{
		Enabled: cfg.Recaptcha.Enabled,
		SiteKey: cfg.Recaptcha.SiteKey,
		Action:  cfg.Recaptcha.Action,
	})

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.GET("/apply/options", h.Options)
		api.POST("/apply/validate", h.ValidateForm)

		submit := api.Group("",
			middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, deps.Applications.Replay),
			middleware.SubmissionWindow(limiter),
		)
		submit.POST("/apply", h.Apply)
		submit.POST("/join-us", h.JoinUs)
	}
}

func corsMiddleware(origins []string) []gin.HandlerFunc {
	conf := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.HeaderIdempotencyKey, "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "Retry-After", middleware.HeaderIdempotencyReplayed, "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		conf.AllowAllOrigins = true
		// Set ACAO even without an Origin header so health checks see it.
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(conf),
		}
	}

	conf.AllowOrigins = origins
	return []gin.HandlerFunc{cors.New(conf)}
}

// health answers liveness, and readiness when ready is set.
//
// @Summary  Health check
// @Tags     ops
// @Produce  json
// @Success  200  {object}  map[string]string
// @Failure  503  {object}  map[string]string
// @Router   /health [get]
func health(ready func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				middleware.LoggerFrom(c).Warn().Err(err).Msg("readiness check failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
