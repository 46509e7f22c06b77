package routes

import (
	"log/slog"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/handlers"
	"github.com/BradenHooton/sentinel/internal/middleware"
	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	"github.com/go-chi/chi/v5"
)

// Handlers groups every HTTP handler served by the API
type Handlers struct {
	Risk      *handlers.RiskHandler
	RateLimit *handlers.RateLimitHandler
	Password  *handlers.PasswordHandler
	Network   *handlers.NetworkHandler
	Admin     *handlers.AdminHandler
	Audit     *handlers.AuditHandler
	Health    *handlers.HealthHandler
}

// Options configures authentication and edge limiting
type Options struct {
	TokenManager      *auth.TokenManager
	TimingDelay       *auth.TimingDelay
	IPConfig          *pkghttp.IPConfig
	EdgeRateLimit     int
	OperatorRateLimit int
	Logger            *slog.Logger
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, h Handlers, opts Options) {
	router.Get("/health", h.Health.Health)

	edge := middleware.DefaultEdgeRateLimit(opts.IPConfig)
	if opts.EdgeRateLimit > 0 {
		edge.RequestsPerMinute = opts.EdgeRateLimit
	}
	operatorLimit := opts.OperatorRateLimit
	if operatorLimit <= 0 {
		operatorLimit = 60
	}

	router.Route("/api/v1", func(r chi.Router) {
		// Public API, called by the authenticating service
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(edge))

			r.Post("/risk/evaluate", h.Risk.Evaluate)
			r.Post("/ratelimit/check", h.RateLimit.Check)
			r.Post("/password/validate", h.Password.Validate)
			r.Get("/password/generate", h.Password.Generate)
			r.Post("/password/history", h.Password.RecordHistory)
			r.Get("/network/{ip}", h.Network.Classify)
			r.Post("/geo/check", h.Network.CheckGeo)
		})

		// Operator routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.AuthMiddleware(opts.TokenManager, opts.TimingDelay, opts.Logger))
			r.Use(auth.RequireRole(models.RoleAdmin))
			r.Use(middleware.RateLimitByOperator(operatorLimit, opts.IPConfig))

			r.Get("/geo-rules", h.Admin.ListGeoRules)
			r.Post("/geo-rules", h.Admin.CreateGeoRule)
			r.Delete("/geo-rules/{id}", h.Admin.DeleteGeoRule)
			r.Post("/lockouts/clear", h.Admin.ClearLockout)
			r.Post("/ratelimit/reset", h.RateLimit.Reset)
			r.Get("/audit-logs", h.Audit.List)
		})
	})
}
