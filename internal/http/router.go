package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/school-crm/internal/config"
	"github.com/tendant/school-crm/internal/http/features/billing"
	"github.com/tendant/school-crm/internal/http/features/me"
	"github.com/tendant/school-crm/internal/http/features/mfa"
	"github.com/tendant/school-crm/internal/http/features/operators"
	"github.com/tendant/school-crm/internal/http/features/password"
	"github.com/tendant/school-crm/internal/http/features/schoolapi"
	"github.com/tendant/school-crm/internal/http/features/session"
	"github.com/tendant/school-crm/internal/http/features/tenants"
	"github.com/tendant/school-crm/internal/http/features/tickets"
	"github.com/tendant/school-crm/internal/http/middleware"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/internal/platform"
	"github.com/tendant/school-crm/internal/tenantdb"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
	"github.com/tendant/school-crm/pkg/repository"
)

// Pinger checks that a database answers.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger          *slog.Logger
	PlatformDB      Pinger
	PasswordService *auth.PasswordService
	SessionService  *auth.SessionService
	MFAService      *auth.MFAService
	TenantService   *platform.TenantService
	TenantRouter    *tenantdb.Router
	PlatformUsers   *repository.PlatformUsersRepository
	Subscriptions   *repository.SubscriptionsRepository
	Tickets         *repository.TicketsRepository
	Audit           *repository.AuditRepository
	RootDomain      string
	CORSOrigins     []string
	CookieConfig    httputil.CookieConfig
	RateLimitConfig config.RateLimitConfig
	SecurityHeaders config.SecurityHeadersConfig
	Validation      config.ValidationConfig
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	useGlobalMiddleware(r, cfg)

	r.Get("/health", health(cfg.PlatformDB))
	r.Handle("/metrics", promhttp.Handler())

	// Create rate limiters for different endpoint types
	rateLimiters := middleware.CreateRateLimiters(cfg.RateLimitConfig, cfg.Logger)
	authn := middleware.Auth(cfg.SessionService)
	maxPage := cfg.Validation.MaxPageSize

	loginHandler := password.NewHandler(password.Config{
		Logger:       cfg.Logger,
		Passwords:    cfg.PasswordService,
		TOTP:         cfg.MFAService,
		Sessions:     cfg.SessionService,
		Schools:      cfg.TenantRouter,
		CookieConfig: cfg.CookieConfig,
		RootDomain:   cfg.RootDomain,
	})
	sessionHandler := session.NewHandler(cfg.Logger, cfg.SessionService, cfg.CookieConfig)
	meHandler := me.NewHandler(cfg.Logger, cfg.PasswordService, cfg.TenantRouter)

	// Shared session routes
	r.Route("/v1/auth", func(r chi.Router) {
		r.With(rateLimiters[middleware.LimitRefresh]).Post("/refresh", sessionHandler.Refresh)
		r.Post("/logout", sessionHandler.Logout)
		r.With(authn).Post("/logout/all", sessionHandler.LogoutAll)
	})
	r.With(authn, rateLimiters[middleware.LimitAPI]).Get("/v1/me", meHandler.GetMe)

	// Platform operators
	mfaHandler := mfa.NewHandler(cfg.Logger, cfg.MFAService, cfg.PasswordService, cfg.SessionService)
	tenantsHandler := tenants.NewHandler(cfg.Logger, cfg.TenantService, cfg.TenantRouter, cfg.Audit, maxPage)
	billingHandler := billing.NewHandler(cfg.Logger, cfg.Subscriptions, cfg.TenantService, cfg.Audit)
	ticketsHandler := tickets.NewHandler(cfg.Logger, cfg.Tickets)
	operatorsHandler := operators.NewHandler(cfg.Logger, cfg.PasswordService, cfg.PlatformUsers, cfg.Audit)

	owner := string(domain.PlatformRoleOwner)
	admin := string(domain.PlatformRoleAdmin)

	r.Route("/v1/platform", func(r chi.Router) {
		r.With(rateLimiters[middleware.LimitAuth]).Post("/auth/login", loginHandler.PlatformLogin)

		r.Group(func(r chi.Router) {
			r.Use(authn)
			r.Use(middleware.RequirePlatform())
			r.Use(rateLimiters[middleware.LimitAPI])

			r.Route("/me/mfa", func(r chi.Router) {
				r.Get("/status", mfaHandler.Status)
				r.Post("/setup", mfaHandler.Setup)
				r.Post("/enable", mfaHandler.Enable)
				r.Post("/disable", mfaHandler.Disable)
			})

			r.Get("/tenants", tenantsHandler.List)
			r.Get("/tenants/{id}", tenantsHandler.Get)
			r.Get("/tenants/{id}/subscriptions", billingHandler.List)
			r.Get("/tickets", ticketsHandler.List)
			r.Patch("/tickets/{id}", ticketsHandler.Update)
			r.Get("/pool", tenantsHandler.PoolStats)

			// Tenant lifecycle and billing mutate schools; they need a
			// verified second factor when the operator enabled one.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(owner, admin))
				r.Use(middleware.RequireMFA())
				r.Post("/tenants", tenantsHandler.Signup)
				r.Post("/tenants/{id}/suspend", tenantsHandler.Suspend)
				r.Post("/tenants/{id}/activate", tenantsHandler.Activate)
				r.Post("/tenants/{id}/mark-deletion", tenantsHandler.MarkForDeletion)
				r.Post("/tenants/{id}/subscriptions", billingHandler.Create)
				r.Delete("/subscriptions/{id}", billingHandler.Cancel)
				r.Get("/users", operatorsHandler.List)
				r.Post("/users", operatorsHandler.Create)
				r.Get("/audit", tenantsHandler.Audit)
			})
			r.With(middleware.RequireRole(owner), middleware.RequireMFA()).
				Delete("/tenants/{id}", tenantsHandler.Purge)
		})
	})

	// School users
	schoolHandler := schoolapi.NewHandler(cfg.Logger, cfg.PasswordService, maxPage)
	r.Route("/v1/school", func(r chi.Router) {
		r.With(rateLimiters[middleware.LimitAuth]).Post("/auth/login", loginHandler.SchoolLogin)

		r.Group(func(r chi.Router) {
			r.Use(authn)
			r.Use(middleware.RequireSchool())
			r.Use(rateLimiters[middleware.LimitAPI])

			// Support tickets live in the platform database.
			r.Get("/tickets", ticketsHandler.ListMine)
			r.Post("/tickets", ticketsHandler.Open)

			r.Group(func(r chi.Router) {
				r.Use(middleware.TenantDB(cfg.TenantRouter, cfg.Logger))
				schoolHandler.Routes(r, rateLimiters[middleware.LimitExport])
			})
		})
	})

	return r
}

// useGlobalMiddleware installs the middleware every route runs behind.
// Recover sits inside Logging and Metrics so a panicking request is still
// logged and timed as a 500.
func useGlobalMiddleware(r chi.Router, cfg RouterConfig) {
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.Recover(cfg.Logger))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Client-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.Validation.MaxRequestBodySize))
}

// health reports ok when the platform database answers. Tenant databases
// are not checked; one school being down is not an outage.
func health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				httputil.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
