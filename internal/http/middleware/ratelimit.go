package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/tendant/school-crm/internal/config"
	"github.com/tendant/school-crm/internal/httputil"
)

// Limiter names returned by CreateRateLimiters.
const (
	LimitAuth    = "auth"
	LimitRefresh = "refresh"
	LimitAPI     = "api"
	LimitExport  = "export"
)

// RateLimitConfig holds the limit for one route group.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	// PerUser keys the limit on the authenticated user instead of the
	// client IP. Requests without a principal fall back to the IP.
	PerUser bool
	Logger  *slog.Logger
}

// RateLimit creates a rate limiter middleware with logging.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	key := httprate.KeyByIP
	if cfg.PerUser {
		key = keyByPrincipal
	}
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Logger != nil {
				attrs := []any{
					"ip", r.RemoteAddr,
					"path", r.URL.Path,
					"method", r.Method,
				}
				if p, ok := PrincipalFrom(r.Context()); ok {
					attrs = append(attrs, "user_id", p.UserID.String())
				}
				cfg.Logger.Warn("rate limit exceeded", attrs...)
			}
			httputil.Error(w, http.StatusTooManyRequests, "rate limit exceeded. please try again later")
		}),
	)
}

func keyByPrincipal(r *http.Request) (string, error) {
	if p, ok := PrincipalFrom(r.Context()); ok {
		if scope, ok := p.Tenant(); ok {
			return "school:" + scope.TenantID() + ":" + p.UserID.String(), nil
		}
		return "platform:" + p.UserID.String(), nil
	}
	return httprate.KeyByIP(r)
}

// NoRateLimit returns a no-op middleware when rate limiting is disabled.
func NoRateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

// CreateRateLimiters builds the limiter for each route group.
func CreateRateLimiters(cfg config.RateLimitConfig, logger *slog.Logger) map[string]func(http.Handler) http.Handler {
	if !cfg.Enabled {
		noOp := NoRateLimit()
		return map[string]func(http.Handler) http.Handler{
			LimitAuth:    noOp,
			LimitRefresh: noOp,
			LimitAPI:     noOp,
			LimitExport:  noOp,
		}
	}

	return map[string]func(http.Handler) http.Handler{
		LimitAuth: RateLimit(RateLimitConfig{
			Requests: cfg.AuthRequestsPerMinute,
			Window:   time.Duration(cfg.AuthWindowMinutes) * time.Minute,
			Logger:   logger,
		}),
		LimitRefresh: RateLimit(RateLimitConfig{
			Requests: cfg.RefreshRequestsPerMinute,
			Window:   time.Duration(cfg.RefreshWindowMinutes) * time.Minute,
			Logger:   logger,
		}),
		LimitAPI: RateLimit(RateLimitConfig{
			Requests: cfg.APIRequestsPerMinute,
			Window:   time.Duration(cfg.APIWindowMinutes) * time.Minute,
			PerUser:  true,
			Logger:   logger,
		}),
		LimitExport: RateLimit(RateLimitConfig{
			Requests: cfg.ExportRequestsPerWindow,
			Window:   time.Duration(cfg.ExportWindowMinutes) * time.Minute,
			PerUser:  true,
			Logger:   logger,
		}),
	}
}
