package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/internal/tenantdb"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
)

// ClientSource hands out tenant database clients. *tenantdb.Router
// implements it.
type ClientSource interface {
	Acquire(ctx context.Context, scope auth.TenantScope) (*tenantdb.Client, error)
}

// TenantDB acquires the caller's school database for the duration of the
// request and releases it afterwards. Apply after Auth.
func TenantDB(source ClientSource, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				httputil.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			scope, ok := p.Tenant()
			if !ok {
				httputil.Error(w, http.StatusForbidden, "school access required")
				return
			}

			client, err := source.Acquire(r.Context(), scope)
			if err != nil {
				if status, msg, known := tenantError(err); known {
					httputil.Error(w, status, msg)
					return
				}
				logger.Error("failed to acquire tenant database",
					"tenant_id", scope.TenantID(),
					"error", err,
				)
				httputil.Error(w, http.StatusInternalServerError, "internal server error")
				return
			}
			defer client.Release()

			next.ServeHTTP(w, r.WithContext(tenantdb.NewContext(r.Context(), client)))
		})
	}
}

// tenantError maps router rejections to a 403. A token for a tenant that
// no longer exists is also a 403: the caller is authenticated but has no
// school to talk to.
func tenantError(err error) (int, string, bool) {
	switch {
	case errors.Is(err, domain.ErrTenantNotFound),
		errors.Is(err, domain.ErrTenantNotProvisioned),
		errors.Is(err, domain.ErrTenantSuspended),
		errors.Is(err, domain.ErrTenantPendingDeletion):
		return http.StatusForbidden, err.Error(), true
	}
	return 0, "", false
}
