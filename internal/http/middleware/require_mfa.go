package middleware

import (
	"net/http"

	"github.com/tendant/school-crm/pkg/auth"
)

// RequireMFA enforces MFA verification for sensitive platform endpoints.
// Apply after Auth. Operators without MFA enabled get sessions marked
// verified at login, so this only blocks operators who enabled MFA and
// skipped the code.
//
// Example usage:
//
//	r.With(middleware.RequireMFA()).
//	  Post("/v1/platform/tenants/{id}/suspend", h.Suspend)
func RequireMFA() func(http.Handler) http.Handler {
	return requirePrincipal(func(p *auth.Principal) bool { return p.MFAVerified }, "MFA verification required for this operation")
}
