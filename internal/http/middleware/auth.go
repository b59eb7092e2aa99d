package middleware

import (
	"context"
	"net/http"

	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/pkg/auth"
)

type contextKey string

// principalKey is the context key for the authenticated caller.
const principalKey contextKey = "principal"

// Authenticator verifies access tokens. *auth.SessionService implements it.
type Authenticator interface {
	Authenticate(token string) (*auth.Principal, error)
}

// Auth verifies the access token and stores the caller in the request
// context. The Authorization header is checked first, then the access
// token cookie.
func Auth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := httputil.BearerToken(r)
			if token == "" {
				httputil.Error(w, http.StatusUnauthorized, "missing authorization")
				return
			}

			p, err := authn.Authenticate(token)
			if err != nil {
				httputil.Error(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			notePrincipal(r.Context(), p)
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the authenticated caller stored by Auth.
func PrincipalFrom(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*auth.Principal)
	return p, ok && p != nil
}

// RequirePlatform admits platform operators only.
func RequirePlatform() func(http.Handler) http.Handler {
	return requirePrincipal(func(p *auth.Principal) bool { return p.IsPlatform() }, "platform access required")
}

// RequireSchool admits users bound to a school only.
func RequireSchool() func(http.Handler) http.Handler {
	return requirePrincipal(func(p *auth.Principal) bool {
		_, ok := p.Tenant()
		return ok
	}, "school access required")
}

// RequireRole admits callers holding one of roles. Apply after
// RequirePlatform or RequireSchool; role names are not unique across the two.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return requirePrincipal(func(p *auth.Principal) bool { return p.HasRole(roles...) }, "insufficient role")
}

func requirePrincipal(allow func(*auth.Principal) bool, message string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				httputil.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !allow(p) {
				httputil.Error(w, http.StatusForbidden, message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
