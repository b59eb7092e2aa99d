package password

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tendant/school-crm/internal/http/features/session"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/internal/school"
	"github.com/tendant/school-crm/internal/tenantdb"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
)

// Authenticator checks credentials. *auth.PasswordService implements it.
type Authenticator interface {
	AuthenticatePlatform(ctx context.Context, email, password string) (*domain.PlatformUser, error)
	AuthenticateSchool(ctx context.Context, store auth.SchoolCredentialStore, email, password string) (*domain.SchoolUser, error)
}

// TOTPVerifier checks a platform operator's one-time code.
type TOTPVerifier interface {
	VerifyTOTP(ctx context.Context, user *domain.PlatformUser, code string) (bool, error)
}

// SessionIssuer opens refresh sessions. *auth.SessionService implements it.
type SessionIssuer interface {
	IssueSession(ctx context.Context, subject auth.Subject, opts auth.IssueSessionOpts) (*domain.TokenPair, error)
	AccessTokenTTL() time.Duration
	RefreshTokenTTL() time.Duration
}

// SchoolResolver finds a school's database from its public subdomain.
// *tenantdb.Router implements it.
type SchoolResolver interface {
	AcquireBySubdomain(ctx context.Context, subdomain string) (*tenantdb.Client, error)
}

// Config holds the login handler dependencies.
type Config struct {
	Logger       *slog.Logger
	Passwords    Authenticator
	TOTP         TOTPVerifier
	Sessions     SessionIssuer
	Schools      SchoolResolver
	CookieConfig httputil.CookieConfig
	RootDomain   string
}

// Handler handles password logins for platform operators and school users.
type Handler struct {
	Config
}

// NewHandler creates a new login handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{Config: cfg}
}

// PlatformLoginRequest is an operator login. Code is required when the
// operator enabled MFA.
type PlatformLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Code     string `json:"code,omitempty" validate:"omitempty,len=6,numeric"`
}

// PlatformLogin authenticates a platform operator.
// POST /v1/platform/auth/login
func (h *Handler) PlatformLogin(w http.ResponseWriter, r *http.Request) {
	var req PlatformLoginRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}

	user, err := h.Passwords.AuthenticatePlatform(r.Context(), req.Email, req.Password)
	if err != nil {
		h.loginFailed(w, r, err, "platform", req.Email)
		return
	}

	mfaVerified := false
	if user.MFAEnabled {
		if req.Code == "" {
			httputil.JSON(w, http.StatusUnauthorized, map[string]any{
				"error":        domain.ErrMFARequired.Error(),
				"mfa_required": true,
			})
			return
		}
		ok, err := h.TOTP.VerifyTOTP(r.Context(), user, req.Code)
		if err != nil && !errors.Is(err, domain.ErrMFANotEnabled) {
			httputil.WriteError(w, r, h.Logger, err)
			return
		}
		if !ok {
			httputil.Error(w, http.StatusUnauthorized, domain.ErrInvalidMFACode.Error())
			return
		}
		mfaVerified = true
	}

	h.issue(w, r, auth.PlatformSubject(user), mfaVerified)
}

// SchoolLoginRequest is a school user login. Subdomain may be omitted when
// the request arrives on the school's own host.
type SchoolLoginRequest struct {
	Subdomain string `json:"subdomain,omitempty" validate:"omitempty,max=56"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
}

// SchoolLogin authenticates a user against their school's database. The
// tenant is resolved from the registry, never taken from a client-supplied
// tenant id.
// POST /v1/school/auth/login
func (h *Handler) SchoolLogin(w http.ResponseWriter, r *http.Request) {
	var req SchoolLoginRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}

	subdomain := req.Subdomain
	if subdomain == "" {
		subdomain = SubdomainFromHost(r.Host, h.RootDomain)
	}
	if subdomain == "" {
		httputil.Error(w, http.StatusBadRequest, "subdomain is required")
		return
	}

	client, err := h.Schools.AcquireBySubdomain(r.Context(), subdomain)
	if err != nil {
		// Do not reveal which schools exist.
		if errors.Is(err, domain.ErrTenantNotFound) {
			httputil.Error(w, http.StatusUnauthorized, domain.ErrInvalidCredentials.Error())
			return
		}
		httputil.WriteError(w, r, h.Logger, err)
		return
	}
	defer client.Release()

	users := school.NewStore(client.DB()).Users
	user, err := h.Passwords.AuthenticateSchool(r.Context(), users, req.Email, req.Password)
	if err != nil {
		h.loginFailed(w, r, err, client.TenantID(), req.Email)
		return
	}

	tenant := client.Tenant()
	h.issue(w, r, auth.SchoolSubject(&tenant, user), false)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request, subject auth.Subject, mfaVerified bool) {
	tokens, err := h.Sessions.IssueSession(r.Context(), subject, auth.IssueSessionOpts{
		IP:          auth.ClientIP(r),
		UserAgent:   r.UserAgent(),
		Request:     r,
		MFAVerified: mfaVerified,
	})
	if err != nil {
		httputil.WriteError(w, r, h.Logger, err)
		return
	}
	session.WriteTokens(w, r, h.Sessions, h.CookieConfig, tokens)
}

func (h *Handler) loginFailed(w http.ResponseWriter, r *http.Request, err error, realm, email string) {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		h.Logger.Info("login failed", "realm", realm, "email", email, "ip", auth.ClientIP(r))
		httputil.Error(w, http.StatusUnauthorized, domain.ErrInvalidCredentials.Error())
	case errors.Is(err, domain.ErrAccountLocked):
		h.Logger.Warn("login to locked account", "realm", realm, "email", email, "ip", auth.ClientIP(r))
		httputil.WriteError(w, r, h.Logger, err)
	default:
		httputil.WriteError(w, r, h.Logger, err)
	}
}

// SubdomainFromHost returns the first label of host when host is a direct
// child of rootDomain, e.g. "greenfield" for greenfield.schoolcrm.app.
func SubdomainFromHost(host, rootDomain string) string {
	if rootDomain == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	label, ok := strings.CutSuffix(host, "."+strings.ToLower(rootDomain))
	if !ok || label == "" || strings.Contains(label, ".") {
		return ""
	}
	return label
}
