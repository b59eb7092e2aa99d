package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tendant/school-crm/internal/http/middleware"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
)

// Sessions is the part of auth.SessionService the handler needs.
type Sessions interface {
	RefreshSession(ctx context.Context, refreshToken string, opts auth.IssueSessionOpts) (*domain.TokenPair, error)
	RevokeSession(ctx context.Context, refreshToken string) error
	RevokeAllSessions(ctx context.Context, p *auth.Principal) error
	AccessTokenTTL() time.Duration
	RefreshTokenTTL() time.Duration
}

// Handler handles session endpoints shared by platform and school users.
type Handler struct {
	logger       *slog.Logger
	sessions     Sessions
	cookieConfig httputil.CookieConfig
}

// NewHandler creates a new session handler.
func NewHandler(logger *slog.Logger, sessions Sessions, cookieConfig httputil.CookieConfig) *Handler {
	return &Handler{
		logger:       logger,
		sessions:     sessions,
		cookieConfig: cookieConfig,
	}
}

// RefreshRequest carries the refresh token for mobile clients.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenResponse represents a token response.
type TokenResponse struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// refreshToken reads the token from the body (mobile) or cookie (web).
// It writes the error response itself and reports false on failure.
func (h *Handler) refreshToken(w http.ResponseWriter, r *http.Request, required bool) (string, bool) {
	if httputil.IsMobileClient(r) {
		var req RefreshRequest
		if !httputil.DecodeOrError(w, r, &req) {
			return "", false
		}
		return req.RefreshToken, true
	}
	token, ok := httputil.RefreshTokenFromCookie(r)
	if !ok && required {
		httputil.Error(w, http.StatusUnauthorized, "refresh token not found")
		return "", false
	}
	return token, true
}

// Refresh issues a new access token for a live refresh session.
// POST /v1/auth/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := h.refreshToken(w, r, true)
	if !ok {
		return
	}

	tokens, err := h.sessions.RefreshSession(r.Context(), token, auth.IssueSessionOpts{
		IP:        auth.ClientIP(r),
		UserAgent: r.UserAgent(),
		Request:   r,
	})
	if err != nil {
		if httputil.StatusFor(err) == http.StatusUnauthorized || errors.Is(err, domain.ErrAccountLocked) {
			if !httputil.IsMobileClient(r) {
				httputil.ClearAuthCookies(w, h.cookieConfig)
			}
			httputil.Error(w, http.StatusUnauthorized, "invalid or expired refresh token")
			return
		}
		httputil.WriteError(w, r, h.logger, err)
		return
	}

	WriteTokens(w, r, h.sessions, h.cookieConfig, tokens)
}

// Logout revokes the current refresh session.
// POST /v1/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := h.refreshToken(w, r, false)
	if !ok {
		return
	}

	if token != "" {
		// Unknown tokens are ignored so logout reveals nothing about sessions.
		if err := h.sessions.RevokeSession(r.Context(), token); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			h.logger.Warn("failed to revoke session", "error", err)
		}
	}

	if !httputil.IsMobileClient(r) {
		httputil.ClearAuthCookies(w, h.cookieConfig)
	}
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll revokes every session of the caller's account.
// POST /v1/auth/logout/all
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.sessions.RevokeAllSessions(r.Context(), p); err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}

	if !httputil.IsMobileClient(r) {
		httputil.ClearAuthCookies(w, h.cookieConfig)
	}
	w.WriteHeader(http.StatusNoContent)
}

// TokenTTLs reports cookie lifetimes. *auth.SessionService implements it.
type TokenTTLs interface {
	AccessTokenTTL() time.Duration
	RefreshTokenTTL() time.Duration
}

// WriteTokens writes tokens as HttpOnly cookies (web) or JSON (mobile).
// Login handlers share it.
func WriteTokens(w http.ResponseWriter, r *http.Request, ttls TokenTTLs, cookieConfig httputil.CookieConfig, tokens *domain.TokenPair) {
	if httputil.IsMobileClient(r) {
		httputil.JSON(w, http.StatusOK, TokenResponse{
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
			TokenType:    tokens.TokenType,
			ExpiresIn:    tokens.ExpiresIn,
		})
		return
	}

	httputil.SetAuthCookies(w, tokens.AccessToken, tokens.RefreshToken,
		ttls.AccessTokenTTL(), ttls.RefreshTokenTTL(), cookieConfig)
	httputil.JSON(w, http.StatusOK, TokenResponse{
		TokenType: tokens.TokenType,
		ExpiresIn: tokens.ExpiresIn,
	})
}
