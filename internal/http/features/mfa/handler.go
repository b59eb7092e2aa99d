package mfa

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/school-crm/internal/http/middleware"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
)

// TOTP manages operator TOTP secrets. *auth.MFAService implements it.
type TOTP interface {
	SetupTOTP(ctx context.Context, userID uuid.UUID) (*domain.MFASetupResponse, error)
	VerifyTOTPAndEnable(ctx context.Context, userID uuid.UUID, code string) error
	VerifyTOTP(ctx context.Context, user *domain.PlatformUser, code string) (bool, error)
	DisableMFA(ctx context.Context, userID uuid.UUID) error
}

// Operators loads and re-authenticates platform operators.
// *auth.PasswordService implements it.
type Operators interface {
	GetPlatformUser(ctx context.Context, userID uuid.UUID) (*domain.PlatformUser, error)
	AuthenticatePlatform(ctx context.Context, email, password string) (*domain.PlatformUser, error)
}

// SessionRevoker ends every session of an account.
type SessionRevoker interface {
	RevokeAllSessions(ctx context.Context, p *auth.Principal) error
}

// Handler handles MFA management for platform operators.
type Handler struct {
	logger    *slog.Logger
	totp      TOTP
	operators Operators
	sessions  SessionRevoker
}

// NewHandler creates a new MFA handler.
func NewHandler(logger *slog.Logger, totp TOTP, operators Operators, sessions SessionRevoker) *Handler {
	return &Handler{
		logger:    logger,
		totp:      totp,
		operators: operators,
		sessions:  sessions,
	}
}

// SetupRequest re-confirms the password before a secret is generated.
type SetupRequest struct {
	Password string `json:"password" validate:"required"`
}

// SetupResponse carries the new secret for the authenticator app.
type SetupResponse struct {
	QRCode string `json:"qr_code"`
	Secret string `json:"secret"`
}

// operator resolves the caller and checks their password.
func (h *Handler) operator(w http.ResponseWriter, r *http.Request, password string) (*auth.Principal, *domain.PlatformUser, bool) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok || !p.IsPlatform() {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return nil, nil, false
	}

	user, err := h.operators.GetPlatformUser(r.Context(), p.UserID)
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return nil, nil, false
	}
	if password == "" {
		return p, user, true
	}

	authed, err := h.operators.AuthenticatePlatform(r.Context(), user.Email, password)
	if err != nil || authed.ID != user.ID {
		if err != nil && !errors.Is(err, domain.ErrInvalidCredentials) {
			httputil.WriteError(w, r, h.logger, err)
			return nil, nil, false
		}
		httputil.Error(w, http.StatusUnauthorized, "invalid password")
		return nil, nil, false
	}
	return p, user, true
}

// Setup handles POST /v1/platform/me/mfa/setup
func (h *Handler) Setup(w http.ResponseWriter, r *http.Request) {
	var req SetupRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	_, user, ok := h.operator(w, r, req.Password)
	if !ok {
		return
	}

	setup, err := h.totp.SetupTOTP(r.Context(), user.ID)
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, SetupResponse{
		QRCode: setup.QRCodeDataURI,
		Secret: setup.Secret,
	})
}

// EnableRequest confirms the pending secret with a code.
type EnableRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// Enable handles POST /v1/platform/me/mfa/enable
func (h *Handler) Enable(w http.ResponseWriter, r *http.Request) {
	var req EnableRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	_, user, ok := h.operator(w, r, "")
	if !ok {
		return
	}

	if err := h.totp.VerifyTOTPAndEnable(r.Context(), user.ID, req.Code); err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}

	h.logger.Info("MFA enabled", "user_id", user.ID)
	httputil.JSON(w, http.StatusOK, map[string]string{
		"message": "MFA enabled successfully",
	})
}

// DisableRequest needs both the password and a current code.
type DisableRequest struct {
	Password string `json:"password" validate:"required"`
	Code     string `json:"code" validate:"required,len=6,numeric"`
}

// Disable handles POST /v1/platform/me/mfa/disable
func (h *Handler) Disable(w http.ResponseWriter, r *http.Request) {
	var req DisableRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	p, user, ok := h.operator(w, r, req.Password)
	if !ok {
		return
	}

	valid, err := h.totp.VerifyTOTP(r.Context(), user, req.Code)
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	if !valid {
		httputil.Error(w, http.StatusUnauthorized, domain.ErrInvalidMFACode.Error())
		return
	}

	if err := h.totp.DisableMFA(r.Context(), user.ID); err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}

	// Sessions opened with MFA are no longer meaningful.
	if err := h.sessions.RevokeAllSessions(r.Context(), p); err != nil {
		h.logger.Error("failed to revoke sessions", "user_id", user.ID, "error", err)
	}

	h.logger.Info("MFA disabled", "user_id", user.ID)
	httputil.JSON(w, http.StatusOK, map[string]string{
		"message": "MFA disabled. All sessions revoked.",
	})
}

// StatusResponse reports whether MFA is on.
type StatusResponse struct {
	Enabled bool `json:"enabled"`
}

// Status handles GET /v1/platform/me/mfa/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	_, user, ok := h.operator(w, r, "")
	if !ok {
		return
	}
	httputil.JSON(w, http.StatusOK, StatusResponse{Enabled: user.MFAEnabled})
}
