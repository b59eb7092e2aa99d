package me

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/school-crm/internal/http/middleware"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/internal/school"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
)

// PlatformUsers loads operator accounts. *auth.PasswordService implements it.
type PlatformUsers interface {
	GetPlatformUser(ctx context.Context, userID uuid.UUID) (*domain.PlatformUser, error)
}

// Handler handles the caller's own profile.
type Handler struct {
	logger   *slog.Logger
	platform PlatformUsers
	schools  middleware.ClientSource
}

// NewHandler creates a new me handler.
func NewHandler(logger *slog.Logger, platform PlatformUsers, schools middleware.ClientSource) *Handler {
	return &Handler{
		logger:   logger,
		platform: platform,
		schools:  schools,
	}
}

// UserResponse is the caller's profile.
type UserResponse struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	TenantID   string `json:"tenant_id,omitempty"`
	TenantName string `json:"tenant_name,omitempty"`
	MFAEnabled bool   `json:"mfa_enabled,omitempty"`
}

// GetMe returns the current user's profile, read from the platform
// database for operators and from the school's own database otherwise.
// GET /v1/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if scope, ok := p.Tenant(); ok {
		h.schoolProfile(w, r, p, scope)
		return
	}

	user, err := h.platform.GetPlatformUser(r.Context(), p.UserID)
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, UserResponse{
		ID:         user.ID.String(),
		Kind:       string(domain.SubjectPlatform),
		Email:      user.Email,
		Name:       user.Name,
		Role:       string(user.Role),
		MFAEnabled: user.MFAEnabled,
	})
}

func (h *Handler) schoolProfile(w http.ResponseWriter, r *http.Request, p *auth.Principal, scope auth.TenantScope) {
	client, err := h.schools.Acquire(r.Context(), scope)
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	defer client.Release()

	user, err := school.NewStore(client.DB()).Users.GetByID(r.Context(), p.UserID)
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, UserResponse{
		ID:         user.ID.String(),
		Kind:       string(domain.SubjectSchool),
		Email:      user.Email,
		Name:       user.Name,
		Role:       string(user.Role),
		TenantID:   client.TenantID(),
		TenantName: client.Tenant().Name,
	})
}
