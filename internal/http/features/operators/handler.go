package operators

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/school-crm/internal/http/middleware"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/pkg/domain"
)

// Creator creates platform accounts. *auth.PasswordService implements it.
type Creator interface {
	CreatePlatformUser(ctx context.Context, email, name string, role domain.PlatformRole, password string) (*domain.PlatformUser, error)
}

// Lister lists platform accounts. *repository.PlatformUsersRepository
// implements it.
type Lister interface {
	List(ctx context.Context) ([]*domain.PlatformUser, error)
}

// AuditLog records platform actions.
type AuditLog interface {
	Record(ctx context.Context, actorID *uuid.UUID, action string, tenantID *string, details any) error
}

// Handler manages platform operator accounts.
type Handler struct {
	logger  *slog.Logger
	creator Creator
	lister  Lister
	audit   AuditLog
}

// NewHandler creates a new operators handler.
func NewHandler(logger *slog.Logger, creator Creator, lister Lister, audit AuditLog) *Handler {
	return &Handler{logger: logger, creator: creator, lister: lister, audit: audit}
}

// OperatorResponse is a platform account as the API shows it.
type OperatorResponse struct {
	ID         uuid.UUID           `json:"id"`
	Email      string              `json:"email"`
	Name       string              `json:"name"`
	Role       domain.PlatformRole `json:"role"`
	MFAEnabled bool                `json:"mfa_enabled"`
	Locked     bool                `json:"locked"`
	CreatedAt  time.Time           `json:"created_at"`
}

func toResponse(u *domain.PlatformUser) OperatorResponse {
	return OperatorResponse{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		Role:       u.Role,
		MFAEnabled: u.MFAEnabled,
		Locked:     u.IsLocked(),
		CreatedAt:  u.CreatedAt,
	}
}

// CreateRequest adds an operator.
type CreateRequest struct {
	Email    string              `json:"email" validate:"required,email,max=254"`
	Name     string              `json:"name" validate:"required,max=100"`
	Role     domain.PlatformRole `json:"role" validate:"required,oneof=owner admin support"`
	Password string              `json:"password" validate:"required,min=8,max=128"`
}

// Create handles POST /v1/platform/users
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}

	user, err := h.creator.CreatePlatformUser(r.Context(), req.Email, req.Name, req.Role, req.Password)
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}

	var actor *uuid.UUID
	if p, ok := middleware.PrincipalFrom(r.Context()); ok {
		actor = &p.UserID
	}
	details := map[string]any{"user_id": user.ID, "role": user.Role}
	if err := h.audit.Record(r.Context(), actor, domain.AuditPlatformUserCreated, nil, details); err != nil {
		h.logger.Warn("failed to record audit entry", "action", domain.AuditPlatformUserCreated, "error", err)
	}

	httputil.JSON(w, http.StatusCreated, toResponse(user))
}

// List handles GET /v1/platform/users
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.lister.List(r.Context())
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	out := make([]OperatorResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toResponse(u))
	}
	httputil.JSON(w, http.StatusOK, out)
}
