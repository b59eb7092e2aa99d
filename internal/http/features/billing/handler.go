package billing

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/school-crm/internal/http/middleware"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/pkg/domain"
)

// Subscriptions stores billing periods. *repository.SubscriptionsRepository
// implements it.
type Subscriptions interface {
	Create(ctx context.Context, s *domain.Subscription) error
	ListByTenant(ctx context.Context, tenantID string) ([]*domain.Subscription, error)
	Cancel(ctx context.Context, id uuid.UUID) error
}

// Tenants looks up schools.
type Tenants interface {
	Get(ctx context.Context, id string) (*domain.Tenant, error)
}

// AuditLog records platform actions.
type AuditLog interface {
	Record(ctx context.Context, actorID *uuid.UUID, action string, tenantID *string, details any) error
}

// Handler handles school subscriptions.
type Handler struct {
	logger        *slog.Logger
	subscriptions Subscriptions
	tenants       Tenants
	audit         AuditLog
}

// NewHandler creates a new billing handler.
func NewHandler(logger *slog.Logger, subscriptions Subscriptions, tenants Tenants, audit AuditLog) *Handler {
	return &Handler{
		logger:        logger,
		subscriptions: subscriptions,
		tenants:       tenants,
		audit:         audit,
	}
}

// CreateRequest opens a billing period. Months defaults to 12.
type CreateRequest struct {
	Plan        domain.SubscriptionPlan `json:"plan" validate:"required,oneof=trial basic premium"`
	StartsAt    string                  `json:"starts_at" validate:"omitempty,datetime=2006-01-02"`
	Months      int                     `json:"months" validate:"omitempty,min=1,max=36"`
	AmountCents int64                   `json:"amount_cents" validate:"gte=0"`
}

// Create handles POST /v1/platform/tenants/{id}/subscriptions
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}

	tenant, err := h.tenants.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}

	now := time.Now().UTC()
	starts := now.Truncate(24 * time.Hour)
	if req.StartsAt != "" {
		starts, _ = time.Parse(httputil.DateLayout, req.StartsAt)
	}
	months := req.Months
	if months == 0 {
		months = 12
	}

	sub := &domain.Subscription{
		ID:          uuid.New(),
		TenantID:    tenant.ID,
		Plan:        req.Plan,
		Status:      domain.SubscriptionActive,
		StartsAt:    starts,
		EndsAt:      starts.AddDate(0, months, 0),
		AmountCents: req.AmountCents,
		CreatedAt:   now,
	}
	if err := h.subscriptions.Create(r.Context(), sub); err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}

	h.record(r, domain.AuditSubscriptionCreated, tenant.ID, map[string]any{
		"subscription_id": sub.ID,
		"plan":            sub.Plan,
	})
	httputil.JSON(w, http.StatusCreated, sub)
}

// List handles GET /v1/platform/tenants/{id}/subscriptions
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.subscriptions.ListByTenant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	if subs == nil {
		subs = []*domain.Subscription{}
	}
	httputil.JSON(w, http.StatusOK, subs)
}

// Cancel handles POST /v1/platform/subscriptions/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	if err := h.subscriptions.Cancel(r.Context(), id); err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	h.record(r, domain.AuditSubscriptionCancelled, "", map[string]any{"subscription_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) record(r *http.Request, action, tenantID string, details any) {
	var actorID *uuid.UUID
	if p, ok := middleware.PrincipalFrom(r.Context()); ok {
		actorID = &p.UserID
	}
	var tid *string
	if tenantID != "" {
		tid = &tenantID
	}
	if err := h.audit.Record(r.Context(), actorID, action, tid, details); err != nil {
		h.logger.Error("failed to write audit entry", "action", action, "error", err)
	}
}
