package tickets

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/school-crm/internal/http/middleware"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
	"github.com/tendant/school-crm/pkg/repository"
)

// Store keeps support tickets in the platform database.
// *repository.TicketsRepository implements it.
type Store interface {
	Create(ctx context.Context, t *domain.SupportTicket) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.SupportTicket, error)
	List(ctx context.Context, f repository.TicketFilter) ([]*domain.SupportTicket, error)
	Update(ctx context.Context, id uuid.UUID, status domain.TicketStatus, assignedTo *uuid.UUID) error
}

// Handler serves both sides of support: schools open tickets, platform
// operators work them.
type Handler struct {
	logger *slog.Logger
	store  Store
}

// NewHandler creates a new tickets handler.
func NewHandler(logger *slog.Logger, store Store) *Handler {
	return &Handler{logger: logger, store: store}
}

// OpenRequest raises a ticket. The school is taken from the caller's token.
type OpenRequest struct {
	Subject  string `json:"subject" validate:"required,max=200"`
	Body     string `json:"body" validate:"required,max=10000"`
	Priority string `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
}

func schoolCaller(w http.ResponseWriter, r *http.Request) (*auth.Principal, auth.TenantScope, bool) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return nil, auth.TenantScope{}, false
	}
	scope, ok := p.Tenant()
	if !ok {
		httputil.Error(w, http.StatusForbidden, "school access required")
		return nil, auth.TenantScope{}, false
	}
	return p, scope, true
}

// Open handles POST /v1/school/tickets
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	p, scope, ok := schoolCaller(w, r)
	if !ok {
		return
	}

	priority := req.Priority
	if priority == "" {
		priority = "normal"
	}
	now := time.Now()
	ticket := &domain.SupportTicket{
		ID:        uuid.New(),
		TenantID:  scope.TenantID(),
		OpenedBy:  p.UserID,
		Subject:   auth.SanitizeText(req.Subject),
		Body:      auth.SanitizeText(req.Body),
		Priority:  priority,
		Status:    domain.TicketOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.Create(r.Context(), ticket); err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, ticket)
}

// ListMine handles GET /v1/school/tickets. Only the caller's school is
// visible.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	_, scope, ok := schoolCaller(w, r)
	if !ok {
		return
	}
	h.list(w, r, repository.TicketFilter{
		TenantID: scope.TenantID(),
		Status:   domain.TicketStatus(r.URL.Query().Get("status")),
	})
}

// List handles GET /v1/platform/tickets?status=open&tenant_id=...
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.list(w, r, repository.TicketFilter{
		TenantID: q.Get("tenant_id"),
		Status:   domain.TicketStatus(q.Get("status")),
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, f repository.TicketFilter) {
	if f.Status != "" && !f.Status.Valid() {
		httputil.WriteError(w, r, h.logger, domain.ErrInvalidInput)
		return
	}
	tickets, err := h.store.List(r.Context(), f)
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	if tickets == nil {
		tickets = []*domain.SupportTicket{}
	}
	httputil.JSON(w, http.StatusOK, tickets)
}

// UpdateRequest moves a ticket along its workflow.
type UpdateRequest struct {
	Status     domain.TicketStatus `json:"status" validate:"required,oneof=open in_progress resolved closed"`
	AssignedTo *uuid.UUID          `json:"assigned_to,omitempty"`
}

// Update handles PATCH /v1/platform/tickets/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	var req UpdateRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}

	if err := h.store.Update(r.Context(), id, req.Status, req.AssignedTo); err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	ticket, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, ticket)
}
