package tenants

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/school-crm/internal/http/middleware"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/internal/platform"
	"github.com/tendant/school-crm/internal/tenantdb"
	"github.com/tendant/school-crm/pkg/domain"
)

// Service runs the tenant lifecycle. *platform.TenantService implements it.
type Service interface {
	Signup(ctx context.Context, actor *uuid.UUID, req platform.SignupRequest) (*domain.Tenant, *domain.SchoolUser, error)
	Get(ctx context.Context, id string) (*domain.Tenant, error)
	List(ctx context.Context, status domain.TenantStatus, limit, offset int) ([]*domain.Tenant, error)
	Suspend(ctx context.Context, actor *uuid.UUID, id string) (*domain.Tenant, error)
	Activate(ctx context.Context, actor *uuid.UUID, id string) (*domain.Tenant, error)
	MarkForDeletion(ctx context.Context, actor *uuid.UUID, id string) (*domain.Tenant, error)
	Purge(ctx context.Context, actor *uuid.UUID, id string) error
}

// PoolStats reports the connection router cache. *tenantdb.Router
// implements it.
type PoolStats interface {
	Stats() tenantdb.Stats
}

// AuditReader lists platform audit entries.
type AuditReader interface {
	List(ctx context.Context, tenantID string, limit int) ([]*domain.AuditEntry, error)
}

// Handler handles tenant administration for platform operators.
type Handler struct {
	logger      *slog.Logger
	service     Service
	pools       PoolStats
	audit       AuditReader
	maxPageSize int
}

// NewHandler creates a new tenants handler.
func NewHandler(logger *slog.Logger, service Service, pools PoolStats, audit AuditReader, maxPageSize int) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		pools:       pools,
		audit:       audit,
		maxPageSize: maxPageSize,
	}
}

// SignupRequest registers a new school.
type SignupRequest struct {
	Name          string `json:"name" validate:"required,max=200"`
	Subdomain     string `json:"subdomain" validate:"required,max=56"`
	ContactEmail  string `json:"contact_email" validate:"required,email"`
	AdminName     string `json:"admin_name" validate:"required,max=200"`
	AdminEmail    string `json:"admin_email" validate:"required,email"`
	AdminPassword string `json:"admin_password" validate:"required"`
}

// SignupResponse returns the new tenant and its first administrator.
type SignupResponse struct {
	Tenant *domain.Tenant     `json:"tenant"`
	Admin  *domain.SchoolUser `json:"admin"`
}

func actor(r *http.Request) *uuid.UUID {
	if p, ok := middleware.PrincipalFrom(r.Context()); ok {
		id := p.UserID
		return &id
	}
	return nil
}

// Signup handles POST /v1/platform/tenants
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}

	tenant, admin, err := h.service.Signup(r.Context(), actor(r), platform.SignupRequest{
		Name:          req.Name,
		Subdomain:     req.Subdomain,
		ContactEmail:  req.ContactEmail,
		AdminName:     req.AdminName,
		AdminEmail:    req.AdminEmail,
		AdminPassword: req.AdminPassword,
	})
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, SignupResponse{Tenant: tenant, Admin: admin})
}

// List handles GET /v1/platform/tenants?status=ACTIVE
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := httputil.Pagination(r, h.maxPageSize)
	status := domain.TenantStatus(r.URL.Query().Get("status"))

	tenants, err := h.service.List(r.Context(), status, limit, offset)
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	if tenants == nil {
		tenants = []*domain.Tenant{}
	}
	httputil.JSON(w, http.StatusOK, tenants)
}

// Get handles GET /v1/platform/tenants/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, tenant)
}

type transitionFunc func(ctx context.Context, actor *uuid.UUID, id string) (*domain.Tenant, error)

func (h *Handler) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := fn(r.Context(), actor(r), chi.URLParam(r, "id"))
		if err != nil {
			httputil.WriteError(w, r, h.logger, err)
			return
		}
		httputil.JSON(w, http.StatusOK, tenant)
	}
}

// Suspend handles POST /v1/platform/tenants/{id}/suspend
func (h *Handler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.transition(h.service.Suspend)(w, r)
}

// Activate handles POST /v1/platform/tenants/{id}/activate
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	h.transition(h.service.Activate)(w, r)
}

// MarkForDeletion handles POST /v1/platform/tenants/{id}/mark-deletion
func (h *Handler) MarkForDeletion(w http.ResponseWriter, r *http.Request) {
	h.transition(h.service.MarkForDeletion)(w, r)
}

// Purge handles DELETE /v1/platform/tenants/{id}
func (h *Handler) Purge(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Purge(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PoolStats handles GET /v1/platform/pool
func (h *Handler) PoolStats(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, h.pools.Stats())
}

// Audit handles GET /v1/platform/audit?tenant_id=...
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	limit, _ := httputil.Pagination(r, h.maxPageSize)
	entries, err := h.audit.List(r.Context(), r.URL.Query().Get("tenant_id"), limit)
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []*domain.AuditEntry{}
	}
	httputil.JSON(w, http.StatusOK, entries)
}
