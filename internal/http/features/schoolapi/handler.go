// Package schoolapi serves the per-school API. Every handler expects
// middleware.TenantDB to have bound the caller's school database to the
// request.
package schoolapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/school-crm/internal/http/middleware"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/internal/school"
	"github.com/tendant/school-crm/internal/tenantdb"
)

// Hasher hashes new passwords against the password policy.
// *auth.PasswordService implements it.
type Hasher interface {
	HashNewPassword(password string) (string, error)
}

// Handler serves the school modules.
type Handler struct {
	logger      *slog.Logger
	hasher      Hasher
	maxPageSize int
}

// NewHandler creates a new school API handler.
func NewHandler(logger *slog.Logger, hasher Hasher, maxPageSize int) *Handler {
	return &Handler{
		logger:      logger,
		hasher:      hasher,
		maxPageSize: maxPageSize,
	}
}

// store binds the school repositories to the request's tenant database.
func (h *Handler) store(w http.ResponseWriter, r *http.Request) (*school.Store, bool) {
	client, ok := tenantdb.FromContext(r.Context())
	if !ok {
		h.logger.Error("school route reached without a tenant database", "path", r.URL.Path)
		httputil.Error(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	return school.NewStore(client.DB()), true
}

func (h *Handler) page(r *http.Request) school.Page {
	limit, offset := httputil.Pagination(r, h.maxPageSize)
	return school.Page{Limit: limit, Offset: offset}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(w, r, h.logger, err)
}

// callerID is the authenticated user. Routes are mounted behind Auth, so a
// missing principal yields uuid.Nil only in misconfigured tests.
func callerID(r *http.Request) uuid.UUID {
	if p, ok := middleware.PrincipalFrom(r.Context()); ok {
		return p.UserID
	}
	return uuid.Nil
}

// pathID parses the {id} path parameter, writing a 404 when malformed.
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := httputil.URLParamUUID(r, name)
	if err != nil {
		h.fail(w, r, err)
		return uuid.Nil, false
	}
	return id, true
}

// queryID parses an optional UUID filter, writing a 400 when malformed.
func (h *Handler) queryID(w http.ResponseWriter, r *http.Request, name string) (*uuid.UUID, bool) {
	id, err := httputil.QueryUUID(r, name)
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return id, true
}

// optionalDate parses a validated YYYY-MM-DD body field.
func optionalDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(httputil.DateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}
