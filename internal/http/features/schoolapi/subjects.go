package schoolapi

import (
	"net/http"

	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
)

// SubjectRequest creates a subject. Codes are stored upper-case.
type SubjectRequest struct {
	Name string `json:"name" validate:"required,max=100"`
	Code string `json:"code" validate:"required,alphanum,max=20"`
}

// CreateSubject handles POST /v1/school/subjects
func (h *Handler) CreateSubject(w http.ResponseWriter, r *http.Request) {
	var req SubjectRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	s := &domain.Subject{Name: auth.SanitizeName(req.Name), Code: req.Code}
	if err := store.Subjects.Create(r.Context(), s); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, s)
}

// ListSubjects handles GET /v1/school/subjects
func (h *Handler) ListSubjects(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	subjects, err := store.Subjects.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, subjects)
}
