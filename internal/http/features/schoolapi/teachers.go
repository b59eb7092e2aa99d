package schoolapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
)

// CreateTeacherRequest hires a teacher and creates their login account.
type CreateTeacherRequest struct {
	Email          string     `json:"email" validate:"required,email,max=254"`
	Password       string     `json:"password" validate:"required,min=8,max=128"`
	EmployeeNumber string     `json:"employee_number" validate:"required,max=30"`
	FirstName      string     `json:"first_name" validate:"required,max=100"`
	LastName       string     `json:"last_name" validate:"max=100"`
	Phone          string     `json:"phone" validate:"omitempty,e164"`
	SubjectID      *uuid.UUID `json:"subject_id,omitempty"`
	HiredAt        string     `json:"hired_at" validate:"omitempty,datetime=2006-01-02"`
}

// CreateTeacher handles POST /v1/school/teachers
func (h *Handler) CreateTeacher(w http.ResponseWriter, r *http.Request) {
	var req CreateTeacherRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	t := &domain.Teacher{
		EmployeeNumber: auth.SanitizeText(req.EmployeeNumber),
		FirstName:      auth.SanitizeName(req.FirstName),
		LastName:       auth.SanitizeName(req.LastName),
		Phone:          req.Phone,
		SubjectID:      req.SubjectID,
		HiredAt:        optionalDate(req.HiredAt),
	}
	name := t.FirstName
	if t.LastName != "" {
		name += " " + t.LastName
	}
	user, err := h.newUser(req.Email, name, domain.SchoolRoleTeacher, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := store.Teachers.Create(r.Context(), user, t); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, t)
}

// ListTeachers handles GET /v1/school/teachers
func (h *Handler) ListTeachers(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	teachers, err := store.Teachers.List(r.Context(), h.page(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, teachers)
}

// GetTeacher handles GET /v1/school/teachers/{id}
func (h *Handler) GetTeacher(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	t, err := store.Teachers.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, t)
}

// UpdateTeacherRequest replaces a teacher's editable details.
type UpdateTeacherRequest struct {
	FirstName string     `json:"first_name" validate:"required,max=100"`
	LastName  string     `json:"last_name" validate:"max=100"`
	Phone     string     `json:"phone" validate:"omitempty,e164"`
	SubjectID *uuid.UUID `json:"subject_id,omitempty"`
	HiredAt   string     `json:"hired_at" validate:"omitempty,datetime=2006-01-02"`
}

// UpdateTeacher handles PUT /v1/school/teachers/{id}
func (h *Handler) UpdateTeacher(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateTeacherRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	t := &domain.Teacher{
		ID:        id,
		FirstName: auth.SanitizeName(req.FirstName),
		LastName:  auth.SanitizeName(req.LastName),
		Phone:     req.Phone,
		SubjectID: req.SubjectID,
		HiredAt:   optionalDate(req.HiredAt),
	}
	if err := store.Teachers.Update(r.Context(), t); err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := store.Teachers.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, updated)
}

// DeleteTeacher handles DELETE /v1/school/teachers/{id}. The teacher's
// login account goes with it.
func (h *Handler) DeleteTeacher(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	if err := store.Teachers.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
