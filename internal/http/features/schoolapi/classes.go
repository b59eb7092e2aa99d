package schoolapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
)

// ClassRequest creates or replaces a class. A capacity of zero means
// unlimited.
type ClassRequest struct {
	Name      string     `json:"name" validate:"required,max=50"`
	Section   string     `json:"section" validate:"max=20"`
	TeacherID *uuid.UUID `json:"teacher_id,omitempty"`
	Capacity  int        `json:"capacity" validate:"gte=0,lte=1000"`
}

func (req ClassRequest) class() *domain.Class {
	return &domain.Class{
		Name:      auth.SanitizeName(req.Name),
		Section:   auth.SanitizeName(req.Section),
		TeacherID: req.TeacherID,
		Capacity:  req.Capacity,
	}
}

// CreateClass handles POST /v1/school/classes
func (h *Handler) CreateClass(w http.ResponseWriter, r *http.Request) {
	var req ClassRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	c := req.class()
	if err := store.Classes.Create(r.Context(), c); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, c)
}

// ListClasses handles GET /v1/school/classes
func (h *Handler) ListClasses(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	classes, err := store.Classes.List(r.Context(), h.page(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, classes)
}

// GetClass handles GET /v1/school/classes/{id}
func (h *Handler) GetClass(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	c, err := store.Classes.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, c)
}

// UpdateClass handles PUT /v1/school/classes/{id}
func (h *Handler) UpdateClass(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req ClassRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	c := req.class()
	c.ID = id
	if err := store.Classes.Update(r.Context(), c); err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := store.Classes.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, updated)
}

// DeleteClass handles DELETE /v1/school/classes/{id}. Classes that still
// have students, exams or timetable slots cannot be deleted.
func (h *Handler) DeleteClass(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	if err := store.Classes.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
