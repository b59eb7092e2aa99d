package schoolapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
)

// SlotRequest adds a period. Days run 1 (Monday) to 7; times are HH:MM.
type SlotRequest struct {
	ClassID   uuid.UUID  `json:"class_id" validate:"required"`
	SubjectID uuid.UUID  `json:"subject_id" validate:"required"`
	TeacherID *uuid.UUID `json:"teacher_id,omitempty"`
	DayOfWeek int        `json:"day_of_week" validate:"min=1,max=7"`
	StartsAt  string     `json:"starts_at" validate:"required,datetime=15:04"`
	EndsAt    string     `json:"ends_at" validate:"required,datetime=15:04"`
	Room      string     `json:"room" validate:"max=30"`
}

// AddSlot handles POST /v1/school/timetable
func (h *Handler) AddSlot(w http.ResponseWriter, r *http.Request) {
	var req SlotRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	// Zero-padded HH:MM sorts chronologically.
	if req.EndsAt <= req.StartsAt {
		h.fail(w, r, domain.ErrInvalidInput)
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	s := &domain.TimetableSlot{
		ClassID:   req.ClassID,
		SubjectID: req.SubjectID,
		TeacherID: req.TeacherID,
		DayOfWeek: req.DayOfWeek,
		StartsAt:  req.StartsAt,
		EndsAt:    req.EndsAt,
		Room:      auth.SanitizeText(req.Room),
	}
	if err := store.Timetable.AddSlot(r.Context(), s); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, s)
}

// ListTimetable handles GET /v1/school/classes/{id}/timetable
func (h *Handler) ListTimetable(w http.ResponseWriter, r *http.Request) {
	classID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	slots, err := store.Timetable.ListByClass(r.Context(), classID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, slots)
}

// DeleteSlot handles DELETE /v1/school/timetable/{id}
func (h *Handler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	if err := store.Timetable.DeleteSlot(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
