package schoolapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/internal/school"
	"github.com/tendant/school-crm/pkg/domain"
)

// AttendanceMark is one student's mark on the register.
type AttendanceMark struct {
	StudentID uuid.UUID               `json:"student_id" validate:"required"`
	Status    domain.AttendanceStatus `json:"status" validate:"required,oneof=present absent late excused"`
}

// RegisterRequest marks a class register for one day. Marking the same
// student twice on a day replaces the earlier mark.
type RegisterRequest struct {
	Date    string           `json:"date" validate:"required,datetime=2006-01-02"`
	Entries []AttendanceMark `json:"entries" validate:"required,min=1,max=500,dive"`
}

// MarkAttendance handles PUT /v1/school/classes/{id}/attendance
func (h *Handler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	classID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req RegisterRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	date, err := time.Parse(httputil.DateLayout, req.Date)
	if err != nil {
		h.fail(w, r, domain.ErrInvalidInput)
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	entries := make([]school.RegisterEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		entries = append(entries, school.RegisterEntry{StudentID: e.StudentID, Status: e.Status})
	}
	marks, err := store.Attendance.MarkRegister(r.Context(), classID, date, callerID(r), entries)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, marks)
}

// ListAttendance handles GET /v1/school/classes/{id}/attendance?date=.
// The date defaults to today.
func (h *Handler) ListAttendance(w http.ResponseWriter, r *http.Request) {
	classID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	date, err := httputil.QueryDate(r, "date")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if date.IsZero() {
		date = time.Now().UTC()
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	marks, err := store.Attendance.ListByClass(r.Context(), classID, date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, marks)
}

// AttendanceSummary handles GET /v1/school/students/{id}/attendance?from=&to=
func (h *Handler) AttendanceSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	from, err := httputil.QueryDate(r, "from")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := httputil.QueryDate(r, "to")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		h.fail(w, r, domain.ErrInvalidInput)
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	summary, err := store.Attendance.StudentSummary(r.Context(), id, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, summary)
}
