package schoolapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
)

// ExamRequest schedules an exam.
type ExamRequest struct {
	Name      string    `json:"name" validate:"required,max=100"`
	ClassID   uuid.UUID `json:"class_id" validate:"required"`
	SubjectID uuid.UUID `json:"subject_id" validate:"required"`
	HeldOn    string    `json:"held_on" validate:"required,datetime=2006-01-02"`
	MaxMarks  int       `json:"max_marks" validate:"gt=0,lte=1000"`
}

// CreateExam handles POST /v1/school/exams
func (h *Handler) CreateExam(w http.ResponseWriter, r *http.Request) {
	var req ExamRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	heldOn, err := time.Parse(httputil.DateLayout, req.HeldOn)
	if err != nil {
		h.fail(w, r, domain.ErrInvalidInput)
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	e := &domain.Exam{
		Name:      auth.SanitizeName(req.Name),
		ClassID:   req.ClassID,
		SubjectID: req.SubjectID,
		HeldOn:    heldOn,
		MaxMarks:  req.MaxMarks,
	}
	if err := store.Exams.Create(r.Context(), e); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, e)
}

// ListExams handles GET /v1/school/exams?class_id=
func (h *Handler) ListExams(w http.ResponseWriter, r *http.Request) {
	classID, ok := h.queryID(w, r, "class_id")
	if !ok {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	exams, err := store.Exams.List(r.Context(), classID, h.page(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, exams)
}

// ResultEntry is one student's mark.
type ResultEntry struct {
	StudentID uuid.UUID `json:"student_id" validate:"required"`
	Marks     float64   `json:"marks" validate:"gte=0"`
	Grade     string    `json:"grade" validate:"max=5"`
	Remarks   string    `json:"remarks" validate:"max=500"`
}

// ResultsRequest records marks for an exam. Resubmitting a student's mark
// replaces it.
type ResultsRequest struct {
	Results []ResultEntry `json:"results" validate:"required,min=1,max=500,dive"`
}

// RecordResults handles PUT /v1/school/exams/{id}/results
func (h *Handler) RecordResults(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req ResultsRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	exam, err := store.Exams.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	results := make([]domain.ExamResult, 0, len(req.Results))
	for _, e := range req.Results {
		if e.Marks > float64(exam.MaxMarks) {
			httputil.JSON(w, http.StatusBadRequest, httputil.ErrorResponse{
				Error:   "validation failed",
				Details: map[string]string{"Marks": "lte=" + strconv.Itoa(exam.MaxMarks)},
			})
			return
		}
		results = append(results, domain.ExamResult{
			StudentID: e.StudentID,
			Marks:     e.Marks,
			Grade:     auth.SanitizeText(e.Grade),
			Remarks:   auth.SanitizeText(e.Remarks),
		})
	}

	if err := store.Exams.RecordResults(r.Context(), id, results); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, results)
}

// ListResults handles GET /v1/school/exams/{id}/results
func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	results, err := store.Exams.ListResults(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, results)
}
