package schoolapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/internal/school"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AdmitRequest enrolls a student and creates their login account.
type AdmitRequest struct {
	Email           string    `json:"email" validate:"required,email,max=254"`
	Password        string    `json:"password" validate:"required,min=8,max=128"`
	ClassID         uuid.UUID `json:"class_id" validate:"required"`
	AdmissionNumber string    `json:"admission_number" validate:"required,max=30"`
	FirstName       string    `json:"first_name" validate:"required,max=100"`
	LastName        string    `json:"last_name" validate:"max=100"`
	DateOfBirth     string    `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	GuardianName    string    `json:"guardian_name" validate:"max=100"`
	GuardianPhone   string    `json:"guardian_phone" validate:"omitempty,e164"`
}

// AdmitStudent handles POST /v1/school/students. The account, the student
// and the class headcount change in one transaction.
func (h *Handler) AdmitStudent(w http.ResponseWriter, r *http.Request) {
	var req AdmitRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	s := &domain.Student{
		ClassID:         req.ClassID,
		AdmissionNumber: auth.SanitizeText(req.AdmissionNumber),
		FirstName:       auth.SanitizeName(req.FirstName),
		LastName:        auth.SanitizeName(req.LastName),
		DateOfBirth:     optionalDate(req.DateOfBirth),
		GuardianName:    auth.SanitizeName(req.GuardianName),
		GuardianPhone:   req.GuardianPhone,
	}
	user, err := h.newUser(req.Email, s.FullName(), domain.SchoolRoleStudent, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := store.Students.Admit(r.Context(), user, s); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, s)
}

func (h *Handler) studentFilter(w http.ResponseWriter, r *http.Request) (school.StudentFilter, bool) {
	classID, ok := h.queryID(w, r, "class_id")
	if !ok {
		return school.StudentFilter{}, false
	}
	status := domain.StudentStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.StudentActive, domain.StudentWithdrawn, domain.StudentGraduated:
	default:
		h.fail(w, r, domain.ErrInvalidInput)
		return school.StudentFilter{}, false
	}
	return school.StudentFilter{
		ClassID: classID,
		Status:  status,
		Search:  r.URL.Query().Get("q"),
		Page:    h.page(r),
	}, true
}

// ListStudents handles GET /v1/school/students?class_id=&status=&q=
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	f, ok := h.studentFilter(w, r)
	if !ok {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	students, err := store.Students.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, students)
}

// GetStudent handles GET /v1/school/students/{id}
func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	s, err := store.Students.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, s)
}

// UpdateStudentRequest replaces a student's editable details. Changing
// class_id moves the student and the headcount.
type UpdateStudentRequest struct {
	ClassID       uuid.UUID `json:"class_id" validate:"required"`
	FirstName     string    `json:"first_name" validate:"required,max=100"`
	LastName      string    `json:"last_name" validate:"max=100"`
	DateOfBirth   string    `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	GuardianName  string    `json:"guardian_name" validate:"max=100"`
	GuardianPhone string    `json:"guardian_phone" validate:"omitempty,e164"`
}

// UpdateStudent handles PUT /v1/school/students/{id}
func (h *Handler) UpdateStudent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateStudentRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	s := &domain.Student{
		ID:            id,
		ClassID:       req.ClassID,
		FirstName:     auth.SanitizeName(req.FirstName),
		LastName:      auth.SanitizeName(req.LastName),
		DateOfBirth:   optionalDate(req.DateOfBirth),
		GuardianName:  auth.SanitizeName(req.GuardianName),
		GuardianPhone: req.GuardianPhone,
	}
	if err := store.Students.Update(r.Context(), s); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, s)
}

// WithdrawStudent handles POST /v1/school/students/{id}/withdraw. Only
// active students can be withdrawn.
func (h *Handler) WithdrawStudent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	s, err := store.Students.Withdraw(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, s)
}

// ExportStudents handles GET /v1/school/students/export. It accepts the
// same filters as ListStudents and ignores paging.
func (h *Handler) ExportStudents(w http.ResponseWriter, r *http.Request) {
	f, ok := h.studentFilter(w, r)
	if !ok {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	students, err := store.Students.ListAll(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	names, err := classNames(r.Context(), store)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	body, err := school.RosterXLSX(students, names)
	if err != nil {
		h.fail(w, r, fmt.Errorf("failed to render roster: %w", err))
		return
	}

	filename := fmt.Sprintf("students-%s.xlsx", time.Now().UTC().Format("20060102"))
	httputil.Attachment(w, xlsxContentType, filename, body)
}

// classNames maps every class id to "Name Section".
func classNames(ctx context.Context, store *school.Store) (map[string]string, error) {
	const batch = 200
	names := make(map[string]string)
	for offset := 0; ; offset += batch {
		classes, err := store.Classes.List(ctx, school.Page{Limit: batch, Offset: offset})
		if err != nil {
			return nil, err
		}
		for _, c := range classes {
			name := c.Name
			if c.Section != "" {
				name += " " + c.Section
			}
			names[c.ID.String()] = name
		}
		if len(classes) < batch {
			return names, nil
		}
	}
}
