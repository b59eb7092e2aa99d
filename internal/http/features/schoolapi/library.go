package schoolapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
)

// defaultLoanPeriod applies when an issue request has no due date.
const defaultLoanPeriod = 14 * 24 * time.Hour

// BookRequest adds a title to the catalogue.
type BookRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Author      string `json:"author" validate:"max=200"`
	ISBN        string `json:"isbn" validate:"omitempty,isbn"`
	TotalCopies int    `json:"total_copies" validate:"gt=0,lte=10000"`
}

// AddBook handles POST /v1/school/library/books
func (h *Handler) AddBook(w http.ResponseWriter, r *http.Request) {
	var req BookRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	b := &domain.Book{
		Title:       auth.SanitizeText(req.Title),
		Author:      auth.SanitizeName(req.Author),
		ISBN:        req.ISBN,
		TotalCopies: req.TotalCopies,
	}
	if err := store.Library.AddBook(r.Context(), b); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, b)
}

// ListBooks handles GET /v1/school/library/books?q=
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	books, err := store.Library.ListBooks(r.Context(), r.URL.Query().Get("q"), h.page(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, books)
}

// IssueRequest lends a book to a student.
type IssueRequest struct {
	BookID    uuid.UUID `json:"book_id" validate:"required"`
	StudentID uuid.UUID `json:"student_id" validate:"required"`
	DueAt     string    `json:"due_at" validate:"omitempty,datetime=2006-01-02"`
}

// IssueBook handles POST /v1/school/library/issues. It fails with 409
// when no copy is on the shelf.
func (h *Handler) IssueBook(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	due := time.Now().Add(defaultLoanPeriod)
	if d := optionalDate(req.DueAt); d != nil {
		if !d.After(time.Now()) {
			h.fail(w, r, domain.ErrInvalidInput)
			return
		}
		due = *d
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	issue, err := store.Library.Issue(r.Context(), req.BookID, req.StudentID, due)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, issue)
}

// ReturnBook handles POST /v1/school/library/issues/{id}/return
func (h *Handler) ReturnBook(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	issue, err := store.Library.Return(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, issue)
}

// ListIssues handles GET /v1/school/library/issues?student_id=&outstanding=true
func (h *Handler) ListIssues(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.queryID(w, r, "student_id")
	if !ok {
		return
	}
	outstanding := r.URL.Query().Get("outstanding") == "true"
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	issues, err := store.Library.ListIssues(r.Context(), studentID, outstanding, h.page(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, issues)
}
