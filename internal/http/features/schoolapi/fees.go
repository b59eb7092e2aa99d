package schoolapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
)

// FeeStructureRequest defines a charge. Without class_id it applies to
// every class.
type FeeStructureRequest struct {
	ClassID     *uuid.UUID `json:"class_id,omitempty"`
	Name        string     `json:"name" validate:"required,max=100"`
	Term        string     `json:"term" validate:"required,max=30"`
	AmountCents int64      `json:"amount_cents" validate:"gt=0"`
	DueDate     string     `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
}

// CreateFeeStructure handles POST /v1/school/fees/structures
func (h *Handler) CreateFeeStructure(w http.ResponseWriter, r *http.Request) {
	var req FeeStructureRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	f := &domain.FeeStructure{
		ClassID:     req.ClassID,
		Name:        auth.SanitizeName(req.Name),
		Term:        auth.SanitizeText(req.Term),
		AmountCents: req.AmountCents,
		DueDate:     optionalDate(req.DueDate),
	}
	if err := store.Fees.CreateStructure(r.Context(), f); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, f)
}

// ListFeeStructures handles GET /v1/school/fees/structures?class_id=&term=
func (h *Handler) ListFeeStructures(w http.ResponseWriter, r *http.Request) {
	classID, ok := h.queryID(w, r, "class_id")
	if !ok {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	fees, err := store.Fees.ListStructures(r.Context(), classID, r.URL.Query().Get("term"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, fees)
}

// PaymentRequest records money received.
type PaymentRequest struct {
	StudentID      uuid.UUID `json:"student_id" validate:"required"`
	FeeStructureID uuid.UUID `json:"fee_structure_id" validate:"required"`
	AmountCents    int64     `json:"amount_cents" validate:"gt=0"`
	Method         string    `json:"method" validate:"required,oneof=cash card bank_transfer cheque online"`
	Reference      string    `json:"reference" validate:"max=100"`
}

// RecordPayment handles POST /v1/school/fees/payments
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	p := &domain.FeePayment{
		StudentID:      req.StudentID,
		FeeStructureID: req.FeeStructureID,
		AmountCents:    req.AmountCents,
		Method:         req.Method,
		Reference:      auth.SanitizeText(req.Reference),
		RecordedBy:     callerID(r),
	}
	if err := store.Fees.RecordPayment(r.Context(), p); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, p)
}

// ListPayments handles GET /v1/school/fees/payments?student_id=
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.queryID(w, r, "student_id")
	if !ok {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	payments, err := store.Fees.ListPayments(r.Context(), studentID, h.page(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, payments)
}

// FeeStatement handles GET /v1/school/students/{id}/fees
func (h *Handler) FeeStatement(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	st, err := store.Fees.Statement(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, st)
}
