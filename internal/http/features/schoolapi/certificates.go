package schoolapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
)

// CertificateRequest issues a document. The serial number is generated
// when omitted.
type CertificateRequest struct {
	StudentID uuid.UUID `json:"student_id" validate:"required"`
	Kind      string    `json:"kind" validate:"required,oneof=transfer character bonafide completion merit"`
	SerialNo  string    `json:"serial_no" validate:"max=40"`
	Remarks   string    `json:"remarks" validate:"max=500"`
}

// IssueCertificate handles POST /v1/school/certificates
func (h *Handler) IssueCertificate(w http.ResponseWriter, r *http.Request) {
	var req CertificateRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	c := &domain.Certificate{
		StudentID: req.StudentID,
		Kind:      req.Kind,
		SerialNo:  auth.SanitizeText(req.SerialNo),
		IssuedBy:  callerID(r),
		Remarks:   auth.SanitizeText(req.Remarks),
	}
	if err := store.Certificates.Issue(r.Context(), c); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, c)
}

// ListCertificates handles GET /v1/school/certificates?student_id=
func (h *Handler) ListCertificates(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.queryID(w, r, "student_id")
	if !ok {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	certs, err := store.Certificates.List(r.Context(), studentID, h.page(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, certs)
}
