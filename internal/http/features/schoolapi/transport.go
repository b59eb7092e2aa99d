package schoolapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
)

// RouteRequest creates a bus route.
type RouteRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	VehicleNo   string `json:"vehicle_no" validate:"max=30"`
	DriverName  string `json:"driver_name" validate:"max=100"`
	DriverPhone string `json:"driver_phone" validate:"omitempty,e164"`
	FeeCents    int64  `json:"fee_cents" validate:"gte=0"`
}

// CreateRoute handles POST /v1/school/transport/routes
func (h *Handler) CreateRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	rt := &domain.TransportRoute{
		Name:        auth.SanitizeName(req.Name),
		VehicleNo:   auth.SanitizeText(req.VehicleNo),
		DriverName:  auth.SanitizeName(req.DriverName),
		DriverPhone: req.DriverPhone,
		FeeCents:    req.FeeCents,
	}
	if err := store.Transport.CreateRoute(r.Context(), rt); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, rt)
}

// ListRoutes handles GET /v1/school/transport/routes
func (h *Handler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	routes, err := store.Transport.ListRoutes(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, routes)
}

// AssignRequest puts a student on a route. A student rides one route;
// assigning again moves them.
type AssignRequest struct {
	RouteID     uuid.UUID `json:"route_id" validate:"required"`
	StudentID   uuid.UUID `json:"student_id" validate:"required"`
	PickupPoint string    `json:"pickup_point" validate:"max=200"`
}

// AssignTransport handles POST /v1/school/transport/assignments
func (h *Handler) AssignTransport(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	a := &domain.TransportAssignment{
		RouteID:   req.RouteID,
		StudentID: req.StudentID,
		PickupAt:  auth.SanitizeText(req.PickupPoint),
	}
	if err := store.Transport.Assign(r.Context(), a); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, a)
}

// ListAssignments handles GET /v1/school/transport/assignments?route_id=
func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	routeID, ok := h.queryID(w, r, "route_id")
	if !ok {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	assignments, err := store.Transport.ListAssignments(r.Context(), routeID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, assignments)
}
