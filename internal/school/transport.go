package school

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tendant/school-crm/pkg/domain"
)

// TransportRepository stores bus routes and rider assignments.
type TransportRepository struct {
	db *sqlx.DB
}

const (
	routeColumns      = `id, name, vehicle_no, driver_name, driver_phone, fee_cents, created_at`
	assignmentColumns = `id, route_id, student_id, pickup_point, created_at`
)

// CreateRoute inserts a route. Route names are unique.
func (r *TransportRepository) CreateRoute(ctx context.Context, rt *domain.TransportRoute) error {
	rt.ID = uuid.New()
	rt.CreatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transport_routes (`+routeColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rt.ID, rt.Name, rt.VehicleNo, rt.DriverName, rt.DriverPhone, rt.FeeCents, rt.CreatedAt,
	)
	return mapError(err, domain.ErrNotFound)
}

// ListRoutes returns every route by name.
func (r *TransportRepository) ListRoutes(ctx context.Context) ([]domain.TransportRoute, error) {
	return selectAll[domain.TransportRoute](ctx, r.db,
		psql.Select(routeColumns).From("transport_routes").OrderBy("name"))
}

// Assign puts a student on a route. A student rides one route; assigning
// again moves them.
func (r *TransportRepository) Assign(ctx context.Context, a *domain.TransportAssignment) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	err := r.db.GetContext(ctx, &a.ID, `
		INSERT INTO transport_assignments (`+assignmentColumns+`) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id)
		DO UPDATE SET route_id = EXCLUDED.route_id, pickup_point = EXCLUDED.pickup_point
		RETURNING id`,
		a.ID, a.RouteID, a.StudentID, a.PickupAt, a.CreatedAt,
	)
	return mapError(err, domain.ErrNotFound)
}

// ListAssignments returns assignments, optionally for one route.
func (r *TransportRepository) ListAssignments(ctx context.Context, routeID *uuid.UUID) ([]domain.TransportAssignment, error) {
	b := psql.Select(assignmentColumns).From("transport_assignments").OrderBy("created_at", "id")
	if routeID != nil {
		b = b.Where(sq.Eq{"route_id": *routeID})
	}
	return selectAll[domain.TransportAssignment](ctx, r.db, b)
}
