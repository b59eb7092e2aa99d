package school

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tendant/school-crm/pkg/domain"
)

// TimetableRepository stores weekly timetable slots.
type TimetableRepository struct {
	db *sqlx.DB
}

const slotColumns = `id, class_id, subject_id, teacher_id, day_of_week, starts_at, ends_at, room`

// AddSlot inserts a slot. A class cannot have two slots starting at the
// same time on the same day.
func (r *TimetableRepository) AddSlot(ctx context.Context, s *domain.TimetableSlot) error {
	s.ID = uuid.New()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO timetable_slots (`+slotColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.ClassID, s.SubjectID, s.TeacherID, s.DayOfWeek, s.StartsAt, s.EndsAt, s.Room,
	)
	return mapError(err, domain.ErrNotFound)
}

// ListByClass returns a class's week in day and time order.
func (r *TimetableRepository) ListByClass(ctx context.Context, classID uuid.UUID) ([]domain.TimetableSlot, error) {
	return selectAll[domain.TimetableSlot](ctx, r.db,
		psql.Select(slotColumns).From("timetable_slots").
			Where(sq.Eq{"class_id": classID}).OrderBy("day_of_week", "starts_at"))
}

// DeleteSlot removes a slot.
func (r *TimetableRepository) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM timetable_slots WHERE id = $1`, id)
	return expectOne(res, err, domain.ErrNotFound)
}
