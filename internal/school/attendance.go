package school

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tendant/school-crm/pkg/domain"
)

// AttendanceRepository stores daily register marks.
type AttendanceRepository struct {
	db *sqlx.DB
}

const attendanceColumns = `id, student_id, class_id, date, status, marked_by, created_at`

// RegisterEntry is one student's mark on a class register.
type RegisterEntry struct {
	StudentID uuid.UUID
	Status    domain.AttendanceStatus
}

// MarkRegister upserts the marks for a class on date in one transaction.
// Re-marking a student on the same day replaces the earlier mark. Every
// student must belong to the class, and a mark already taken on another
// class's register is left alone; either case fails the whole register
// with ErrInvalidReference.
func (r *AttendanceRepository) MarkRegister(ctx context.Context, classID uuid.UUID, date time.Time, markedBy uuid.UUID, entries []RegisterEntry) ([]domain.Attendance, error) {
	day := date.Truncate(24 * time.Hour)
	out := make([]domain.Attendance, 0, len(entries))
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		now := time.Now()
		for _, e := range entries {
			a := domain.Attendance{
				ID:        uuid.New(),
				StudentID: e.StudentID,
				ClassID:   classID,
				Date:      day,
				Status:    e.Status,
				MarkedBy:  markedBy,
				CreatedAt: now,
			}
			err := tx.GetContext(ctx, &a.ID, `
				INSERT INTO attendance (`+attendanceColumns+`)
				SELECT $1::uuid, s.id, s.class_id, $4::date, $5::text, $6::uuid, $7::timestamptz
				FROM students s
				WHERE s.id = $2 AND s.class_id = $3
				ON CONFLICT (student_id, date)
				DO UPDATE SET status = EXCLUDED.status, marked_by = EXCLUDED.marked_by
				WHERE attendance.class_id = EXCLUDED.class_id
				RETURNING id`,
				a.ID, a.StudentID, a.ClassID, a.Date, a.Status, a.MarkedBy, a.CreatedAt,
			)
			if err != nil {
				return mapError(err, domain.ErrInvalidReference)
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByClass returns the register of a class on date.
func (r *AttendanceRepository) ListByClass(ctx context.Context, classID uuid.UUID, date time.Time) ([]domain.Attendance, error) {
	return selectAll[domain.Attendance](ctx, r.db,
		psql.Select(attendanceColumns).From("attendance").
			Where(sq.Eq{"class_id": classID, "date": date.Truncate(24 * time.Hour)}).
			OrderBy("student_id"))
}

// StudentSummary counts a student's marks between from and to inclusive.
// Zero times leave that end open.
func (r *AttendanceRepository) StudentSummary(ctx context.Context, studentID uuid.UUID, from, to time.Time) (*domain.AttendanceSummary, error) {
	b := psql.Select(
		"COUNT(*) FILTER (WHERE status = 'present') AS present",
		"COUNT(*) FILTER (WHERE status = 'absent') AS absent",
		"COUNT(*) FILTER (WHERE status = 'late') AS late",
		"COUNT(*) FILTER (WHERE status = 'excused') AS excused",
	).From("attendance").Where(sq.Eq{"student_id": studentID})
	if !from.IsZero() {
		b = b.Where(sq.GtOrEq{"date": from})
	}
	if !to.IsZero() {
		b = b.Where(sq.LtOrEq{"date": to})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	s := domain.AttendanceSummary{StudentID: studentID}
	if err := r.db.GetContext(ctx, &s, query, args...); err != nil {
		return nil, err
	}
	return &s, nil
}
