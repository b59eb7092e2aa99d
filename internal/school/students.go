package school

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tendant/school-crm/pkg/domain"
)

// StudentsRepository stores students and keeps class headcounts in step.
type StudentsRepository struct {
	db *sqlx.DB
}

const studentColumns = `id, user_id, class_id, admission_number, first_name, last_name, date_of_birth,
	guardian_name, guardian_phone, status, created_at, updated_at`

// StudentFilter narrows List.
type StudentFilter struct {
	ClassID *uuid.UUID
	Status  domain.StudentStatus
	// Search matches name or admission number, case-insensitively.
	Search string
	Page   Page
}

// Admit creates the student's login account, the student record, and
// increments the class headcount in one transaction.
func (r *StudentsRepository) Admit(ctx context.Context, user *domain.SchoolUser, s *domain.Student) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := reserveSeat(ctx, tx, s.ClassID); err != nil {
			return err
		}
		if err := insertUser(ctx, tx, user); err != nil {
			return err
		}

		s.ID = uuid.New()
		s.UserID = user.ID
		s.Status = domain.StudentActive
		now := time.Now()
		s.CreatedAt, s.UpdatedAt = now, now
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO students (`+studentColumns+`)
			VALUES (:id, :user_id, :class_id, :admission_number, :first_name, :last_name, :date_of_birth,
				:guardian_name, :guardian_phone, :status, :created_at, :updated_at)`, s)
		return mapError(err, domain.ErrNotFound)
	})
}

// reserveSeat locks the class row and bumps its headcount, refusing when
// the class is full. A capacity of zero means unlimited.
func reserveSeat(ctx context.Context, tx *sqlx.Tx, classID uuid.UUID) error {
	var c struct {
		Capacity     int `db:"capacity"`
		StudentCount int `db:"student_count"`
	}
	err := tx.GetContext(ctx, &c, `SELECT capacity, student_count FROM classes WHERE id = $1 FOR UPDATE`, classID)
	if err != nil {
		return mapError(err, domain.ErrInvalidReference)
	}
	if c.Capacity > 0 && c.StudentCount >= c.Capacity {
		return domain.ErrClassFull
	}
	_, err = tx.ExecContext(ctx, `UPDATE classes SET student_count = student_count + 1, updated_at = NOW() WHERE id = $1`, classID)
	return err
}

func releaseSeat(ctx context.Context, tx *sqlx.Tx, classID uuid.UUID) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE classes SET student_count = GREATEST(student_count - 1, 0), updated_at = NOW() WHERE id = $1`, classID)
	return err
}

// Get returns a student by id.
func (r *StudentsRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Student, error) {
	var s domain.Student
	if err := r.db.GetContext(ctx, &s, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id); err != nil {
		return nil, mapError(err, domain.ErrNotFound)
	}
	return &s, nil
}

// List returns students matching f ordered by name.
func (r *StudentsRepository) List(ctx context.Context, f StudentFilter) ([]domain.Student, error) {
	return selectAll[domain.Student](ctx, r.db, f.Page.apply(r.listQuery(f)))
}

// ListAll returns every student matching f, ignoring paging. Used by
// exports.
func (r *StudentsRepository) ListAll(ctx context.Context, f StudentFilter) ([]domain.Student, error) {
	return selectAll[domain.Student](ctx, r.db, r.listQuery(f))
}

func (r *StudentsRepository) listQuery(f StudentFilter) sq.SelectBuilder {
	b := psql.Select(studentColumns).From("students").OrderBy("last_name", "first_name", "id")
	if f.ClassID != nil {
		b = b.Where(sq.Eq{"class_id": *f.ClassID})
	}
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": f.Status})
	}
	if f.Search != "" {
		like := containsPattern(f.Search)
		b = b.Where(sq.Or{
			sq.ILike{"first_name": like},
			sq.ILike{"last_name": like},
			sq.ILike{"admission_number": like},
		})
	}
	return b
}

// Update changes a student's details. Moving the student to another class
// moves the headcount with it.
func (r *StudentsRepository) Update(ctx context.Context, s *domain.Student) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var current domain.Student
		err := tx.GetContext(ctx, &current, `SELECT `+studentColumns+` FROM students WHERE id = $1 FOR UPDATE`, s.ID)
		if err != nil {
			return mapError(err, domain.ErrNotFound)
		}

		if s.ClassID != current.ClassID && current.Status == domain.StudentActive {
			if err := reserveSeat(ctx, tx, s.ClassID); err != nil {
				return err
			}
			if err := releaseSeat(ctx, tx, current.ClassID); err != nil {
				return err
			}
		}

		s.UserID = current.UserID
		s.AdmissionNumber = current.AdmissionNumber
		s.Status = current.Status
		s.CreatedAt = current.CreatedAt
		s.UpdatedAt = time.Now()
		_, err = tx.NamedExecContext(ctx, `
			UPDATE students SET class_id = :class_id, first_name = :first_name, last_name = :last_name,
				date_of_birth = :date_of_birth, guardian_name = :guardian_name,
				guardian_phone = :guardian_phone, updated_at = :updated_at
			WHERE id = :id`, s)
		return mapError(err, domain.ErrNotFound)
	})
}

// Withdraw marks an active student withdrawn and frees the class seat.
func (r *StudentsRepository) Withdraw(ctx context.Context, id uuid.UUID) (*domain.Student, error) {
	var s domain.Student
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &s, `
			UPDATE students SET status = $2, updated_at = NOW()
			WHERE id = $1 AND status = $3
			RETURNING `+studentColumns,
			id, domain.StudentWithdrawn, domain.StudentActive)
		if err != nil {
			return mapError(err, domain.ErrNotFound)
		}
		return releaseSeat(ctx, tx, s.ClassID)
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}
