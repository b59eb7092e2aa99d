package school

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tendant/school-crm/pkg/domain"
)

// TeachersRepository stores teaching staff.
type TeachersRepository struct {
	db *sqlx.DB
}

const teacherColumns = `id, user_id, employee_number, first_name, last_name, phone, subject_id, hired_at, created_at, updated_at`

// Create inserts the teacher's login account and staff record together.
func (r *TeachersRepository) Create(ctx context.Context, user *domain.SchoolUser, t *domain.Teacher) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := insertUser(ctx, tx, user); err != nil {
			return err
		}
		t.ID = uuid.New()
		t.UserID = user.ID
		now := time.Now()
		t.CreatedAt, t.UpdatedAt = now, now
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO teachers (`+teacherColumns+`)
			VALUES (:id, :user_id, :employee_number, :first_name, :last_name, :phone, :subject_id,
				:hired_at, :created_at, :updated_at)`, t)
		return mapError(err, domain.ErrNotFound)
	})
}

// Get returns a teacher by id.
func (r *TeachersRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Teacher, error) {
	var t domain.Teacher
	if err := r.db.GetContext(ctx, &t, `SELECT `+teacherColumns+` FROM teachers WHERE id = $1`, id); err != nil {
		return nil, mapError(err, domain.ErrNotFound)
	}
	return &t, nil
}

// List returns teachers ordered by name.
func (r *TeachersRepository) List(ctx context.Context, page Page) ([]domain.Teacher, error) {
	b := psql.Select(teacherColumns).From("teachers").OrderBy("last_name", "first_name", "id")
	return selectAll[domain.Teacher](ctx, r.db, page.apply(b))
}

// Update changes a teacher's contact details and subject.
func (r *TeachersRepository) Update(ctx context.Context, t *domain.Teacher) error {
	t.UpdatedAt = time.Now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE teachers SET first_name = $2, last_name = $3, phone = $4, subject_id = $5,
			hired_at = $6, updated_at = $7
		WHERE id = $1`,
		t.ID, t.FirstName, t.LastName, t.Phone, t.SubjectID, t.HiredAt, t.UpdatedAt,
	)
	return expectOne(res, err, domain.ErrNotFound)
}

// Delete removes the teacher and their login account.
func (r *TeachersRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var userID uuid.UUID
		err := tx.GetContext(ctx, &userID, `DELETE FROM teachers WHERE id = $1 RETURNING user_id`, id)
		if err != nil {
			return mapError(err, domain.ErrNotFound)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
		return err
	})
}
