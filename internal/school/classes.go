package school

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tendant/school-crm/pkg/domain"
)

// ClassesRepository stores classes.
type ClassesRepository struct {
	db *sqlx.DB
}

const classColumns = `id, name, section, teacher_id, capacity, student_count, created_at, updated_at`

// Create inserts a class with no students.
func (r *ClassesRepository) Create(ctx context.Context, c *domain.Class) error {
	c.ID = uuid.New()
	c.StudentCount = 0
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO classes (id, name, section, teacher_id, capacity, student_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7)`,
		c.ID, c.Name, c.Section, c.TeacherID, c.Capacity, c.CreatedAt, c.UpdatedAt,
	)
	return mapError(err, domain.ErrNotFound)
}

// Get returns a class by id.
func (r *ClassesRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Class, error) {
	var c domain.Class
	if err := r.db.GetContext(ctx, &c, `SELECT `+classColumns+` FROM classes WHERE id = $1`, id); err != nil {
		return nil, mapError(err, domain.ErrNotFound)
	}
	return &c, nil
}

// List returns classes ordered by name and section.
func (r *ClassesRepository) List(ctx context.Context, page Page) ([]domain.Class, error) {
	b := psql.Select(classColumns).From("classes").OrderBy("name", "section")
	return selectAll[domain.Class](ctx, r.db, page.apply(b))
}

// Update changes a class's name, section, teacher and capacity. The
// student count is maintained by admissions and withdrawals only.
func (r *ClassesRepository) Update(ctx context.Context, c *domain.Class) error {
	c.UpdatedAt = time.Now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE classes SET name = $2, section = $3, teacher_id = $4, capacity = $5, updated_at = $6
		WHERE id = $1`,
		c.ID, c.Name, c.Section, c.TeacherID, c.Capacity, c.UpdatedAt,
	)
	return expectOne(res, err, domain.ErrNotFound)
}

// Delete removes a class. Classes that still have students, exams or
// timetable slots referencing them cannot be deleted.
func (r *ClassesRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return domain.ErrConflict
	}
	return expectOne(res, err, domain.ErrNotFound)
}
