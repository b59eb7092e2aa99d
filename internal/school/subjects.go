package school

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tendant/school-crm/pkg/domain"
)

// SubjectsRepository stores subjects.
type SubjectsRepository struct {
	db *sqlx.DB
}

// Create inserts a subject. Codes are stored upper case.
func (r *SubjectsRepository) Create(ctx context.Context, s *domain.Subject) error {
	s.ID = uuid.New()
	s.Code = strings.ToUpper(strings.TrimSpace(s.Code))
	s.CreatedAt = time.Now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subjects (id, name, code, created_at) VALUES ($1, $2, $3, $4)`,
		s.ID, s.Name, s.Code, s.CreatedAt,
	)
	return mapError(err, domain.ErrNotFound)
}

// List returns all subjects ordered by code.
func (r *SubjectsRepository) List(ctx context.Context) ([]domain.Subject, error) {
	return selectAll[domain.Subject](ctx, r.db,
		psql.Select("id", "name", "code", "created_at").From("subjects").OrderBy("code"))
}
