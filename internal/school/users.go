package school

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tendant/school-crm/pkg/domain"
)

// UsersRepository stores the login accounts of one school.
type UsersRepository struct {
	db *sqlx.DB
}

const userColumns = `id, email, name, role, password_hash, failed_login_attempts, locked_until, created_at, updated_at`

// Create inserts a user.
func (r *UsersRepository) Create(ctx context.Context, u *domain.SchoolUser) error {
	return insertUser(ctx, r.db, u)
}

func insertUser(ctx context.Context, q sqlx.ExecerContext, u *domain.SchoolUser) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, email, name, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.Name, u.Role, u.PasswordHash, u.CreatedAt, u.UpdatedAt,
	)
	err = mapError(err, domain.ErrNotFound)
	if errors.Is(err, domain.ErrConflict) {
		return domain.ErrUserAlreadyExists
	}
	return err
}

// GetByID returns a user by id.
func (r *UsersRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.SchoolUser, error) {
	var u domain.SchoolUser
	err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, mapError(err, domain.ErrUserNotFound)
	}
	return &u, nil
}

// GetByEmail returns a user by normalized email.
func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (*domain.SchoolUser, error) {
	var u domain.SchoolUser
	err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	if err != nil {
		return nil, mapError(err, domain.ErrUserNotFound)
	}
	return &u, nil
}

// List returns users, optionally restricted to one role.
func (r *UsersRepository) List(ctx context.Context, role domain.SchoolRole, page Page) ([]domain.SchoolUser, error) {
	b := psql.Select(userColumns).From("users").OrderBy("name", "id")
	if role != "" {
		b = b.Where("role = ?", role)
	}
	return selectAll[domain.SchoolUser](ctx, r.db, page.apply(b))
}

// IncrementFailedLoginAttempts records a failed login and locks the
// account once maxAttempts is reached.
func (r *UsersRepository) IncrementFailedLoginAttempts(ctx context.Context, id uuid.UUID, lockoutDuration time.Duration, maxAttempts int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE WHEN failed_login_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
		    updated_at = NOW()
		WHERE id = $1`,
		id, maxAttempts, time.Now().Add(lockoutDuration),
	)
	return err
}

// ResetFailedLoginAttempts clears the failure counter and any lock.
func (r *UsersRepository) ResetFailedLoginAttempts(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET failed_login_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1`, id)
	return err
}
