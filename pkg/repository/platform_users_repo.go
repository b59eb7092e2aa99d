package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/school-crm/pkg/domain"
)

// PlatformUsersRepository handles platform operator persistence.
type PlatformUsersRepository struct {
	db *sql.DB
}

// NewPlatformUsersRepository creates a new platform users repository.
func NewPlatformUsersRepository(db *sql.DB) *PlatformUsersRepository {
	return &PlatformUsersRepository{db: db}
}

const platformUserColumns = `id, email, name, role, password_hash, mfa_enabled, mfa_secret_encrypted,
		       failed_login_attempts, locked_until, created_at, updated_at`

// Create inserts a new platform user.
func (r *PlatformUsersRepository) Create(ctx context.Context, user *domain.PlatformUser) error {
	query := `
		INSERT INTO platform_users (id, email, name, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Name, user.Role, user.PasswordHash, user.CreatedAt, user.UpdatedAt,
	)
	if IsUniqueViolation(err) {
		return domain.ErrUserAlreadyExists
	}
	return err
}

// GetByID retrieves a platform user by ID.
func (r *PlatformUsersRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PlatformUser, error) {
	query := `SELECT ` + platformUserColumns + ` FROM platform_users WHERE id = $1`
	return scanPlatformUser(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a platform user by email.
func (r *PlatformUsersRepository) GetByEmail(ctx context.Context, email string) (*domain.PlatformUser, error) {
	query := `SELECT ` + platformUserColumns + ` FROM platform_users WHERE email = $1`
	return scanPlatformUser(r.db.QueryRowContext(ctx, query, email))
}

// List returns all platform users ordered by creation time.
func (r *PlatformUsersRepository) List(ctx context.Context) ([]*domain.PlatformUser, error) {
	query := `SELECT ` + platformUserColumns + ` FROM platform_users ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.PlatformUser
	for rows.Next() {
		u, err := scanPlatformUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// IncrementFailedLoginAttempts bumps the failure counter and locks the
// account once maxAttempts is reached.
func (r *PlatformUsersRepository) IncrementFailedLoginAttempts(ctx context.Context, userID uuid.UUID, lockoutDuration time.Duration, maxAttempts int) error {
	query := `
		UPDATE platform_users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= $2 THEN $3
		        ELSE locked_until
		    END,
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, userID, maxAttempts, time.Now().Add(lockoutDuration))
	return err
}

// ResetFailedLoginAttempts resets the failed login attempts and clears lockout.
func (r *PlatformUsersRepository) ResetFailedLoginAttempts(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE platform_users
		SET failed_login_attempts = 0,
		    locked_until = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

// SetMFASecret stores a pending (not yet enabled) encrypted TOTP secret.
func (r *PlatformUsersRepository) SetMFASecret(ctx context.Context, userID uuid.UUID, encrypted *string) error {
	query := `
		UPDATE platform_users
		SET mfa_secret_encrypted = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, userID, encrypted)
	if err != nil {
		return err
	}
	return expectOne(result, domain.ErrUserNotFound)
}

// UpdateMFAEnabled toggles MFA. Disabling also clears the stored secret.
func (r *PlatformUsersRepository) UpdateMFAEnabled(ctx context.Context, userID uuid.UUID, enabled bool) error {
	query := `
		UPDATE platform_users
		SET mfa_enabled = $2,
		    mfa_secret_encrypted = CASE WHEN $2 THEN mfa_secret_encrypted ELSE NULL END,
		    updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, userID, enabled)
	if err != nil {
		return err
	}
	return expectOne(result, domain.ErrUserNotFound)
}

func scanPlatformUser(row rowScanner) (*domain.PlatformUser, error) {
	var u domain.PlatformUser
	err := row.Scan(
		&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &u.MFAEnabled, &u.MFASecretEncrypted,
		&u.FailedLoginAttempts, &u.LockedUntil, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err, domain.ErrUserNotFound)
	}
	return &u, nil
}
