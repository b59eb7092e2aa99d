package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/school-crm/pkg/domain"
)

// SessionsRepository handles refresh session persistence.
type SessionsRepository struct {
	db *sql.DB
}

// NewSessionsRepository creates a new sessions repository.
func NewSessionsRepository(db *sql.DB) *SessionsRepository {
	return &SessionsRepository{db: db}
}

const sessionColumns = `id, user_id, kind, role, tenant_id, email, name, token_hash,
		       created_at, expires_at, revoked_at, last_seen_at, metadata`

// Create creates a new session.
func (r *SessionsRepository) Create(ctx context.Context, session *domain.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, kind, role, tenant_id, email, name, token_hash, created_at, expires_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		session.ID, session.UserID, session.Kind, session.Role, session.TenantID,
		session.Email, session.Name, session.TokenHash,
		session.CreatedAt, session.ExpiresAt, nullJSON(session.Metadata),
	)
	return err
}

// GetByTokenHash retrieves a live session by token hash.
func (r *SessionsRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE token_hash = $1 AND revoked_at IS NULL`
	session := &domain.Session{}
	var metadata []byte
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&session.ID, &session.UserID, &session.Kind, &session.Role, &session.TenantID,
		&session.Email, &session.Name, &session.TokenHash,
		&session.CreatedAt, &session.ExpiresAt, &session.RevokedAt,
		&session.LastSeenAt, &metadata,
	)
	if err != nil {
		return nil, mapError(err, domain.ErrSessionNotFound)
	}
	session.Metadata = metadata
	return session, nil
}

// Revoke revokes a session.
func (r *SessionsRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE sessions
		SET revoked_at = NOW()
		WHERE id = $1 AND revoked_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return expectOne(result, domain.ErrSessionNotFound)
}

// RevokeByTokenHash revokes a session by token hash.
func (r *SessionsRepository) RevokeByTokenHash(ctx context.Context, tokenHash string) error {
	query := `
		UPDATE sessions
		SET revoked_at = NOW()
		WHERE token_hash = $1 AND revoked_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, tokenHash)
	return err
}

// RevokeAllByUser revokes every session of one user of the given kind.
func (r *SessionsRepository) RevokeAllByUser(ctx context.Context, kind domain.SubjectKind, userID uuid.UUID) error {
	query := `
		UPDATE sessions
		SET revoked_at = NOW()
		WHERE user_id = $1 AND kind = $2 AND revoked_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, userID, kind)
	return err
}

// RevokeAllByTenant revokes every school session of a tenant.
func (r *SessionsRepository) RevokeAllByTenant(ctx context.Context, tenantID string) error {
	query := `
		UPDATE sessions
		SET revoked_at = NOW()
		WHERE tenant_id = $1 AND revoked_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, tenantID)
	return err
}

// UpdateLastSeen updates the last_seen_at timestamp.
func (r *SessionsRepository) UpdateLastSeen(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE sessions
		SET last_seen_at = NOW()
		WHERE id = $1 AND revoked_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// DeleteExpired deletes expired sessions older than the given duration.
func (r *SessionsRepository) DeleteExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM sessions
		WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)
	`
	cutoff := time.Now().Add(-olderThan)
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// nullJSON keeps empty metadata out of the jsonb column.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
