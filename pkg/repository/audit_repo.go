package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/school-crm/pkg/domain"
)

// AuditRepository appends to and reads the platform audit log.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record appends an entry. details is marshalled to JSON.
func (r *AuditRepository) Record(ctx context.Context, actorID *uuid.UUID, action string, tenantID *string, details any) error {
	var raw []byte
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return err
		}
		raw = b
	}
	query := `
		INSERT INTO audit_log (id, actor_id, action, tenant_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, uuid.New(), actorID, action, tenantID, nullJSON(raw), time.Now())
	return err
}

// List returns the most recent entries, optionally for one tenant.
func (r *AuditRepository) List(ctx context.Context, tenantID string, limit int) ([]*domain.AuditEntry, error) {
	query := `
		SELECT id, actor_id, action, tenant_id, details, created_at
		FROM audit_log
		WHERE ($1::text = '' OR tenant_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		e := &domain.AuditEntry{}
		var details []byte
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.TenantID, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Details = details
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
