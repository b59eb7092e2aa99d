package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/tendant/school-crm/pkg/domain"
)

// SubscriptionsRepository handles school billing subscriptions.
type SubscriptionsRepository struct {
	db *sql.DB
}

// NewSubscriptionsRepository creates a new subscriptions repository.
func NewSubscriptionsRepository(db *sql.DB) *SubscriptionsRepository {
	return &SubscriptionsRepository{db: db}
}

// Create inserts a subscription.
func (r *SubscriptionsRepository) Create(ctx context.Context, s *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, tenant_id, plan, status, starts_at, ends_at, amount_cents, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.TenantID, s.Plan, s.Status, s.StartsAt, s.EndsAt, s.AmountCents, s.CreatedAt,
	)
	return mapError(err, domain.ErrNotFound)
}

// ListByTenant returns a tenant's subscriptions, newest first.
func (r *SubscriptionsRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Subscription, error) {
	query := `
		SELECT id, tenant_id, plan, status, starts_at, ends_at, amount_cents, created_at
		FROM subscriptions
		WHERE tenant_id = $1
		ORDER BY starts_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		s := &domain.Subscription{}
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Plan, &s.Status, &s.StartsAt, &s.EndsAt, &s.AmountCents, &s.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// Cancel marks an active subscription cancelled.
func (r *SubscriptionsRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE subscriptions
		SET status = $2
		WHERE id = $1 AND status = $3
	`
	result, err := r.db.ExecContext(ctx, query, id, domain.SubscriptionCancelled, domain.SubscriptionActive)
	if err != nil {
		return err
	}
	return expectOne(result, domain.ErrNotFound)
}
