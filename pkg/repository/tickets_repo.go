package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/tendant/school-crm/pkg/domain"
)

// TicketsRepository handles support tickets raised by schools.
type TicketsRepository struct {
	db *sql.DB
}

// NewTicketsRepository creates a new tickets repository.
func NewTicketsRepository(db *sql.DB) *TicketsRepository {
	return &TicketsRepository{db: db}
}

const ticketColumns = `id, tenant_id, opened_by, subject, body, priority, status, assigned_to, created_at, updated_at`

// TicketFilter narrows a ticket listing. Empty fields match everything.
type TicketFilter struct {
	TenantID string
	Status   domain.TicketStatus
}

// Create inserts a ticket.
func (r *TicketsRepository) Create(ctx context.Context, t *domain.SupportTicket) error {
	query := `
		INSERT INTO support_tickets (id, tenant_id, opened_by, subject, body, priority, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.TenantID, t.OpenedBy, t.Subject, t.Body, t.Priority, t.Status, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

// GetByID retrieves a ticket.
func (r *TicketsRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.SupportTicket, error) {
	query := `SELECT ` + ticketColumns + ` FROM support_tickets WHERE id = $1`
	return scanTicket(r.db.QueryRowContext(ctx, query, id))
}

// List returns tickets matching the filter, newest first.
func (r *TicketsRepository) List(ctx context.Context, f TicketFilter) ([]*domain.SupportTicket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM support_tickets
		WHERE ($1::text = '' OR tenant_id = $1)
		  AND ($2::text = '' OR status = $2)
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, f.TenantID, string(f.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []*domain.SupportTicket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// Update changes a ticket's status and assignee.
func (r *TicketsRepository) Update(ctx context.Context, id uuid.UUID, status domain.TicketStatus, assignedTo *uuid.UUID) error {
	query := `
		UPDATE support_tickets
		SET status = $2, assigned_to = $3, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, status, assignedTo)
	if err != nil {
		return err
	}
	return expectOne(result, domain.ErrNotFound)
}

func scanTicket(row rowScanner) (*domain.SupportTicket, error) {
	var t domain.SupportTicket
	err := row.Scan(
		&t.ID, &t.TenantID, &t.OpenedBy, &t.Subject, &t.Body, &t.Priority,
		&t.Status, &t.AssignedTo, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err, domain.ErrNotFound)
	}
	return &t, nil
}
