package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/tendant/school-crm/pkg/domain"
)

// TenantsRepository is the tenant registry in the platform database.
type TenantsRepository struct {
	db *sql.DB
}

// NewTenantsRepository creates a new tenants repository.
func NewTenantsRepository(db *sql.DB) *TenantsRepository {
	return &TenantsRepository{db: db}
}

const tenantColumns = `id, name, subdomain, database_name, status, contact_email, created_at, updated_at`

// Create inserts a new tenant.
func (r *TenantsRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	return r.CreateTx(ctx, r.db, tenant)
}

// CreateTx inserts a new tenant using q.
func (r *TenantsRepository) CreateTx(ctx context.Context, q Querier, tenant *domain.Tenant) error {
	query := `
		INSERT INTO tenants (id, name, subdomain, database_name, status, contact_email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := q.ExecContext(ctx, query,
		tenant.ID,
		tenant.Name,
		tenant.Subdomain,
		tenant.DatabaseName,
		tenant.Status,
		tenant.ContactEmail,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)
	if IsUniqueViolation(err) {
		return domain.ErrTenantExists
	}
	return err
}

// GetByID retrieves a tenant by ID.
func (r *TenantsRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	return scanTenant(r.db.QueryRowContext(ctx, query, id))
}

// GetBySubdomain retrieves a tenant by its public subdomain.
func (r *TenantsRepository) GetBySubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE subdomain = $1`
	return scanTenant(r.db.QueryRowContext(ctx, query, subdomain))
}

// List returns tenants, optionally restricted to one status, newest first.
func (r *TenantsRepository) List(ctx context.Context, status domain.TenantStatus, limit, offset int) ([]*domain.Tenant, error) {
	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		WHERE ($1::text = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []*domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// UpdateStatus moves a tenant to a new lifecycle state. When from is
// given, the row only changes if its current status is one of them;
// otherwise ErrTenantTransition is returned.
func (r *TenantsRepository) UpdateStatus(ctx context.Context, id string, to domain.TenantStatus, from ...domain.TenantStatus) error {
	if len(from) == 0 {
		result, err := r.db.ExecContext(ctx,
			`UPDATE tenants SET status = $2, updated_at = NOW() WHERE id = $1`, id, to)
		if err != nil {
			return err
		}
		return expectOne(result, domain.ErrTenantNotFound)
	}

	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}
	query := `
		UPDATE tenants
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`
	result, err := r.db.ExecContext(ctx, query, id, to, pq.Array(allowed))
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrTenantNotFound
	}
	return domain.ErrTenantTransition
}

// Delete physically removes a tenant record.
func (r *TenantsRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(result, domain.ErrTenantNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (*domain.Tenant, error) {
	var t domain.Tenant
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Subdomain,
		&t.DatabaseName,
		&t.Status,
		&t.ContactEmail,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err, domain.ErrTenantNotFound)
	}
	return &t, nil
}
