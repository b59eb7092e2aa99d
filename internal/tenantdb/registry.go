package tenantdb

import (
	"context"

	"github.com/tendant/school-crm/pkg/domain"
)

// Registry looks tenants up in the platform database.
// *repository.TenantsRepository satisfies it.
type Registry interface {
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
	GetBySubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error)
}

// Invalidator drops any cached copy of a tenant after its record changed.
type Invalidator interface {
	Invalidate(ctx context.Context, tenant *domain.Tenant) error
}
