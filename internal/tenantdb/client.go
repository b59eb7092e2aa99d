package tenantdb

import (
	"context"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/tendant/school-crm/pkg/domain"
)

// Client is a caller's reference to one tenant's database. It must be
// released exactly once; further Release calls are no-ops.
type Client struct {
	tenant domain.Tenant
	h      *handle
	router *Router
	once   sync.Once
}

// DB returns the tenant's pool. It stays usable until Release.
func (c *Client) DB() *sqlx.DB {
	return c.h.db
}

// Tenant returns the registry record the client was acquired for.
func (c *Client) Tenant() domain.Tenant {
	return c.tenant
}

// TenantID returns the tenant identifier.
func (c *Client) TenantID() string {
	return c.tenant.ID
}

// Release returns the reference to the router.
func (c *Client) Release() {
	c.once.Do(func() {
		c.router.release(c.h)
	})
}

type clientKey struct{}

// NewContext returns a copy of ctx carrying c.
func NewContext(ctx context.Context, c *Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// FromContext returns the tenant client stored in ctx, if any.
func FromContext(ctx context.Context) (*Client, bool) {
	c, ok := ctx.Value(clientKey{}).(*Client)
	return c, ok
}
