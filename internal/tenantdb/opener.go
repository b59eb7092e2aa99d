package tenantdb

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/tendant/school-crm/pkg/domain"
	"github.com/tendant/school-crm/pkg/repository"
)

// Opener builds a connection pool for one tenant database. Implementations
// must not contact the database: a missing or unreachable database is
// reported by the first query, not by Open.
type Opener interface {
	Open(ctx context.Context, tenant *domain.Tenant) (*sqlx.DB, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, tenant *domain.Tenant) (*sqlx.DB, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, tenant *domain.Tenant) (*sqlx.DB, error) {
	return f(ctx, tenant)
}

// ServerConfig describes the PostgreSQL server hosting school databases and
// the pool limits applied to each school.
type ServerConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
}

// DSN returns the connection string for dbName on this server.
func (c ServerConfig) DSN(dbName string) string {
	return repository.Config{
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		SSLMode:  c.SSLMode,
	}.DSN(dbName)
}

// PostgresOpener opens school databases with lib/pq.
type PostgresOpener struct {
	Server ServerConfig
}

// NewPostgresOpener creates an opener for the given server.
func NewPostgresOpener(server ServerConfig) *PostgresOpener {
	return &PostgresOpener{Server: server}
}

// Open returns an unconnected pool for the tenant's stored database name.
func (o *PostgresOpener) Open(_ context.Context, tenant *domain.Tenant) (*sqlx.DB, error) {
	if tenant.DatabaseName == "" {
		return nil, fmt.Errorf("tenant %s has no database name: %w", tenant.ID, domain.ErrTenantNotProvisioned)
	}
	db, err := sqlx.Open("postgres", o.Server.DSN(tenant.DatabaseName))
	if err != nil {
		return nil, fmt.Errorf("open tenant database %s: %w", tenant.DatabaseName, err)
	}
	if o.Server.MaxOpenConns > 0 {
		db.SetMaxOpenConns(o.Server.MaxOpenConns)
	}
	if o.Server.MaxIdleConns > 0 {
		db.SetMaxIdleConns(o.Server.MaxIdleConns)
	}
	if o.Server.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(o.Server.ConnMaxIdleTime)
	}
	return db, nil
}
