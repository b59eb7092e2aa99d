package tenantdb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/tendant/school-crm/pkg/domain"
)

//go:embed migrations/*.sql
var schoolMigrations embed.FS

// duplicateDatabase is the postgres SQLSTATE for duplicate_database.
const duplicateDatabase = "42P04"

// Provisioner creates, migrates and drops school databases.
type Provisioner struct {
	admin  *sql.DB
	opener Opener
	logger *slog.Logger
}

// NewProvisioner creates a provisioner. admin must be connected to a
// maintenance database on the tenant server with CREATEDB rights.
func NewProvisioner(admin *sql.DB, opener Opener, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{admin: admin, opener: opener, logger: logger}
}

// CreateDatabase creates an empty database named dbName.
func (p *Provisioner) CreateDatabase(ctx context.Context, dbName string) error {
	// CREATE DATABASE takes no bind parameters.
	_, err := p.admin.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(dbName))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == duplicateDatabase {
			return domain.ErrTenantExists
		}
		return fmt.Errorf("create database %s: %w", dbName, err)
	}
	p.logger.Info("tenant database created", "database", dbName)
	return nil
}

// DropDatabase drops dbName, terminating open connections to it.
func (p *Provisioner) DropDatabase(ctx context.Context, dbName string) error {
	_, err := p.admin.ExecContext(ctx, "DROP DATABASE IF EXISTS "+pq.QuoteIdentifier(dbName)+" WITH (FORCE)")
	if err != nil {
		return fmt.Errorf("drop database %s: %w", dbName, err)
	}
	p.logger.Info("tenant database dropped", "database", dbName)
	return nil
}

// Migrate brings tenant's database to the latest school schema.
func (p *Provisioner) Migrate(ctx context.Context, tenant *domain.Tenant) error {
	return p.withDB(ctx, tenant, func(db *sqlx.DB) error {
		return MigrateSchool(ctx, db.DB)
	})
}

// Bootstrap runs fn against tenant's database on a short-lived pool. It
// is used during signup, before the tenant is active and reachable
// through the Router.
func (p *Provisioner) Bootstrap(ctx context.Context, tenant *domain.Tenant, fn func(*sqlx.DB) error) error {
	return p.withDB(ctx, tenant, fn)
}

func (p *Provisioner) withDB(ctx context.Context, tenant *domain.Tenant, fn func(*sqlx.DB) error) error {
	db, err := p.opener.Open(ctx, tenant)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

// MigrateSchool applies the embedded school schema migrations to db.
func MigrateSchool(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(schoolMigrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to migrate school database: %w", err)
	}
	for _, r := range results {
		slog.Debug("school migration applied", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}
