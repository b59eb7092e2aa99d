// Package platform implements the operations platform operators run
// against schools: signup, lifecycle changes and purge.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tendant/school-crm/internal/school"
	"github.com/tendant/school-crm/internal/tenantdb"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
)

// TenantStore is the tenant registry in the platform database.
type TenantStore interface {
	Create(ctx context.Context, tenant *domain.Tenant) error
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
	List(ctx context.Context, status domain.TenantStatus, limit, offset int) ([]*domain.Tenant, error)
	UpdateStatus(ctx context.Context, id string, to domain.TenantStatus, from ...domain.TenantStatus) error
	Delete(ctx context.Context, id string) error
}

// DatabaseProvisioner creates and drops school databases.
type DatabaseProvisioner interface {
	CreateDatabase(ctx context.Context, dbName string) error
	DropDatabase(ctx context.Context, dbName string) error
	Migrate(ctx context.Context, tenant *domain.Tenant) error
	Bootstrap(ctx context.Context, tenant *domain.Tenant, fn func(*sqlx.DB) error) error
}

// AuditLog records platform actions.
type AuditLog interface {
	Record(ctx context.Context, actorID *uuid.UUID, action string, tenantID *string, details any) error
}

// SessionRevoker ends every session of a school.
type SessionRevoker interface {
	RevokeTenantSessions(ctx context.Context, tenantID string) error
}

// PoolEvictor drops a school's cached database pool.
type PoolEvictor interface {
	Evict(tenantID string) bool
}

// PasswordHasher checks and hashes new passwords.
type PasswordHasher interface {
	HashNewPassword(password string) (string, error)
}

// TenantService runs the school lifecycle.
type TenantService struct {
	tenants     TenantStore
	provisioner DatabaseProvisioner
	audit       AuditLog
	sessions    SessionRevoker
	pools       PoolEvictor
	cache       tenantdb.Invalidator
	passwords   PasswordHasher
	logger      *slog.Logger
}

// TenantServiceConfig holds the collaborators of a TenantService. Cache
// may be nil when the registry is not cached.
type TenantServiceConfig struct {
	Tenants     TenantStore
	Provisioner DatabaseProvisioner
	Audit       AuditLog
	Sessions    SessionRevoker
	Pools       PoolEvictor
	Cache       tenantdb.Invalidator
	Passwords   PasswordHasher
	Logger      *slog.Logger
}

// NewTenantService creates a tenant service.
func NewTenantService(cfg TenantServiceConfig) *TenantService {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &TenantService{
		tenants:     cfg.Tenants,
		provisioner: cfg.Provisioner,
		audit:       cfg.Audit,
		sessions:    cfg.Sessions,
		pools:       cfg.Pools,
		cache:       cfg.Cache,
		passwords:   cfg.Passwords,
		logger:      cfg.Logger,
	}
}

// SignupRequest describes a new school and its first administrator.
type SignupRequest struct {
	Name          string
	Subdomain     string
	ContactEmail  string
	AdminName     string
	AdminEmail    string
	AdminPassword string
}

// Signup registers a school: it records the tenant, creates and migrates
// its database, creates the school administrator and activates the
// tenant. A failed step removes what earlier steps created.
func (s *TenantService) Signup(ctx context.Context, actor *uuid.UUID, req SignupRequest) (*domain.Tenant, *domain.SchoolUser, error) {
	sub, err := tenantdb.SanitizeSubdomain(req.Subdomain)
	if err != nil {
		return nil, nil, err
	}
	hash, err := s.passwords.HashNewPassword(req.AdminPassword)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	tenant := &domain.Tenant{
		ID:           uuid.NewString(),
		Name:         auth.SanitizeName(req.Name),
		Subdomain:    sub,
		DatabaseName: tenantdb.DatabaseName(sub),
		Status:       domain.TenantStatusProvisioning,
		ContactEmail: auth.NormalizeEmail(req.ContactEmail),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.tenants.Create(ctx, tenant); err != nil {
		return nil, nil, err
	}

	admin := &domain.SchoolUser{
		ID:           uuid.New(),
		Email:        auth.NormalizeEmail(req.AdminEmail),
		Name:         auth.SanitizeName(req.AdminName),
		Role:         domain.SchoolRoleAdmin,
		PasswordHash: hash,
	}
	if err := s.provision(ctx, tenant, admin); err != nil {
		s.undoSignup(tenant, err)
		return nil, nil, err
	}

	if err := s.tenants.UpdateStatus(ctx, tenant.ID, domain.TenantStatusActive, domain.TenantStatusProvisioning); err != nil {
		err = fmt.Errorf("activate tenant: %w", err)
		s.undoSignup(tenant, err)
		return nil, nil, err
	}
	tenant.Status = domain.TenantStatusActive
	s.invalidate(ctx, tenant)
	s.record(ctx, actor, domain.AuditTenantCreated, tenant, map[string]string{
		"subdomain": tenant.Subdomain,
		"database":  tenant.DatabaseName,
	})
	s.logger.Info("tenant signed up", "tenant_id", tenant.ID, "subdomain", tenant.Subdomain)
	return tenant, admin, nil
}

func (s *TenantService) provision(ctx context.Context, tenant *domain.Tenant, admin *domain.SchoolUser) error {
	if err := s.provisioner.CreateDatabase(ctx, tenant.DatabaseName); err != nil {
		return err
	}
	if err := s.provisioner.Migrate(ctx, tenant); err != nil {
		return err
	}
	return s.provisioner.Bootstrap(ctx, tenant, func(db *sqlx.DB) error {
		return school.NewStore(db).Users.Create(ctx, admin)
	})
}

// undoSignup runs on a fresh context so a cancelled request still cleans up.
func (s *TenantService) undoSignup(tenant *domain.Tenant, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Error("tenant signup failed", "tenant_id", tenant.ID, "subdomain", tenant.Subdomain, "error", cause)
	if !errors.Is(cause, domain.ErrTenantExists) {
		if err := s.provisioner.DropDatabase(ctx, tenant.DatabaseName); err != nil {
			s.logger.Error("failed to drop database of failed signup", "database", tenant.DatabaseName, "error", err)
		}
	}
	if err := s.tenants.Delete(ctx, tenant.ID); err != nil {
		s.logger.Error("failed to remove tenant of failed signup", "tenant_id", tenant.ID, "error", err)
	}
	s.invalidate(ctx, tenant)
}

// Get returns a tenant.
func (s *TenantService) Get(ctx context.Context, id string) (*domain.Tenant, error) {
	return s.tenants.GetByID(ctx, id)
}

// List returns tenants, optionally in one status.
func (s *TenantService) List(ctx context.Context, status domain.TenantStatus, limit, offset int) ([]*domain.Tenant, error) {
	if status != "" && !status.Valid() {
		return nil, domain.ErrInvalidInput
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.tenants.List(ctx, status, limit, offset)
}

// Suspend blocks an active school. Its sessions end and its pool closes.
func (s *TenantService) Suspend(ctx context.Context, actor *uuid.UUID, id string) (*domain.Tenant, error) {
	return s.transition(ctx, actor, id, domain.TenantStatusSuspended, domain.AuditTenantSuspended,
		domain.TenantStatusActive)
}

// Activate re-opens a suspended school.
func (s *TenantService) Activate(ctx context.Context, actor *uuid.UUID, id string) (*domain.Tenant, error) {
	return s.transition(ctx, actor, id, domain.TenantStatusActive, domain.AuditTenantActivated,
		domain.TenantStatusSuspended)
}

// MarkForDeletion takes a school out of service ahead of a purge. A
// school stuck in provisioning can be marked too, so a signup that died
// half way can still be purged.
func (s *TenantService) MarkForDeletion(ctx context.Context, actor *uuid.UUID, id string) (*domain.Tenant, error) {
	return s.transition(ctx, actor, id, domain.TenantStatusPendingDeletion, domain.AuditTenantMarkedDeletion,
		domain.TenantStatusActive, domain.TenantStatusSuspended, domain.TenantStatusProvisioning)
}

func (s *TenantService) transition(ctx context.Context, actor *uuid.UUID, id string, to domain.TenantStatus, action string, from ...domain.TenantStatus) (*domain.Tenant, error) {
	tenant, err := s.tenants.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(from, tenant.Status) {
		return nil, domain.ErrTenantTransition
	}
	// The store re-checks the status we read, so a concurrent change wins
	// exactly once.
	if err := s.tenants.UpdateStatus(ctx, id, to, tenant.Status); err != nil {
		return nil, err
	}
	previous := tenant.Status
	tenant.Status = to

	s.invalidate(ctx, tenant)
	if to != domain.TenantStatusActive {
		s.pools.Evict(tenant.ID)
		if err := s.sessions.RevokeTenantSessions(ctx, tenant.ID); err != nil {
			s.logger.Error("failed to revoke tenant sessions", "tenant_id", tenant.ID, "error", err)
		}
	}
	s.record(ctx, actor, action, tenant, map[string]string{"from": string(previous), "to": string(to)})
	s.logger.Info("tenant status changed", "tenant_id", tenant.ID, "from", previous, "to", to)
	return tenant, nil
}

// Purge drops a school's database and deletes its record. Only tenants
// marked for deletion can be purged.
func (s *TenantService) Purge(ctx context.Context, actor *uuid.UUID, id string) error {
	tenant, err := s.tenants.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if tenant.Status != domain.TenantStatusPendingDeletion {
		return domain.ErrTenantNotPurgeable
	}

	s.pools.Evict(tenant.ID)
	if err := s.provisioner.DropDatabase(ctx, tenant.DatabaseName); err != nil {
		return err
	}
	if err := s.tenants.Delete(ctx, tenant.ID); err != nil {
		return err
	}
	s.invalidate(ctx, tenant)
	if err := s.sessions.RevokeTenantSessions(ctx, tenant.ID); err != nil {
		s.logger.Error("failed to revoke tenant sessions", "tenant_id", tenant.ID, "error", err)
	}
	s.record(ctx, actor, domain.AuditTenantPurged, tenant, map[string]string{
		"subdomain": tenant.Subdomain,
		"database":  tenant.DatabaseName,
	})
	s.logger.Info("tenant purged", "tenant_id", tenant.ID, "database", tenant.DatabaseName)
	return nil
}

func (s *TenantService) invalidate(ctx context.Context, tenant *domain.Tenant) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, tenant); err != nil {
		s.logger.Warn("failed to invalidate tenant cache", "tenant_id", tenant.ID, "error", err)
	}
}

func (s *TenantService) record(ctx context.Context, actor *uuid.UUID, action string, tenant *domain.Tenant, details any) {
	id := tenant.ID
	if err := s.audit.Record(ctx, actor, action, &id, details); err != nil {
		s.logger.Error("failed to write audit entry", "action", action, "tenant_id", id, "error", err)
	}
}
