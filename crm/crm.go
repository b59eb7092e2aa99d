// Package crm wires the School CRM server together: the platform
// database, the tenant database router, the auth services and the HTTP
// routes.
//
// Basic usage:
//
//	cfg, _ := config.Load()
//	app, err := crm.New(ctx, cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Close()
//	go app.Run(ctx)
//	http.ListenAndServe(cfg.ListenAddr(), app.Handler())
package crm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/tendant/school-crm/internal/config"
	httpserver "github.com/tendant/school-crm/internal/http"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/internal/platform"
	"github.com/tendant/school-crm/internal/tenantdb"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
	"github.com/tendant/school-crm/pkg/repository"
)

// App is a running School CRM instance.
type App struct {
	logger  *slog.Logger
	db      *sql.DB
	adminDB *sql.DB
	redis   *redis.Client
	router  *tenantdb.Router
	handler http.Handler

	sessions SessionPurger
}

// SessionPurger deletes refresh sessions that expired long ago.
// *repository.SessionsRepository implements it.
type SessionPurger interface {
	DeleteExpired(ctx context.Context, olderThan time.Duration) (int64, error)
}

const (
	sessionSweepInterval = time.Hour
	sessionRetention     = 7 * 24 * time.Hour
)

// New connects to the platform database, applies its migrations and
// builds every service. The caller must Close the returned App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{logger: logger}
	if err := app.init(ctx, cfg); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context, cfg *config.Config) error {
	platformCfg := repository.Config{
		Host:         cfg.DBHost,
		Port:         cfg.DBPort,
		User:         cfg.DBUser,
		Password:     cfg.DBPassword,
		DBName:       cfg.DBName,
		SSLMode:      cfg.DBSSLMode,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	}
	db, err := repository.NewDB(platformCfg)
	if err != nil {
		return fmt.Errorf("connect platform database: %w", err)
	}
	a.db = db
	a.logger.Info("connected to platform database", "database", cfg.DBName)

	if err := repository.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate platform database: %w", err)
	}

	server := tenantdb.ServerConfig{
		Host:            cfg.TenantDB.Host,
		Port:            cfg.TenantDB.Port,
		User:            cfg.TenantDB.User,
		Password:        cfg.TenantDB.Password,
		SSLMode:         cfg.TenantDB.SSLMode,
		MaxOpenConns:    cfg.TenantDB.MaxOpenConns,
		MaxIdleConns:    cfg.TenantDB.MaxIdleConns,
		ConnMaxIdleTime: cfg.TenantDB.ConnMaxIdleTime,
	}
	// CREATE DATABASE runs against the maintenance database.
	adminDB, err := sql.Open("postgres", server.DSN("postgres"))
	if err != nil {
		return fmt.Errorf("open tenant admin database: %w", err)
	}
	adminDB.SetMaxOpenConns(2)
	a.adminDB = adminDB

	opener := tenantdb.NewPostgresOpener(server)
	provisioner := tenantdb.NewProvisioner(adminDB, opener, a.logger)

	// Repositories
	platformUsers := repository.NewPlatformUsersRepository(db)
	sessionsRepo := repository.NewSessionsRepository(db)
	a.sessions = sessionsRepo
	tenantsRepo := repository.NewTenantsRepository(db)
	subscriptions := repository.NewSubscriptionsRepository(db)
	ticketsRepo := repository.NewTicketsRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	var registry tenantdb.Registry = tenantsRepo
	var cache tenantdb.Invalidator
	if cfg.Redis.Enabled() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			// Lookups fall through to the platform database while Redis is down.
			a.logger.Warn("redis unavailable, registry cache degraded", "addr", cfg.Redis.Addr, "error", err)
		}
		cached := tenantdb.NewCachedRegistry(tenantsRepo, a.redis, cfg.Redis.RegistryTTL, a.logger)
		registry = cached
		cache = cached
		a.logger.Info("tenant registry cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.RegistryTTL)
	}

	router, err := tenantdb.NewRouter(registry, opener, tenantdb.Config{
		MaxTenants:    cfg.TenantPool.MaxTenants,
		IdleTimeout:   cfg.TenantPool.IdleTimeout,
		SweepInterval: cfg.TenantPool.SweepInterval,
		Logger:        a.logger,
	})
	if err != nil {
		return fmt.Errorf("create tenant router: %w", err)
	}
	a.router = router

	// Services
	mfaKey, err := cfg.MFAKey()
	if err != nil {
		return err
	}
	passwordService := auth.NewPasswordService(platformUsers, auth.NewPasswordPolicy(cfg.PasswordPolicy))
	sessionService := auth.NewSessionService(auth.SessionConfig{
		AccessTokenTTL:     cfg.AccessTokenTTL,
		RefreshTokenTTL:    cfg.RefreshTokenTTL,
		JWTSecret:          []byte(cfg.JWTSecret),
		Issuer:             cfg.JWTIssuer,
		FingerprintEnabled: cfg.SessionSecurity.FingerprintEnabled,
		DetectReuseEnabled: cfg.SessionSecurity.DetectReuse,
	}, sessionsRepo, platformUsers)
	mfaService := auth.NewMFAService(auth.MFAConfig{
		Issuer:        cfg.MFAIssuer,
		EncryptionKey: mfaKey,
	}, platformUsers)
	if mfaKey == nil {
		a.logger.Warn("MFA_ENCRYPTION_KEY not set, operators cannot enroll TOTP")
	}

	tenantService := platform.NewTenantService(platform.TenantServiceConfig{
		Tenants:     tenantsRepo,
		Provisioner: provisioner,
		Audit:       auditRepo,
		Sessions:    sessionService,
		Pools:       router,
		Cache:       cache,
		Passwords:   passwordService,
		Logger:      a.logger,
	})

	if err := bootstrapOwner(ctx, cfg, platformUsers, passwordService, a.logger); err != nil {
		return err
	}

	cookies := httputil.DefaultCookieConfig()
	cookies.Domain = cfg.CookieDomain
	cookies.Secure = cfg.CookieSecure

	a.handler = httpserver.NewRouter(httpserver.RouterConfig{
		Logger:          a.logger,
		PlatformDB:      db,
		PasswordService: passwordService,
		SessionService:  sessionService,
		MFAService:      mfaService,
		TenantService:   tenantService,
		TenantRouter:    router,
		PlatformUsers:   platformUsers,
		Subscriptions:   subscriptions,
		Tickets:         ticketsRepo,
		Audit:           auditRepo,
		RootDomain:      cfg.RootDomain,
		CORSOrigins:     cfg.CORSAllowedOrigins,
		CookieConfig:    cookies,
		RateLimitConfig: cfg.RateLimit,
		SecurityHeaders: cfg.SecurityHeaders,
		Validation:      cfg.Validation,
	})
	return nil
}

// OperatorStore lists platform operators.
type OperatorStore interface {
	List(ctx context.Context) ([]*domain.PlatformUser, error)
}

// OperatorCreator registers platform operators.
type OperatorCreator interface {
	CreatePlatformUser(ctx context.Context, email, name string, role domain.PlatformRole, password string) (*domain.PlatformUser, error)
}

// bootstrapOwner creates the first platform owner from configuration when
// no operator exists yet.
func bootstrapOwner(ctx context.Context, cfg *config.Config, users OperatorStore, creator OperatorCreator, logger *slog.Logger) error {
	if cfg.BootstrapOwnerEmail == "" {
		return nil
	}
	existing, err := users.List(ctx)
	if err != nil {
		return fmt.Errorf("list platform users: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	if cfg.BootstrapOwnerPassword == "" {
		return errors.New("BOOTSTRAP_OWNER_PASSWORD is required with BOOTSTRAP_OWNER_EMAIL")
	}

	user, err := creator.CreatePlatformUser(ctx, cfg.BootstrapOwnerEmail, "Platform Owner", domain.PlatformRoleOwner, cfg.BootstrapOwnerPassword)
	if err != nil {
		if errors.Is(err, domain.ErrUserAlreadyExists) {
			return nil
		}
		return fmt.Errorf("create bootstrap owner: %w", err)
	}
	logger.Info("created bootstrap platform owner", "user_id", user.ID, "email", user.Email)
	return nil
}

// Handler returns the HTTP handler serving every route.
func (a *App) Handler() http.Handler {
	return a.handler
}

// TenantRouter returns the per-school connection router.
func (a *App) TenantRouter() *tenantdb.Router {
	return a.router
}

// Run sweeps idle school pools and expired sessions until ctx is done.
func (a *App) Run(ctx context.Context) {
	if a.router != nil {
		go a.router.Run(ctx)
	}
	if a.sessions == nil {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.purgeSessions(ctx)
		}
	}
}

func (a *App) purgeSessions(ctx context.Context) {
	n, err := a.sessions.DeleteExpired(ctx, sessionRetention)
	if err != nil {
		a.logger.Error("failed to delete expired sessions", "error", err)
		return
	}
	if n > 0 {
		a.logger.Info("deleted expired sessions", "count", n)
	}
}

// Close releases every connection the App holds.
func (a *App) Close() error {
	var errs []error
	if a.router != nil {
		errs = append(errs, a.router.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.adminDB != nil {
		errs = append(errs, a.adminDB.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
