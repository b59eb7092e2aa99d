package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/jmoiron/sqlx"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
	"golang.org/x/sync/singleflight"
)

// Defaults applied by NewRouter.
const (
	DefaultMaxTenants    = 100
	DefaultIdleTimeout   = 10 * time.Minute
	DefaultSweepInterval = time.Minute
)

// maxAcquireAttempts bounds how often Acquire rebuilds a pool that was
// evicted between construction and use.
const maxAcquireAttempts = 3

// Config configures a Router.
type Config struct {
	// MaxTenants is the number of tenant pools kept open at once.
	MaxTenants int
	// IdleTimeout closes pools nobody used for this long.
	IdleTimeout time.Duration
	// SweepInterval is how often Run looks for idle pools.
	SweepInterval time.Duration
	Logger        *slog.Logger
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Router hands out tenant database clients. It is safe for concurrent use.
type Router struct {
	registry Registry
	opener   Opener
	cfg      Config
	logger   *slog.Logger

	group singleflight.Group

	mu     sync.Mutex
	cache  *simplelru.LRU[string, *handle]
	closed bool
}

// handle is a cached pool. Fields other than db are guarded by Router.mu.
type handle struct {
	tenantID string
	dbName   string
	db       *sqlx.DB
	refs     int
	lastUsed time.Time
	evicted  bool
	closed   bool
}

// NewRouter creates a router that resolves tenants through registry and
// builds pools with opener.
func NewRouter(registry Registry, opener Opener, cfg Config) (*Router, error) {
	if cfg.MaxTenants <= 0 {
		cfg.MaxTenants = DefaultMaxTenants
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	// Eviction is driven by the router so that the reason is known; the
	// LRU never evicts on its own.
	cache, err := simplelru.NewLRU[string, *handle](cfg.MaxTenants, nil)
	if err != nil {
		return nil, err
	}

	return &Router{
		registry: registry,
		opener:   opener,
		cfg:      cfg,
		logger:   cfg.Logger,
		cache:    cache,
	}, nil
}

// Acquire returns a client for the tenant named by scope. The scope can
// only come from a verified access token, so the tenant id is trusted.
func (r *Router) Acquire(ctx context.Context, scope auth.TenantScope) (*Client, error) {
	if scope.IsZero() {
		recordAcquireError(domain.ErrTenantNotFound)
		return nil, domain.ErrTenantNotFound
	}
	tenant, err := r.lookup(func() (*domain.Tenant, error) {
		return r.registry.GetByID(ctx, scope.TenantID())
	})
	if err != nil {
		return nil, err
	}
	return r.acquire(ctx, tenant)
}

// AcquireBySubdomain returns a client for the school served at subdomain.
// It is used by the public school login, where no token exists yet; the
// tenant id is resolved here from the registry.
func (r *Router) AcquireBySubdomain(ctx context.Context, subdomain string) (*Client, error) {
	sub, err := SanitizeSubdomain(subdomain)
	if err != nil {
		recordAcquireError(domain.ErrTenantNotFound)
		return nil, domain.ErrTenantNotFound
	}
	tenant, err := r.lookup(func() (*domain.Tenant, error) {
		return r.registry.GetBySubdomain(ctx, sub)
	})
	if err != nil {
		return nil, err
	}
	return r.acquire(ctx, tenant)
}

func (r *Router) lookup(get func() (*domain.Tenant, error)) (*domain.Tenant, error) {
	tenant, err := get()
	if err != nil {
		recordAcquireError(err)
		if errors.Is(err, domain.ErrTenantNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("tenant registry: %w", err)
	}
	if err := tenant.AvailabilityError(); err != nil {
		recordAcquireError(err)
		return nil, err
	}
	return tenant, nil
}

func (r *Router) acquire(ctx context.Context, tenant *domain.Tenant) (*Client, error) {
	result := "hit"
	for attempt := 0; attempt < maxAcquireAttempts; attempt++ {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			recordAcquireError(domain.ErrRouterClosed)
			return nil, domain.ErrRouterClosed
		}
		if h, ok := r.cache.Get(tenant.ID); ok && h.dbName == tenant.DatabaseName {
			h.refs++
			h.lastUsed = r.cfg.Now()
			r.mu.Unlock()
			acquires.WithLabelValues(result).Inc()
			return &Client{tenant: *tenant, h: h, router: r}, nil
		}
		r.mu.Unlock()

		result = "miss"
		if _, err, _ := r.group.Do(tenant.ID, func() (any, error) {
			return nil, r.open(ctx, tenant)
		}); err != nil {
			recordAcquireError(err)
			return nil, err
		}
	}

	err := fmt.Errorf("tenant %s: pool evicted before use %d times", tenant.ID, maxAcquireAttempts)
	recordAcquireError(err)
	return nil, err
}

// open builds a pool for tenant and caches it with no references.
func (r *Router) open(ctx context.Context, tenant *domain.Tenant) error {
	db, err := r.opener.Open(ctx, tenant)
	if err != nil {
		return fmt.Errorf("open tenant %s: %w", tenant.ID, err)
	}

	r.mu.Lock()
	var retired []*handle
	defer func() {
		r.mu.Unlock()
		r.closeHandles(retired)
	}()

	if r.closed {
		_ = db.Close()
		return domain.ErrRouterClosed
	}
	if h, ok := r.cache.Peek(tenant.ID); ok {
		if h.dbName == tenant.DatabaseName {
			_ = db.Close()
			return nil
		}
		// The registry now names a different database for this tenant.
		r.cache.Remove(tenant.ID)
		retired = r.retireLocked(retired, h, "invalidated")
	}
	if r.cache.Len() >= r.cfg.MaxTenants {
		if _, oldest, ok := r.cache.RemoveOldest(); ok {
			retired = r.retireLocked(retired, oldest, "capacity")
		}
	}

	r.cache.Add(tenant.ID, &handle{
		tenantID: tenant.ID,
		dbName:   tenant.DatabaseName,
		db:       db,
		lastUsed: r.cfg.Now(),
	})
	clientsOpened.Inc()
	clientsOpen.Inc()
	r.logger.Debug("tenant pool opened", "tenant_id", tenant.ID, "database", tenant.DatabaseName)
	return nil
}

func (r *Router) release(h *handle) {
	r.mu.Lock()
	h.refs--
	h.lastUsed = r.cfg.Now()
	var retired []*handle
	if h.evicted && h.refs == 0 && !h.closed {
		h.closed = true
		retired = append(retired, h)
	}
	r.mu.Unlock()
	r.closeHandles(retired)
}

// retireLocked marks an uncached handle evicted and, when unreferenced,
// queues it for closing. Referenced handles close on their last release.
func (r *Router) retireLocked(retired []*handle, h *handle, reason string) []*handle {
	h.evicted = true
	evictions.WithLabelValues(reason).Inc()
	r.logger.Debug("tenant pool evicted", "tenant_id", h.tenantID, "reason", reason, "refs", h.refs)
	if h.refs == 0 && !h.closed {
		h.closed = true
		retired = append(retired, h)
	}
	return retired
}

func (r *Router) closeHandles(hs []*handle) error {
	var errs []error
	for _, h := range hs {
		clientsOpen.Dec()
		if err := h.db.Close(); err != nil {
			r.logger.Warn("closing tenant pool failed", "tenant_id", h.tenantID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Evict drops the cached pool of tenantID, typically after the tenant was
// suspended or deleted. In-flight users keep their client until Release.
func (r *Router) Evict(tenantID string) bool {
	r.mu.Lock()
	h, ok := r.cache.Peek(tenantID)
	var retired []*handle
	if ok {
		r.cache.Remove(tenantID)
		retired = r.retireLocked(retired, h, "invalidated")
	}
	r.mu.Unlock()
	r.closeHandles(retired)
	return ok
}

// Sweep evicts pools that are unreferenced and idle for longer than
// IdleTimeout. It returns the number evicted.
func (r *Router) Sweep() int {
	r.mu.Lock()
	now := r.cfg.Now()
	var retired []*handle
	n := 0
	for _, id := range r.cache.Keys() {
		h, ok := r.cache.Peek(id)
		if !ok || h.refs > 0 || now.Sub(h.lastUsed) < r.cfg.IdleTimeout {
			continue
		}
		r.cache.Remove(id)
		retired = r.retireLocked(retired, h, "idle")
		n++
	}
	r.mu.Unlock()
	r.closeHandles(retired)
	return n
}

// Run sweeps idle pools every SweepInterval until ctx is done.
func (r *Router) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Info("evicted idle tenant pools", "count", n)
			}
		}
	}
}

// Close evicts every pool and rejects further acquisitions. Pools still
// referenced close when released.
func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	var retired []*handle
	for _, id := range r.cache.Keys() {
		if h, ok := r.cache.Peek(id); ok {
			retired = r.retireLocked(retired, h, "shutdown")
		}
	}
	r.cache.Purge()
	r.mu.Unlock()
	return r.closeHandles(retired)
}

// TenantStats describes one cached pool.
type TenantStats struct {
	TenantID        string        `json:"tenant_id"`
	DatabaseName    string        `json:"database_name"`
	References      int           `json:"references"`
	IdleFor         time.Duration `json:"idle_for_ns"`
	OpenConnections int           `json:"open_connections"`
	InUse           int           `json:"in_use"`
}

// Stats is a snapshot of the router cache.
type Stats struct {
	MaxTenants  int           `json:"max_tenants"`
	IdleTimeout time.Duration `json:"idle_timeout_ns"`
	Cached      int           `json:"cached"`
	Referenced  int           `json:"referenced"`
	Tenants     []TenantStats `json:"tenants"`
}

// Stats returns a snapshot of the cached pools, most recently used first.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	now := r.cfg.Now()
	s := Stats{
		MaxTenants:  r.cfg.MaxTenants,
		IdleTimeout: r.cfg.IdleTimeout,
		Cached:      r.cache.Len(),
	}
	type entry struct {
		h    handle
		pool *sqlx.DB
	}
	entries := make([]entry, 0, r.cache.Len())
	for _, id := range r.cache.Keys() {
		if h, ok := r.cache.Peek(id); ok {
			entries = append(entries, entry{h: *h, pool: h.db})
		}
	}
	r.mu.Unlock()

	for _, e := range entries {
		if e.h.refs > 0 {
			s.Referenced++
		}
		dbStats := e.pool.Stats()
		s.Tenants = append(s.Tenants, TenantStats{
			TenantID:        e.h.tenantID,
			DatabaseName:    e.h.dbName,
			References:      e.h.refs,
			IdleFor:         now.Sub(e.h.lastUsed),
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
		})
	}
	sort.SliceStable(s.Tenants, func(i, j int) bool {
		return s.Tenants[i].IdleFor < s.Tenants[j].IdleFor
	})
	return s
}
