package tenantdb

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
)

var scopeIssuer = auth.NewSessionService(auth.SessionConfig{JWTSecret: []byte("tenantdb-test-secret-0123456789abcdef")}, nil, nil)

// scopeFor obtains a TenantScope the only way callers can: by verifying a
// signed school access token.
func scopeFor(t *testing.T, tenantID string) auth.TenantScope {
	t.Helper()
	token, _, err := scopeIssuer.SignAccessToken(auth.Subject{
		UserID:   uuid.New(),
		Kind:     domain.SubjectSchool,
		Role:     string(domain.SchoolRoleAdmin),
		TenantID: tenantID,
	}, uuid.NewString())
	require.NoError(t, err)

	p, err := scopeIssuer.Authenticate(token)
	require.NoError(t, err)
	scope, ok := p.Tenant()
	require.True(t, ok)
	return scope
}

type fakeRegistry struct {
	mu      sync.Mutex
	tenants map[string]*domain.Tenant
}

func newFakeRegistry(tenants ...*domain.Tenant) *fakeRegistry {
	r := &fakeRegistry{tenants: make(map[string]*domain.Tenant)}
	for _, t := range tenants {
		r.put(t)
	}
	return r
}

func (r *fakeRegistry) put(t *domain.Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tenants[t.ID] = &cp
}

func (r *fakeRegistry) GetByID(_ context.Context, id string) (*domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, domain.ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeRegistry) GetBySubdomain(_ context.Context, subdomain string) (*domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.Subdomain == subdomain {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrTenantNotFound
}

// sqliteOpener stands in for PostgresOpener: one database file per school.
// mode=rw keeps sqlite from creating missing files, so a missing database
// fails on first query the way a missing PostgreSQL database does.
type sqliteOpener struct {
	dir   string
	delay time.Duration
	opens atomic.Int32
}

func (o *sqliteOpener) path(dbName string) string {
	return filepath.Join(o.dir, dbName+".db")
}

func (o *sqliteOpener) Open(_ context.Context, tenant *domain.Tenant) (*sqlx.DB, error) {
	o.opens.Add(1)
	if o.delay > 0 {
		time.Sleep(o.delay)
	}
	return sqlx.Open("sqlite3", "file:"+o.path(tenant.DatabaseName)+"?mode=rw")
}

func newTenant(subdomain string) *domain.Tenant {
	return &domain.Tenant{
		ID:           uuid.NewString(),
		Name:         subdomain + " school",
		Subdomain:    subdomain,
		DatabaseName: DatabaseName(subdomain),
		Status:       domain.TenantStatusActive,
	}
}

// seed creates the tenant's database file with a students table.
func seed(t *testing.T, o *sqliteOpener, tenant *domain.Tenant, names ...string) {
	t.Helper()
	db, err := sqlx.Open("sqlite3", o.path(tenant.DatabaseName))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE students (name TEXT NOT NULL)`)
	require.NoError(t, err)
	for _, n := range names {
		_, err = db.Exec(`INSERT INTO students (name) VALUES (?)`, n)
		require.NoError(t, err)
	}
}

func studentNames(t *testing.T, c *Client) []string {
	t.Helper()
	var names []string
	require.NoError(t, c.DB().Select(&names, `SELECT name FROM students ORDER BY name`))
	return names
}

func newTestRouter(t *testing.T, reg Registry, o Opener, cfg Config) *Router {
	t.Helper()
	r, err := NewRouter(reg, o, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRouter_Isolation(t *testing.T) {
	o := &sqliteOpener{dir: t.TempDir()}
	a, b := newTenant("alpha"), newTenant("beta")
	seed(t, o, a, "Ada", "Alan")
	seed(t, o, b, "Barbara")
	r := newTestRouter(t, newFakeRegistry(a, b), o, Config{})

	ctx := context.Background()
	ca, err := r.Acquire(ctx, scopeFor(t, a.ID))
	require.NoError(t, err)
	defer ca.Release()
	cb, err := r.Acquire(ctx, scopeFor(t, b.ID))
	require.NoError(t, err)
	defer cb.Release()

	assert.Equal(t, []string{"Ada", "Alan"}, studentNames(t, ca))
	assert.Equal(t, []string{"Barbara"}, studentNames(t, cb))
	assert.Equal(t, a.ID, ca.TenantID())
	assert.NotSame(t, ca.DB(), cb.DB())
}

func TestRouter_CachesClient(t *testing.T) {
	o := &sqliteOpener{dir: t.TempDir()}
	a := newTenant("alpha")
	seed(t, o, a, "Ada")
	r := newTestRouter(t, newFakeRegistry(a), o, Config{})

	ctx := context.Background()
	c1, err := r.Acquire(ctx, scopeFor(t, a.ID))
	require.NoError(t, err)
	c1.Release()
	c2, err := r.Acquire(ctx, scopeFor(t, a.ID))
	require.NoError(t, err)
	defer c2.Release()

	assert.Same(t, c1.DB(), c2.DB())
	assert.EqualValues(t, 1, o.opens.Load())
	assert.Equal(t, []string{"Ada"}, studentNames(t, c2))
}

func TestRouter_LazyFailure(t *testing.T) {
	o := &sqliteOpener{dir: t.TempDir()}
	ghost := newTenant("ghost") // registered, database never created
	r := newTestRouter(t, newFakeRegistry(ghost), o, Config{})

	c, err := r.Acquire(context.Background(), scopeFor(t, ghost.ID))
	require.NoError(t, err, "acquire must not touch the database")
	defer c.Release()

	var n int
	err = c.DB().Get(&n, `SELECT count(*) FROM students`)
	assert.Error(t, err)
}

func TestRouter_ConcurrentColdStart(t *testing.T) {
	o := &sqliteOpener{dir: t.TempDir(), delay: 50 * time.Millisecond}
	a, b := newTenant("alpha"), newTenant("beta")
	seed(t, o, a, "Ada")
	seed(t, o, b, "Barbara")
	r := newTestRouter(t, newFakeRegistry(a, b), o, Config{})

	scopes := map[string]auth.TenantScope{a.ID: scopeFor(t, a.ID), b.ID: scopeFor(t, b.ID)}
	want := map[string]string{a.ID: "Ada", b.ID: "Barbara"}

	const callers = 32
	var wg sync.WaitGroup
	errs := make(chan error, 2*callers)
	for i := 0; i < callers; i++ {
		for id := range want {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				c, err := r.Acquire(context.Background(), scopes[id])
				if err != nil {
					errs <- err
					return
				}
				defer c.Release()
				var name string
				if err := c.DB().Get(&name, `SELECT name FROM students`); err != nil {
					errs <- err
					return
				}
				if name != want[id] {
					errs <- fmt.Errorf("tenant %s read %q, want %q", id, name, want[id])
				}
			}(id)
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	assert.EqualValues(t, 2, o.opens.Load(), "one construction per tenant")
}

func TestRouter_PlatformClientIsDistinct(t *testing.T) {
	dir := t.TempDir()
	o := &sqliteOpener{dir: dir}
	a := newTenant("demo")
	seed(t, o, a, "Ada")
	require.Equal(t, "school_demo", a.DatabaseName)

	platform, err := sql.Open("sqlite3", filepath.Join(dir, "platform.db"))
	require.NoError(t, err)
	defer platform.Close()
	_, err = platform.Exec(`CREATE TABLE tenants (id TEXT)`)
	require.NoError(t, err)

	r := newTestRouter(t, newFakeRegistry(a), o, Config{})
	c, err := r.Acquire(context.Background(), scopeFor(t, a.ID))
	require.NoError(t, err)
	defer c.Release()

	assert.NotSame(t, platform, c.DB().DB)
	var n int
	assert.Error(t, c.DB().Get(&n, `SELECT count(*) FROM tenants`), "tenant client must not see platform tables")
}

func TestRouter_StatusRejections(t *testing.T) {
	tests := []struct {
		status  domain.TenantStatus
		wantErr error
	}{
		{domain.TenantStatusProvisioning, domain.ErrTenantNotProvisioned},
		{domain.TenantStatusSuspended, domain.ErrTenantSuspended},
		{domain.TenantStatusPendingDeletion, domain.ErrTenantPendingDeletion},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			o := &sqliteOpener{dir: t.TempDir()}
			tenant := newTenant("alpha")
			tenant.Status = tt.status
			r := newTestRouter(t, newFakeRegistry(tenant), o, Config{})

			_, err := r.Acquire(context.Background(), scopeFor(t, tenant.ID))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, o.opens.Load())
		})
	}

	t.Run("unknown tenant", func(t *testing.T) {
		r := newTestRouter(t, newFakeRegistry(), &sqliteOpener{dir: t.TempDir()}, Config{})
		_, err := r.Acquire(context.Background(), scopeFor(t, uuid.NewString()))
		assert.ErrorIs(t, err, domain.ErrTenantNotFound)
	})

	t.Run("empty scope", func(t *testing.T) {
		r := newTestRouter(t, newFakeRegistry(), &sqliteOpener{dir: t.TempDir()}, Config{})
		_, err := r.Acquire(context.Background(), auth.TenantScope{})
		assert.ErrorIs(t, err, domain.ErrTenantNotFound)
	})
}

func TestRouter_AcquireBySubdomain(t *testing.T) {
	o := &sqliteOpener{dir: t.TempDir()}
	a := newTenant("green-field")
	seed(t, o, a, "Ada")
	r := newTestRouter(t, newFakeRegistry(a), o, Config{})

	c, err := r.AcquireBySubdomain(context.Background(), " Green-Field ")
	require.NoError(t, err)
	defer c.Release()
	assert.Equal(t, a.ID, c.TenantID())
	assert.Equal(t, []string{"Ada"}, studentNames(t, c))

	_, err = r.AcquireBySubdomain(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
	_, err = r.AcquireBySubdomain(context.Background(), "bad_name")
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
}

func TestRouter_CapacityEviction(t *testing.T) {
	o := &sqliteOpener{dir: t.TempDir()}
	a, b, c := newTenant("alpha"), newTenant("beta"), newTenant("gamma")
	for _, tenant := range []*domain.Tenant{a, b, c} {
		seed(t, o, tenant, tenant.Subdomain)
	}
	r := newTestRouter(t, newFakeRegistry(a, b, c), o, Config{MaxTenants: 2})
	ctx := context.Background()

	ca, err := r.Acquire(ctx, scopeFor(t, a.ID))
	require.NoError(t, err)
	dbA := ca.DB()
	ca.Release()

	for _, tenant := range []*domain.Tenant{b, c} {
		cl, err := r.Acquire(ctx, scopeFor(t, tenant.ID))
		require.NoError(t, err)
		cl.Release()
	}

	stats := r.Stats()
	assert.Equal(t, 2, stats.Cached)
	assert.ErrorContains(t, dbA.Ping(), "database is closed", "least recently used pool is closed")

	ca, err = r.Acquire(ctx, scopeFor(t, a.ID))
	require.NoError(t, err)
	defer ca.Release()
	assert.EqualValues(t, 4, o.opens.Load())
	assert.Equal(t, []string{"alpha"}, studentNames(t, ca))
}

func TestRouter_IdleSweep(t *testing.T) {
	o := &sqliteOpener{dir: t.TempDir()}
	a, b := newTenant("alpha"), newTenant("beta")
	seed(t, o, a, "Ada")
	seed(t, o, b, "Barbara")

	var mu sync.Mutex
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
	advance := func(d time.Duration) { mu.Lock(); now = now.Add(d); mu.Unlock() }

	r := newTestRouter(t, newFakeRegistry(a, b), o, Config{IdleTimeout: time.Minute, Now: clock})
	ctx := context.Background()

	ca, err := r.Acquire(ctx, scopeFor(t, a.ID))
	require.NoError(t, err)
	dbA := ca.DB()
	ca.Release()

	cb, err := r.Acquire(ctx, scopeFor(t, b.ID))
	require.NoError(t, err)
	defer cb.Release()

	advance(30 * time.Second)
	assert.Equal(t, 0, r.Sweep(), "nothing idle yet")

	advance(time.Minute)
	assert.Equal(t, 1, r.Sweep(), "only the unreferenced pool is swept")
	assert.ErrorContains(t, dbA.Ping(), "database is closed")
	assert.Equal(t, []string{"Barbara"}, studentNames(t, cb), "referenced pool survives")

	stats := r.Stats()
	require.Len(t, stats.Tenants, 1)
	assert.Equal(t, b.ID, stats.Tenants[0].TenantID)
	assert.Equal(t, 1, stats.Referenced)
}

func TestRouter_EvictDefersCloseUntilRelease(t *testing.T) {
	o := &sqliteOpener{dir: t.TempDir()}
	a := newTenant("alpha")
	seed(t, o, a, "Ada")
	r := newTestRouter(t, newFakeRegistry(a), o, Config{})

	c, err := r.Acquire(context.Background(), scopeFor(t, a.ID))
	require.NoError(t, err)

	assert.True(t, r.Evict(a.ID))
	assert.False(t, r.Evict(a.ID))
	assert.Equal(t, []string{"Ada"}, studentNames(t, c), "held client keeps working")

	db := c.DB()
	c.Release()
	c.Release()
	assert.ErrorContains(t, db.Ping(), "database is closed")
}

func TestRouter_EvictAfterSuspend(t *testing.T) {
	o := &sqliteOpener{dir: t.TempDir()}
	a := newTenant("alpha")
	seed(t, o, a, "Ada")
	reg := newFakeRegistry(a)
	r := newTestRouter(t, reg, o, Config{})
	ctx := context.Background()

	c, err := r.Acquire(ctx, scopeFor(t, a.ID))
	require.NoError(t, err)
	c.Release()

	suspended := *a
	suspended.Status = domain.TenantStatusSuspended
	reg.put(&suspended)
	r.Evict(a.ID)

	_, err = r.Acquire(ctx, scopeFor(t, a.ID))
	assert.ErrorIs(t, err, domain.ErrTenantSuspended)
	assert.Equal(t, 0, r.Stats().Cached)
}

func TestRouter_Close(t *testing.T) {
	o := &sqliteOpener{dir: t.TempDir()}
	a := newTenant("alpha")
	seed(t, o, a, "Ada")
	r, err := NewRouter(newFakeRegistry(a), o, Config{})
	require.NoError(t, err)

	held, err := r.Acquire(context.Background(), scopeFor(t, a.ID))
	require.NoError(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.Acquire(context.Background(), scopeFor(t, a.ID))
	assert.ErrorIs(t, err, domain.ErrRouterClosed)

	assert.Equal(t, []string{"Ada"}, studentNames(t, held), "held client drains after shutdown")
	db := held.DB()
	held.Release()
	assert.ErrorContains(t, db.Ping(), "database is closed")
}

func TestRouter_RunStopsWithContext(t *testing.T) {
	r := newTestRouter(t, newFakeRegistry(), &sqliteOpener{dir: t.TempDir()}, Config{SweepInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClientContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	c := &Client{tenant: domain.Tenant{ID: "t1"}}
	got, ok := FromContext(NewContext(context.Background(), c))
	require.True(t, ok)
	assert.Same(t, c, got)
}
