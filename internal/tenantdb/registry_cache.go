package tenantdb

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/tendant/school-crm/pkg/domain"
)

const (
	registryKeyByID        = "tenantdb:tenant:id:"
	registryKeyBySubdomain = "tenantdb:tenant:sub:"

	// DefaultRegistryTTL bounds how long a status change can go unnoticed
	// by other processes.
	DefaultRegistryTTL = 30 * time.Second
)

// CachedRegistry is a read-through Redis cache in front of a Registry.
// Redis failures are logged and fall through to the underlying registry.
type CachedRegistry struct {
	next   Registry
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedRegistry wraps next with a Redis cache.
func NewCachedRegistry(next Registry, rdb redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *CachedRegistry {
	if ttl <= 0 {
		ttl = DefaultRegistryTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedRegistry{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

// GetByID returns the tenant with the given id.
func (c *CachedRegistry) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	return c.get(ctx, registryKeyByID+id, func() (*domain.Tenant, error) {
		return c.next.GetByID(ctx, id)
	})
}

// GetBySubdomain returns the tenant with the given subdomain.
func (c *CachedRegistry) GetBySubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error) {
	return c.get(ctx, registryKeyBySubdomain+subdomain, func() (*domain.Tenant, error) {
		return c.next.GetBySubdomain(ctx, subdomain)
	})
}

// Invalidate removes both cache entries of tenant.
func (c *CachedRegistry) Invalidate(ctx context.Context, tenant *domain.Tenant) error {
	return c.rdb.Del(ctx, registryKeyByID+tenant.ID, registryKeyBySubdomain+tenant.Subdomain).Err()
}

func (c *CachedRegistry) get(ctx context.Context, key string, load func() (*domain.Tenant, error)) (*domain.Tenant, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var t domain.Tenant
		if err := json.Unmarshal(raw, &t); err == nil {
			return &t, nil
		}
		c.logger.Warn("discarding malformed tenant cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("tenant cache read failed", "key", key, "error", err)
	}

	t, err := load()
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(t); err == nil {
		pipe := c.rdb.TxPipeline()
		pipe.Set(ctx, registryKeyByID+t.ID, raw, c.ttl)
		pipe.Set(ctx, registryKeyBySubdomain+t.Subdomain, raw, c.ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			c.logger.Warn("tenant cache write failed", "tenant_id", t.ID, "error", err)
		}
	}
	return t, nil
}
