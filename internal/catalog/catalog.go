package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/model"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/storage"
	"go.uber.org/zap"
)

const DefaultTTL = time.Minute

// Catalog serves services and providers. Service reads go through Redis
// when a client is configured; any cache failure falls back to storage.
type Catalog struct {
	store  storage.Store
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

func New(store storage.Store, rdb *redis.Client, ttl time.Duration, logger *zap.SugaredLogger) *Catalog {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Catalog{store: store, rdb: rdb, ttl: ttl, logger: logger}
}

func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func serviceKey(id int64) string {
	return fmt.Sprintf("service:%d", id)
}

func (c *Catalog) GetService(ctx context.Context, id int64) (model.Service, error) {
	if svc, ok := c.cached(ctx, id); ok {
		return svc, nil
	}

	svc, err := c.store.GetService(ctx, id)
	if err != nil {
		return model.Service{}, err
	}

	c.remember(ctx, svc)
	return svc, nil
}

func (c *Catalog) cached(ctx context.Context, id int64) (model.Service, bool) {
	if c.rdb == nil {
		return model.Service{}, false
	}

	data, err := c.rdb.Get(ctx, serviceKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warnf("read service %d from cache: %v", id, err)
		}
		return model.Service{}, false
	}

	var svc model.Service
	if err := json.Unmarshal(data, &svc); err != nil {
		c.logger.Warnf("decode cached service %d: %v", id, err)
		return model.Service{}, false
	}
	return svc, true
}

func (c *Catalog) remember(ctx context.Context, svc model.Service) {
	if c.rdb == nil {
		return
	}

	data, err := json.Marshal(svc)
	if err != nil {
		c.logger.Warnf("encode service %d: %v", svc.ID, err)
		return
	}
	if err := c.rdb.Set(ctx, serviceKey(svc.ID), data, c.ttl).Err(); err != nil {
		c.logger.Warnf("cache service %d: %v", svc.ID, err)
	}
}

func (c *Catalog) forget(ctx context.Context, id int64) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, serviceKey(id)).Err(); err != nil {
		c.logger.Warnf("invalidate service %d: %v", id, err)
	}
}

func (c *Catalog) ListServices(ctx context.Context, activeOnly bool) ([]model.Service, error) {
	return c.store.ListServices(ctx, activeOnly)
}

func (c *Catalog) CreateService(ctx context.Context, svc model.Service) (model.Service, error) {
	return c.store.CreateService(ctx, svc)
}

func (c *Catalog) UpdateService(ctx context.Context, svc model.Service) (model.Service, error) {
	updated, err := c.store.UpdateService(ctx, svc)
	if err != nil {
		return model.Service{}, err
	}

	c.forget(ctx, updated.ID)
	return updated, nil
}

func (c *Catalog) GetProvider(ctx context.Context, id int64) (model.Provider, error) {
	return c.store.GetProvider(ctx, id)
}

func (c *Catalog) ListProviders(ctx context.Context) ([]model.Provider, error) {
	return c.store.ListProviders(ctx)
}

func (c *Catalog) CreateProvider(ctx context.Context, p model.Provider) (model.Provider, error) {
	return c.store.CreateProvider(ctx, p)
}
