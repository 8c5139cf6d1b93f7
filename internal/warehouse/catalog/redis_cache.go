package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"freightdesk/internal/warehouse/models"
	"freightdesk/internal/warehouse/ports"
	id "freightdesk/pkg/domain"
)

const (
	defaultCacheTTL = 5 * time.Minute
	keyPrefix       = "freightdesk:invoice-facts:"
)

// RedisCache is a read-through cache in front of another catalog. Concurrent
// misses for the same invoice share one upstream lookup. Cache failures fall
// back to the upstream; unknown invoices are not cached.
type RedisCache struct {
	client   redis.UniversalClient
	upstream ports.InvoiceCatalog
	ttl      time.Duration
	logger   *slog.Logger
	group    singleflight.Group
}

type CacheOption func(*RedisCache)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *RedisCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *RedisCache) {
		c.logger = logger
	}
}

func NewRedisCache(client redis.UniversalClient, upstream ports.InvoiceCatalog, opts ...CacheOption) *RedisCache {
	c := &RedisCache{client: client, upstream: upstream, ttl: defaultCacheTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) Lookup(ctx context.Context, invoiceID id.InvoiceID) (*models.InvoiceFacts, error) {
	key := keyPrefix + invoiceID.String()

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var f models.InvoiceFacts
		if jsonErr := json.Unmarshal(raw, &f); jsonErr == nil {
			return &f, nil
		}
		c.warn(ctx, "discarding undecodable cache entry", invoiceID, nil)
	case !errors.Is(err, redis.Nil):
		c.warn(ctx, "invoice cache read failed", invoiceID, err)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		f, err := c.upstream.Lookup(ctx, invoiceID)
		if err != nil {
			return nil, err
		}
		if payload, err := json.Marshal(f); err == nil {
			if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
				c.warn(ctx, "invoice cache write failed", invoiceID, err)
			}
		}
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	f := *v.(*models.InvoiceFacts)
	f.ItemLabels = append([]string(nil), f.ItemLabels...)
	return &f, nil
}

// Invalidate drops a cached entry, for example after the invoicing subsystem
// edits an invoice.
func (c *RedisCache) Invalidate(ctx context.Context, invoiceID id.InvoiceID) error {
	if err := c.client.Del(ctx, keyPrefix+invoiceID.String()).Err(); err != nil {
		return fmt.Errorf("invalidate invoice cache: %w", err)
	}
	return nil
}

func (c *RedisCache) warn(ctx context.Context, msg string, invoiceID id.InvoiceID, err error) {
	if c.logger == nil {
		return
	}
	c.logger.WarnContext(ctx, msg, "invoice_id", invoiceID.String(), "error", err)
}

var _ ports.InvoiceCatalog = (*RedisCache)(nil)
var _ ports.InvoiceCatalog = (*Postgres)(nil)
var _ ports.InvoiceCatalog = (*Static)(nil)
