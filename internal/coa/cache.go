package coa

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CachedRepository decorates a Repository with a Redis read-through cache.
// Charts change rarely relative to how often generation reads them, and a
// tenant regeneration re-reads the same chart for every document.
type CachedRepository struct {
	inner  Repository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCachedRepository wraps inner with a Redis cache.
func NewCachedRepository(inner Repository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedRepository{inner: inner, client: client, ttl: ttl, logger: logger}
}

func chartKey(tenantID int64) string {
	return fmt.Sprintf("coa:chart:%d", tenantID)
}

// ListAccounts returns the tenant chart, serving from Redis when possible.
// Cache failures degrade to the database, never to an error.
func (r *CachedRepository) ListAccounts(ctx context.Context, tenantID int64) ([]Account, error) {
	key := chartKey(tenantID)
	if r.client != nil {
		payload, err := r.client.Get(ctx, key).Bytes()
		if err == nil {
			var accounts []Account
			if jsonErr := json.Unmarshal(payload, &accounts); jsonErr == nil {
				return accounts, nil
			}
			_ = r.client.Del(ctx, key).Err()
		} else if err != redis.Nil && r.logger != nil {
			r.logger.Warn("chart cache read", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
		}
	}

	value, err, _ := r.group.Do(key, func() (any, error) {
		accounts, err := r.inner.ListAccounts(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if r.client != nil {
			if payload, jsonErr := json.Marshal(accounts); jsonErr == nil {
				if setErr := r.client.Set(ctx, key, payload, r.ttl).Err(); setErr != nil && r.logger != nil {
					r.logger.Warn("chart cache write", slog.Int64("tenant_id", tenantID), slog.Any("error", setErr))
				}
			}
		}
		return accounts, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]Account), nil
}

// Invalidate drops the cached chart for a tenant.
func (r *CachedRepository) Invalidate(ctx context.Context, tenantID int64) error {
	if r.client == nil {
		return nil
	}
	return r.client.Del(ctx, chartKey(tenantID)).Err()
}
