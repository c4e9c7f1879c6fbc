// Package cache is a tenant-scoped key/value cache with per-entry TTL.
//
// Keys are namespaced by tenant (customer) id, so two tenants can use the
// same key without ever seeing each other's values.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Cache is implemented by the in-memory and Redis backends.
type Cache interface {
	// Get returns the value and true on a hit. Expired entries are misses.
	Get(ctx context.Context, tenantID uuid.UUID, key string) ([]byte, bool, error)
	// Set stores value. A ttl <= 0 means the entry never expires.
	Set(ctx context.Context, tenantID uuid.UUID, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, tenantID uuid.UUID, key string) error
	// ClearTenant drops every entry of one tenant.
	ClearTenant(ctx context.Context, tenantID uuid.UUID) error
}

// GetJSON decodes a cached JSON value into T. A decode failure is reported
// as a miss so callers fall through to the source of truth.
func GetJSON[T any](ctx context.Context, c Cache, tenantID uuid.UUID, key string) (T, bool, error) {
	var out T
	raw, ok, err := c.Get(ctx, tenantID, key)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, nil
	}
	return out, true, nil
}

func SetJSON(ctx context.Context, c Cache, tenantID uuid.UUID, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, tenantID, key, raw, ttl)
}
