package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepo reads the provisioning-maintained number index and tenant config
// snapshots out of Redis.
//
// Key layout (written by the provisioning service):
//
//	destination_number:<e164> -> tenant ID
//	tenant_config:<id>        -> JSON tenant snapshot
//	tenant_activity:<id>      -> RFC3339 lastActivity stamp
type RedisRepo struct {
	rdb *redis.Client
}

func NewRedisRepo(rdb *redis.Client) *RedisRepo { return &RedisRepo{rdb: rdb} }

func (r *RedisRepo) TenantByNumber(ctx context.Context, number string) (Tenant, bool, error) {
	id, err := r.rdb.Get(ctx, "destination_number:"+number).Result()
	if errors.Is(err, redis.Nil) {
		return Tenant{}, false, nil
	}
	if err != nil {
		return Tenant{}, false, fmt.Errorf("tenant: number lookup failed: %w", err)
	}

	raw, err := r.rdb.Get(ctx, "tenant_config:"+id).Result()
	if errors.Is(err, redis.Nil) {
		// Index entry without a config snapshot; treat as unknown.
		return Tenant{}, false, nil
	}
	if err != nil {
		return Tenant{}, false, fmt.Errorf("tenant: config load failed: %w", err)
	}

	var t Tenant
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return Tenant{}, false, fmt.Errorf("tenant: config decode failed: %w", err)
	}
	return t, true, nil
}

func (r *RedisRepo) TouchActivity(ctx context.Context, tenantID string, at time.Time) error {
	return r.rdb.Set(ctx, "tenant_activity:"+tenantID, at.Format(time.RFC3339), 0).Err()
}
