package customer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists caller profiles as JSON blobs with a retention TTL.
// Keys are tenant-scoped so one tenant can never read another's callers.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

const defaultRetention = 90 * 24 * time.Hour

func NewRedisStore(rdb *redis.Client, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = defaultRetention
	}
	return &RedisStore{rdb: rdb, ttl: retention}
}

func profileKey(tenantID, callerID string) string {
	return fmt.Sprintf("customer_context:%s:%s", tenantID, callerID)
}

func (s *RedisStore) Get(ctx context.Context, tenantID, callerID string) (Context, bool, error) {
	raw, err := s.rdb.Get(ctx, profileKey(tenantID, callerID)).Result()
	if errors.Is(err, redis.Nil) {
		return Context{}, false, nil
	}
	if err != nil {
		return Context{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var c Context
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		// Corrupt blob: treat as absent so the caller gets a fresh profile.
		return Context{}, false, nil
	}
	return c, true, nil
}

func (s *RedisStore) Put(ctx context.Context, c Context) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, profileKey(c.TenantID, c.CallerID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Anonymize(ctx context.Context, tenantID, callerID string) error {
	if err := s.rdb.Del(ctx, profileKey(tenantID, callerID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
