package availability

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"callrouter-platform/pkg/utils"
)

// Counters is the shared agent-slot store. It owns the only genuinely shared
// mutable state in the routing core: per-agent concurrent-call counts.
//
// Acquire must be a single atomic check-then-increment so two calls can never
// both take an agent's last slot. Every successful Acquire must be paired
// with a Release on all exit paths.
type Counters interface {
	Acquire(ctx context.Context, key string, maxConcurrent int) (bool, error)
	Release(ctx context.Context, key string) error
	Load(ctx context.Context, key string) (int, error)
}

// AgentKey builds the slot key for an agent. Agent IDs are tenant-scoped, so
// the tenant ID is part of the key.
func AgentKey(tenantID, agentID string) string {
	return "agent_slots:" + tenantID + ":" + agentID
}

// RedisCounters backs Counters with the Lua slot scripts. The TTL protects
// against leaked holds from crashed processes; it must exceed any plausible
// call duration.
type RedisCounters struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCounters(rdb *redis.Client, ttl time.Duration) *RedisCounters {
	if ttl <= 0 {
		ttl = 4 * time.Hour
	}
	return &RedisCounters{rdb: rdb, ttl: ttl}
}

func (c *RedisCounters) Acquire(ctx context.Context, key string, maxConcurrent int) (bool, error) {
	return utils.AcquireCallSlot(ctx, c.rdb, key, maxConcurrent, c.ttl)
}

func (c *RedisCounters) Release(ctx context.Context, key string) error {
	return utils.ReleaseCallSlot(ctx, c.rdb, key)
}

func (c *RedisCounters) Load(ctx context.Context, key string) (int, error) {
	return utils.CallSlotLoad(ctx, c.rdb, key)
}

// MemoryCounters is an in-process Counters for tests and single-node runs.
type MemoryCounters struct {
	mu    sync.Mutex
	slots map[string]int
}

func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{slots: make(map[string]int)}
}

func (c *MemoryCounters) Acquire(ctx context.Context, key string, maxConcurrent int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slots[key] >= maxConcurrent {
		return false, nil
	}
	c.slots[key]++
	return true, nil
}

func (c *MemoryCounters) Release(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slots[key] > 0 {
		c.slots[key]--
		if c.slots[key] == 0 {
			delete(c.slots, key)
		}
	}
	return nil
}

func (c *MemoryCounters) Load(ctx context.Context, key string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots[key], nil
}
