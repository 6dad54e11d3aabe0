package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// FireGuard admits at most one scheduled trigger per calendar day.
type FireGuard interface {
	// Acquire reports whether day ("2006-01-02") may fire. Only the first
	// call for a given day returns true.
	Acquire(ctx context.Context, day string) (bool, error)
}

// MemoryFireGuard remembers the last day fired for the process lifetime.
type MemoryFireGuard struct {
	mu   sync.Mutex
	last string
}

func NewMemoryFireGuard() *MemoryFireGuard { return &MemoryFireGuard{} }

func (g *MemoryFireGuard) Acquire(_ context.Context, day string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == day {
		return false, nil
	}
	g.last = day
	return true, nil
}

// RedisFireGuard records fired days in Redis with SET NX, so a restart
// inside the trigger minute, or a second scheduler process, does not fire
// the same day twice.
type RedisFireGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisFireGuard(client *redis.Client) *RedisFireGuard {
	return &RedisFireGuard{client: client, prefix: "adpromo:fired:", ttl: 48 * time.Hour}
}

func (g *RedisFireGuard) Acquire(ctx context.Context, day string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.prefix+day, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

var (
	_ FireGuard = (*MemoryFireGuard)(nil)
	_ FireGuard = (*RedisFireGuard)(nil)
)
