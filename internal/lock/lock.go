// Package lock provides per-key exclusive leases used to keep at most one
// order submission running per session.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrHeld = errors.New("lock is held by another holder")

// Guard hands out leases. Release must be called with the token Acquire returned.
type Guard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Release(ctx context.Context, key, token string) error
}

// releaseScript deletes the key only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisGuard struct {
	client *redis.Client
	prefix string
}

func NewRedisGuard(client *redis.Client, prefix string) *RedisGuard {
	return &RedisGuard{client: client, prefix: prefix}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, g.key(key), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return "", ErrHeld
	}
	return token, nil
}

func (g *RedisGuard) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, g.client, []string{g.key(key)}, token).Err(); err != nil {
		return fmt.Errorf("redis release failed: %w", err)
	}
	return nil
}

func (g *RedisGuard) key(key string) string {
	return g.prefix + key
}

type lease struct {
	token   string
	expires time.Time
}

// MemoryGuard is a single-process Guard.
type MemoryGuard struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{
		leases: make(map[string]lease),
		now:    time.Now,
	}
}

func (g *MemoryGuard) Acquire(_ context.Context, key string, ttl time.Duration) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if l, ok := g.leases[key]; ok && now.Before(l.expires) {
		return "", ErrHeld
	}
	token := uuid.NewString()
	g.leases[key] = lease{token: token, expires: now.Add(ttl)}
	return token, nil
}

func (g *MemoryGuard) Release(_ context.Context, key, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if l, ok := g.leases[key]; ok && l.token == token {
		delete(g.leases, key)
	}
	return nil
}
