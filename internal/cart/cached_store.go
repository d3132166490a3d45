package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trilltino/handyman/internal/domain"
	"github.com/trilltino/handyman/internal/logger"
	"go.uber.org/zap"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache holds copies of durable carts. Every Invalidate bumps the session's
// generation; Fill writes only if the generation is still the one read
// before the primary was consulted.
type Cache interface {
	Get(ctx context.Context, sessionID string) (*domain.Cart, error)
	Generation(ctx context.Context, sessionID string) (int64, error)
	Fill(ctx context.Context, c *domain.Cart, generation int64) error
	Invalidate(ctx context.Context, sessionID string) error
}

// fillScript sets KEYS[1] only while KEYS[2] still holds ARGV[2].
var fillScript = redis.NewScript(`
local gen = redis.call("GET", KEYS[2])
if not gen then
	gen = "0"
end
if gen ~= ARGV[2] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

// RedisCache holds short-lived copies of durable carts. TTLs are jittered so
// a burst of writes does not expire all at once.
type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, baseTTL: baseTTL}
}

func (r *RedisCache) Get(ctx context.Context, sessionID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var c domain.Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &c, nil
}

func (r *RedisCache) Generation(ctx context.Context, sessionID string) (int64, error) {
	gen, err := r.client.Get(ctx, generationKey(sessionID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation failed: %w", err)
	}
	return gen, nil
}

func (r *RedisCache) Fill(ctx context.Context, c *domain.Cart, generation int64) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	ttl := r.baseTTL + time.Duration(rand.Intn(5))*time.Minute
	keys := []string{cacheKey(c.SessionID), generationKey(c.SessionID)}
	if err := fillScript.Run(ctx, r.client, keys, data, generation, ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis fill failed: %w", err)
	}
	return nil
}

// Invalidate drops the cached copy and bumps the generation. The generation
// outlives any cached copy so a fill that read the old value always loses.
func (r *RedisCache) Invalidate(ctx context.Context, sessionID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, cacheKey(sessionID))
		pipe.Incr(ctx, generationKey(sessionID))
		pipe.Expire(ctx, generationKey(sessionID), r.baseTTL+time.Hour)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

func cacheKey(sessionID string) string {
	return fmt.Sprintf("cart-cache:%s", sessionID)
}

func generationKey(sessionID string) string {
	return fmt.Sprintf("cart-cache-gen:%s", sessionID)
}

// CachedStore puts a cache in front of a durable Store. Reads fill the cache,
// writes go to the primary and invalidate. Cache faults never fail a request.
type CachedStore struct {
	primary Store
	cache   Cache
}

func NewCachedStore(primary Store, cache Cache) *CachedStore {
	return &CachedStore{primary: primary, cache: cache}
}

func (s *CachedStore) Get(ctx context.Context, sessionID string) (*domain.Cart, error) {
	log := logger.FromContext(ctx)

	c, err := s.cache.Get(ctx, sessionID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		log.Warn("cart cache get failed", zap.Error(err))
	}

	gen, genErr := s.cache.Generation(ctx, sessionID)
	if genErr != nil {
		log.Warn("cart cache generation read failed", zap.Error(genErr))
	}

	c, err = s.primary.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if genErr == nil {
		if err := s.cache.Fill(ctx, c, gen); err != nil {
			log.Warn("cart cache fill failed", zap.Error(err))
		}
	}
	return c, nil
}

func (s *CachedStore) Save(ctx context.Context, c *domain.Cart) error {
	if err := s.primary.Save(ctx, c); err != nil {
		return err
	}
	s.invalidate(ctx, c.SessionID)
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.primary.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.invalidate(ctx, sessionID)
	return nil
}

func (s *CachedStore) invalidate(ctx context.Context, sessionID string) {
	if err := s.cache.Invalidate(ctx, sessionID); err != nil {
		logger.FromContext(ctx).Warn("cart cache invalidate failed", zap.Error(err))
	}
}
