package workers

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"
)

// Deduper claims event ids so each one is processed once, even when copies arrive concurrently.
type Deduper interface {
	// Claim reports whether the caller won the id. A false result means another delivery holds it.
	Claim(ctx context.Context, eventID string) (bool, error)
	// Release gives a claimed id back so a redelivery can process it.
	Release(ctx context.Context, eventID string) error
}

const dedupePrefix = "ledger:event:"

// RedisDeduper shares claimed ids across consumer replicas.
type RedisDeduper struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisDeduper(client redis.UniversalClient, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupePrefix+eventID, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	return ok, nil
}

func (d *RedisDeduper) Release(ctx context.Context, eventID string) error {
	if err := d.client.Del(ctx, dedupePrefix+eventID).Err(); err != nil {
		return fmt.Errorf("release event %s: %w", eventID, err)
	}
	return nil
}

// LRUDeduper is the single-replica fallback when Redis is not configured.
type LRUDeduper struct {
	cache *lru.Cache
}

func NewLRUDeduper(size int) (*LRUDeduper, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &LRUDeduper{cache: cache}, nil
}

func (d *LRUDeduper) Claim(_ context.Context, eventID string) (bool, error) {
	found, _ := d.cache.ContainsOrAdd(eventID, struct{}{})
	return !found, nil
}

func (d *LRUDeduper) Release(_ context.Context, eventID string) error {
	d.cache.Remove(eventID)
	return nil
}
