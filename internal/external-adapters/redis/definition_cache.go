// Package redis caches knowledge-base definitions in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ochairo/kdibridge/internal/domain/entities"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "kdibridge:kb:"

// store is the part of *redis.Client the cache uses
type store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// DefinitionCache implements gateways.DefinitionCache on Redis.
// Entries are JSON encoded and expire after ttl.
type DefinitionCache struct {
	rdb       store
	closer    func() error
	namespace string
	ttl       time.Duration
}

// NewDefinitionCache connects to Redis and checks the connection
func NewDefinitionCache(ctx context.Context, addr, password string, db int, namespace string, ttl time.Duration) (*DefinitionCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	cache := newDefinitionCache(rdb, namespace, ttl)
	cache.closer = rdb.Close
	return cache, nil
}

func newDefinitionCache(rdb store, namespace string, ttl time.Duration) *DefinitionCache {
	return &DefinitionCache{
		rdb:       rdb,
		closer:    func() error { return nil },
		namespace: namespace,
		ttl:       ttl,
	}
}

// GetDefinition returns the cached definition of id, if any
func (c *DefinitionCache) GetDefinition(ctx context.Context, id string) (entities.DefinitionInfo, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return entities.DefinitionInfo{}, false, nil
	}
	if err != nil {
		return entities.DefinitionInfo{}, false, fmt.Errorf("failed to read definition %s: %w", id, err)
	}

	var info entities.DefinitionInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		// A corrupt entry is a miss; the next Put overwrites it
		return entities.DefinitionInfo{}, false, nil
	}
	return info, true, nil
}

// PutDefinition stores info under its id
func (c *DefinitionCache) PutDefinition(ctx context.Context, info entities.DefinitionInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal definition %s: %w", info.ID, err)
	}
	if err := c.rdb.Set(ctx, c.key(info.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store definition %s: %w", info.ID, err)
	}
	return nil
}

// Close closes the Redis connection
func (c *DefinitionCache) Close() error {
	return c.closer()
}

func (c *DefinitionCache) key(id string) string {
	return keyPrefix + c.namespace + ":" + id
}
