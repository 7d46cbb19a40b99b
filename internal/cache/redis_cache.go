package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"orderdesk/backend/internal/domain"
)

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

type RedisMenuCache struct {
	client *redis.Client
}

func NewRedisMenuCache(client *redis.Client) *RedisMenuCache {
	return &RedisMenuCache{client: client}
}

func (c *RedisMenuCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisMenuCache) Close() error {
	return c.client.Close()
}

func (c *RedisMenuCache) Get(ctx context.Context, storeID string) ([]domain.MenuSnapshotLine, bool, error) {
	val, err := c.client.Get(ctx, menuKey(storeID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var menu []domain.MenuSnapshotLine
	if err := json.Unmarshal([]byte(val), &menu); err != nil {
		return nil, false, err
	}
	return menu, true, nil
}

func (c *RedisMenuCache) Set(ctx context.Context, storeID string, menu []domain.MenuSnapshotLine, ttl time.Duration) error {
	if menu == nil {
		return nil
	}
	payload, err := json.Marshal(menu)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, menuKey(storeID), payload, ttl).Err()
}
