package cache

import (
	"context"
	"time"

	"github.com/poyrazK/keypanel/internal/infrastructure/metrics"
	"github.com/redis/go-redis/v9"
)

// InvalidationChannel carries keys that every node must drop from its L1.
const InvalidationChannel = "keypanel:invalidation"

const keyPrefix = "keypanel:"

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr string, password string, db int) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: rdb}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		metrics.SettingsCache.WithLabelValues("l2", "miss").Inc()
		return nil, false
	}
	metrics.SettingsCache.WithLabelValues("l2", "hit").Inc()
	return val, true
}

func (r *RedisCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	r.client.Set(ctx, keyPrefix+key, data, ttl)
}

// Delete removes key from Redis and tells every node to drop it from L1.
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return err
	}
	return r.client.Publish(ctx, InvalidationChannel, key).Err()
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Subscribe returns a channel that receives invalidated keys.
func (r *RedisCache) Subscribe(ctx context.Context) <-chan *redis.Message {
	pubsub := r.client.Subscribe(ctx, InvalidationChannel)
	return pubsub.Channel()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
