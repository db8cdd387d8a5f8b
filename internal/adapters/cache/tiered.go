package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Tiered reads through L1 then L2, writes to both, and keeps L1 coherent
// across nodes through the Redis invalidation channel.
type Tiered struct {
	L1     *MemoryCache
	L2     *RedisCache
	logger *slog.Logger
}

func NewTiered(l1 *MemoryCache, l2 *RedisCache, logger *slog.Logger) *Tiered {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tiered{L1: l1, L2: l2, logger: logger}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	if data, ok := t.L1.Get(ctx, key); ok {
		return data, true
	}
	data, ok := t.L2.Get(ctx, key)
	if !ok {
		return nil, false
	}
	if ttl, err := t.L2.client.TTL(ctx, keyPrefix+key).Result(); err == nil && ttl > 0 {
		t.L1.Set(ctx, key, data, ttl)
	}
	return data, true
}

func (t *Tiered) Set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	t.L1.Set(ctx, key, data, ttl)
	t.L2.Set(ctx, key, data, ttl)
}

func (t *Tiered) Delete(ctx context.Context, key string) error {
	return errors.Join(t.L1.Delete(ctx, key), t.L2.Delete(ctx, key))
}

func (t *Tiered) Ping(ctx context.Context) error {
	return t.L2.Ping(ctx)
}

// Listen drops invalidated keys from L1 until ctx is done.
func (t *Tiered) Listen(ctx context.Context) {
	ch := t.L2.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := t.L1.Delete(ctx, msg.Payload); err == nil {
				t.logger.Debug("invalidated settings cache entry", "key", msg.Payload)
			}
		}
	}
}
