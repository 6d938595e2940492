package sessioncache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis is the cluster-safe Cache backed by a shared Redis instance, used
// by cmd/governanced when the cache is enabled with a URL, so that
// multiple governance replicas
// agree on the same session bindings rather than each warming an
// independent in-process cache.
type Redis struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedis wraps an existing *redis.Client.
func NewRedis(client *redis.Client, keyPrefix string) *Redis {
	if keyPrefix == "" {
		keyPrefix = "governance:sessioncache:"
	}
	return &Redis{client: client, keyPrefix: keyPrefix}
}

func (r *Redis) key(k string) string { return r.keyPrefix + k }

func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) {
	r.client.Set(ctx, r.key(key), value, ttl)
}

func (r *Redis) Delete(ctx context.Context, key string) {
	r.client.Del(ctx, r.key(key))
}
