package sessioncache

import (
	"context"
	"time"

	"github.com/r3e-network/agent-governance/infrastructure/cache"
)

// Local is the single-node Cache backed by the teacher's in-process TTL
// cache. cmd/governanced uses it when the cache is disabled or has no URL.
type Local struct {
	ttl *cache.TTLCache
}

// NewLocal builds a Local cache whose entries expire after defaultTTL
// unless overridden per-Set call.
func NewLocal(defaultTTL time.Duration) *Local {
	return &Local{ttl: cache.NewTTLCache(defaultTTL)}
}

func (l *Local) Get(ctx context.Context, key string) (string, bool) {
	v, ok := l.ttl.Get(ctx, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Set stores value under key. The teacher's TTLCache has no per-entry TTL
// override, so ttl is honored only at NewLocal's granularity; callers that
// need a per-key TTL should use the Redis-backed Cache instead.
func (l *Local) Set(ctx context.Context, key, value string, ttl time.Duration) {
	l.ttl.Set(ctx, key, value)
}

func (l *Local) Delete(ctx context.Context, key string) {
	l.ttl.Delete(ctx, key)
}
