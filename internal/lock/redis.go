package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	governanceerrors "github.com/r3e-network/agent-governance/infrastructure/errors"
	"github.com/r3e-network/agent-governance/internal/platform"
)

// renewScript extends a lock's TTL only if the caller still holds the
// token; releaseScript deletes it under the same guard. Both run atomically
// on the Redis side so renew/release never clobber a different holder's
// lock acquired after this one expired.
const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// Redis is the cluster-safe NamedLockDriver backed by a single Redis
// client shared across the deployment's governance processes.
type Redis struct {
	client         *redis.Client
	keyPrefix      string
	acquireTimeout time.Duration
}

// NewRedis wraps an existing *redis.Client. acquireTimeout bounds how long
// Acquire polls a contended key before returning CONTENTION.
func NewRedis(client *redis.Client, keyPrefix string, acquireTimeout time.Duration) *Redis {
	if keyPrefix == "" {
		keyPrefix = "governance:lock:"
	}
	if acquireTimeout <= 0 {
		acquireTimeout = 5 * time.Second
	}
	return &Redis{client: client, keyPrefix: keyPrefix, acquireTimeout: acquireTimeout}
}

func (r *Redis) Name() string { return "lock.redis" }

func (r *Redis) Start(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *Redis) Stop(ctx context.Context) error { return r.client.Close() }

func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *Redis) key(name string) string { return r.keyPrefix + name }

// ReapStale is a no-op: Redis expires stale lock keys itself via PX/TTL, so
// there is nothing for an operator-triggered sweep to clear. It exists so
// the cleanup_stale_locks admin operation can treat Local and Redis
// uniformly through the StaleLockReaper interface.
func (r *Redis) ReapStale(ctx context.Context) (int, error) {
	return 0, nil
}

// Acquire performs a SET NX PX loop: each attempt tries to create the key
// with a fresh random token, retrying with backoff until it succeeds or
// the acquisition timeout elapses.
func (r *Redis) Acquire(ctx context.Context, name string, ttl time.Duration) (platform.LockHandle, error) {
	token := uuid.NewString()
	key := r.key(name)
	deadline := time.Now().Add(r.acquireTimeout)

	poll := 10 * time.Millisecond
	for {
		ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, governanceerrors.Wrap(governanceerrors.ErrUnavailable, "redis lock backend error", err)
		}
		if ok {
			return &redisHandle{driver: r, name: name, key: key, token: token}, nil
		}

		if time.Now().After(deadline) {
			return nil, governanceerrors.Contention(name)
		}
		select {
		case <-ctx.Done():
			return nil, governanceerrors.Wrap(governanceerrors.ErrContention, "context cancelled waiting for lock", ctx.Err())
		case <-time.After(poll):
		}
		if poll < 200*time.Millisecond {
			poll *= 2
		}
	}
}

type redisHandle struct {
	driver *Redis
	name   string
	key    string
	token  string
}

func (h *redisHandle) Name() string { return h.name }

func (h *redisHandle) Renew(ctx context.Context, ttl time.Duration) error {
	res, err := h.driver.client.Eval(ctx, renewScript, []string{h.key}, h.token, ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("renew lock %q: %w", h.name, err)
	}
	if n, _ := res.(int64); n == 0 {
		return fmt.Errorf("lock %q is no longer held by this handle", h.name)
	}
	return nil
}

func (h *redisHandle) Release(ctx context.Context) error {
	_, err := h.driver.client.Eval(ctx, releaseScript, []string{h.key}, h.token).Result()
	if err != nil {
		return fmt.Errorf("release lock %q: %w", h.name, err)
	}
	return nil
}
