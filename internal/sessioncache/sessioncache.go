// Package sessioncache names and homes the session-key/transport-fingerprint
// to agent_uuid cache the Agent Registry & Identity Resolver consults before
// falling through to the durable store (spec §4.2's "resolve() consults the
// cache first, degrades to the store on a cache miss or cache failure"
// rule). It is grounded on the teacher's infrastructure/cache in-process TTL
// cache for single-node deployments, and on the teacher's internal/lock
// Redis driver pattern for a distributed-deployment backend, so a fleet of
// governance replicas shares one session cache instead of each keeping its
// own.
package sessioncache

import (
	"context"
	"time"
)

// Cache is the session-cache capability the identity resolver depends on.
// Implementations must treat Get as best-effort: a miss or backend error
// both resolve to (_, false), letting the resolver fall through to the
// durable store rather than fail the request.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Delete(ctx context.Context, key string)
}
