package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowRespectsPerKeyBurst(t *testing.T) {
	r := NewRegistry(map[Class]Limits{ClassUpdate: {RequestsPerSecond: 1, Burst: 2}}, time.Minute)

	assert.True(t, r.Allow("agent-a", ClassUpdate))
	assert.True(t, r.Allow("agent-a", ClassUpdate))
	assert.False(t, r.Allow("agent-a", ClassUpdate))
}

func TestAllowIsolatesByAgentAndClass(t *testing.T) {
	r := NewRegistry(map[Class]Limits{ClassUpdate: {RequestsPerSecond: 1, Burst: 1}}, time.Minute)

	assert.True(t, r.Allow("agent-a", ClassUpdate))
	assert.False(t, r.Allow("agent-a", ClassUpdate))
	assert.True(t, r.Allow("agent-b", ClassUpdate))
	assert.True(t, r.Allow("agent-a", ClassRead))
}

func TestReapIdleDropsStaleLimiters(t *testing.T) {
	r := NewRegistry(nil, time.Millisecond)
	r.Allow("agent-a", ClassRead)
	time.Sleep(5 * time.Millisecond)
	r.reapIdle()

	r.mu.Lock()
	n := len(r.limiters)
	r.mu.Unlock()
	assert.Equal(t, 0, n)
}
