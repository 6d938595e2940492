package sessioncache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocalGetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewLocal(time.Minute)

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Set(ctx, "session:sk-1", "agent-uuid-1", 0)
	v, ok := c.Get(ctx, "session:sk-1")
	assert.True(t, ok)
	assert.Equal(t, "agent-uuid-1", v)

	c.Delete(ctx, "session:sk-1")
	_, ok = c.Get(ctx, "session:sk-1")
	assert.False(t, ok)
}

func TestLocalImplementsCache(t *testing.T) {
	var _ Cache = (*Local)(nil)
	var _ Cache = (*Redis)(nil)
}
