package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	governanceerrors "github.com/r3e-network/agent-governance/infrastructure/errors"
)

func TestLocalAcquireReleaseRoundTrip(t *testing.T) {
	l := NewLocal(time.Second)
	ctx := context.Background()
	require.NoError(t, l.Start(ctx))
	defer l.Stop(ctx)

	h, err := l.Acquire(ctx, "agent-1", 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", h.Name())
	require.NoError(t, h.Release(ctx))

	h2, err := l.Acquire(ctx, "agent-1", 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, h2.Release(ctx))
}

func TestLocalAcquireContendedReturnsContention(t *testing.T) {
	l := NewLocal(50 * time.Millisecond)
	ctx := context.Background()
	require.NoError(t, l.Start(ctx))
	defer l.Stop(ctx)

	h, err := l.Acquire(ctx, "agent-2", 10*time.Second)
	require.NoError(t, err)
	defer h.Release(ctx)

	_, err = l.Acquire(ctx, "agent-2", time.Second)
	require.Error(t, err)
	assert.Equal(t, governanceerrors.ErrContention, governanceerrors.Code(err))
}

func TestLocalAcquireAfterExpiryReaped(t *testing.T) {
	l := NewLocal(2 * time.Second)
	l.reapInterval = 10 * time.Millisecond
	ctx := context.Background()
	require.NoError(t, l.Start(ctx))
	defer l.Stop(ctx)

	h, err := l.Acquire(ctx, "agent-3", 20*time.Millisecond)
	require.NoError(t, err)
	_ = h

	h2, err := l.Acquire(ctx, "agent-3", time.Second)
	require.NoError(t, err)
	require.NoError(t, h2.Release(ctx))
}

func TestLocalRenewExtendsTTL(t *testing.T) {
	l := NewLocal(200 * time.Millisecond)
	ctx := context.Background()
	require.NoError(t, l.Start(ctx))
	defer l.Stop(ctx)

	h, err := l.Acquire(ctx, "agent-4", 20*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, h.Renew(ctx, time.Second))

	time.Sleep(30 * time.Millisecond)

	_, err = l.Acquire(ctx, "agent-4", time.Second)
	require.Error(t, err)
	assert.Equal(t, governanceerrors.ErrContention, governanceerrors.Code(err))
	require.NoError(t, h.Release(ctx))
}
