package svc

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agent-governance/pkg/logger"
)

type fakeDriver struct {
	name    string
	started int32
	stopped int32
	failStart bool
	order   *[]string
}

func (d *fakeDriver) Name() string { return d.name }
func (d *fakeDriver) Start(ctx context.Context) error {
	if d.failStart {
		return assert.AnError
	}
	atomic.AddInt32(&d.started, 1)
	return nil
}
func (d *fakeDriver) Stop(ctx context.Context) error {
	atomic.AddInt32(&d.stopped, 1)
	if d.order != nil {
		*d.order = append(*d.order, d.name)
	}
	return nil
}
func (d *fakeDriver) Ping(ctx context.Context) error { return nil }

func testLogger() *logger.Logger {
	return logger.New(logger.LoggingConfig{Level: "error", Format: "text", Output: "stdout"})
}

func TestRunnerStartsDriversThenLoopsAndStopsInReverse(t *testing.T) {
	r := New(testLogger())

	var order []string
	d1 := &fakeDriver{name: "d1", order: &order}
	d2 := &fakeDriver{name: "d2", order: &order}
	r.RegisterDriver(d1)
	r.RegisterDriver(d2)

	var loopRan int32
	r.RegisterLoop("sweep", LoopFunc(func(ctx context.Context) {
		atomic.AddInt32(&loopRan, 1)
		<-ctx.Done()
	}))

	require.NoError(t, r.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(1), d1.started)
	assert.Equal(t, int32(1), d2.started)
	assert.Equal(t, int32(1), atomic.LoadInt32(&loopRan))

	r.Stop(context.Background())
	assert.Equal(t, int32(1), d1.stopped)
	assert.Equal(t, int32(1), d2.stopped)
	assert.Equal(t, []string{"d2", "d1"}, order)
}

func TestRunnerRollsBackOnStartFailure(t *testing.T) {
	r := New(testLogger())
	d1 := &fakeDriver{name: "d1"}
	d2 := &fakeDriver{name: "d2", failStart: true}
	r.RegisterDriver(d1)
	r.RegisterDriver(d2)

	err := r.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), d1.started)
	assert.Equal(t, int32(1), d1.stopped)
}
