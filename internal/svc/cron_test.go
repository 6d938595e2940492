package svc

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestCronLoopRunsJobOnSchedule(t *testing.T) {
	var runs int32
	loop := NewCronLoop("* * * * * *", func(ctx context.Context) {
		atomic.AddInt32(&runs, 1)
	}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	loop.Run(ctx)

	if atomic.LoadInt32(&runs) == 0 {
		t.Fatal("expected the every-second job to run at least once")
	}
}
