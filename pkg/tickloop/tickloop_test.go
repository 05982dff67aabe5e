package tickloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDriverCallsRunnerOnEachTick(t *testing.T) {
	var calls int32
	runner := RunnerFunc(func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	d := NewDriver(runner, 10*time.Millisecond)
	d.Start(context.Background())
	time.Sleep(55 * time.Millisecond)
	d.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}

func TestDriverStopsOnContextCancel(t *testing.T) {
	var calls int32
	runner := RunnerFunc(func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	d := NewDriver(runner, 10*time.Millisecond)
	d.Start(ctx)
	time.Sleep(25 * time.Millisecond)
	cancel()

	stopped := atomic.LoadInt32(&calls)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, atomic.LoadInt32(&calls))
}
