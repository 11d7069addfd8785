package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/recurpay/billing-gateway/internal/scheduler"
)

func TestClockTime_NextAfter(t *testing.T) {
	six := scheduler.At(6, 0)

	before := time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC), six.NextAfter(before))

	exactly := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 11, 6, 0, 0, 0, time.UTC), six.NextAfter(exactly),
		"the scheduled instant itself belongs to the previous fire")

	after := time.Date(2026, 3, 10, 7, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 11, 6, 0, 0, 0, time.UTC), six.NextAfter(after))
}

func TestScheduler_RunsIntervalTask(t *testing.T) {
	s := scheduler.New(zap.NewNop(), 2)
	var runs atomic.Int64

	require.NoError(t, s.Register(scheduler.Task{
		Name:  "tick",
		Every: 5 * time.Millisecond,
		Run: func(ctx context.Context, now time.Time, bound int32) error {
			runs.Add(1)
			return nil
		},
	}))
	require.NoError(t, s.Start())
	defer s.Stop(context.Background())

	require.Eventually(t, func() bool { return runs.Load() >= 2 },
		2*time.Second, 5*time.Millisecond, "interval task should keep firing")
}

func TestScheduler_PassesBoundAndFireTime(t *testing.T) {
	s := scheduler.New(zap.NewNop(), 2)
	var gotBound atomic.Int32
	var utc atomic.Bool

	require.NoError(t, s.Register(scheduler.Task{
		Name:  "bounded",
		Every: 5 * time.Millisecond,
		Bound: 42,
		Run: func(ctx context.Context, now time.Time, bound int32) error {
			gotBound.Store(bound)
			utc.Store(now.Location() == time.UTC)
			return nil
		},
	}))
	require.NoError(t, s.Start())
	defer s.Stop(context.Background())

	require.Eventually(t, func() bool { return gotBound.Load() == 42 },
		2*time.Second, 5*time.Millisecond)
	assert.True(t, utc.Load(), "fire time must be UTC")
}

func TestScheduler_RecoversFromPanic(t *testing.T) {
	s := scheduler.New(zap.NewNop(), 2)
	var runs atomic.Int64

	require.NoError(t, s.Register(scheduler.Task{
		Name:  "explosive",
		Every: 5 * time.Millisecond,
		Run: func(ctx context.Context, now time.Time, bound int32) error {
			runs.Add(1)
			panic("boom")
		},
	}))
	require.NoError(t, s.Start())
	defer s.Stop(context.Background())

	// A second run proves the cadence goroutine survived the first panic.
	require.Eventually(t, func() bool { return runs.Load() >= 2 },
		2*time.Second, 5*time.Millisecond)
}

func TestScheduler_TimeoutCancelsRun(t *testing.T) {
	s := scheduler.New(zap.NewNop(), 2)
	var sawDeadline atomic.Bool

	require.NoError(t, s.Register(scheduler.Task{
		Name:    "slow",
		Every:   5 * time.Millisecond,
		Timeout: 5 * time.Millisecond,
		Run: func(ctx context.Context, now time.Time, bound int32) error {
			<-ctx.Done()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				sawDeadline.Store(true)
			}
			return ctx.Err()
		},
	}))
	require.NoError(t, s.Start())
	defer s.Stop(context.Background())

	require.Eventually(t, func() bool { return sawDeadline.Load() },
		2*time.Second, 5*time.Millisecond)
}

func TestScheduler_StopHaltsCadence(t *testing.T) {
	s := scheduler.New(zap.NewNop(), 2)
	var runs atomic.Int64

	require.NoError(t, s.Register(scheduler.Task{
		Name:  "tick",
		Every: 5 * time.Millisecond,
		Run: func(ctx context.Context, now time.Time, bound int32) error {
			runs.Add(1)
			return nil
		},
	}))
	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return runs.Load() >= 1 },
		2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))
	after := runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after stop")
}

func TestScheduler_PoolBoundsConcurrency(t *testing.T) {
	s := scheduler.New(zap.NewNop(), 1)
	var active atomic.Int64
	var overLimit atomic.Bool

	work := func(ctx context.Context, now time.Time, bound int32) error {
		if active.Add(1) > 1 {
			overLimit.Store(true)
		}
		defer active.Add(-1)
		time.Sleep(10 * time.Millisecond)
		return nil
	}
	require.NoError(t, s.Register(scheduler.Task{Name: "a", Every: 2 * time.Millisecond, Run: work}))
	require.NoError(t, s.Register(scheduler.Task{Name: "b", Every: 2 * time.Millisecond, Run: work}))
	require.NoError(t, s.Start())

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, overLimit.Load(), "pool of one must serialize tasks")
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := scheduler.New(zap.NewNop(), 2)
	run := func(ctx context.Context, now time.Time, bound int32) error { return nil }

	assert.Error(t, s.Register(scheduler.Task{Every: time.Minute, Run: run}), "name required")
	assert.Error(t, s.Register(scheduler.Task{Name: "t", Every: time.Minute}), "run required")
	assert.Error(t, s.Register(scheduler.Task{Name: "t", Run: run}), "cadence required")
	assert.Error(t, s.Register(scheduler.Task{
		Name: "t", Every: time.Minute, At: scheduler.At(6, 0), Run: run,
	}), "two cadences rejected")

	require.NoError(t, s.Register(scheduler.Task{Name: "ok", At: scheduler.At(6, 0), Run: run}))
	require.NoError(t, s.Start())
	defer s.Stop(context.Background())

	assert.Error(t, s.Register(scheduler.Task{Name: "late", Every: time.Minute, Run: run}),
		"registration closes at start")
}

func TestScheduler_StartTwiceErrors(t *testing.T) {
	s := scheduler.New(zap.NewNop(), 2)
	require.NoError(t, s.Register(scheduler.Task{
		Name: "once", At: scheduler.At(3, 0),
		Run: func(ctx context.Context, now time.Time, bound int32) error { return nil },
	}))
	require.NoError(t, s.Start())
	defer s.Stop(context.Background())

	assert.Error(t, s.Start())
}
