package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/filemesh/go-filemesh/eventloop"
	"github.com/filemesh/go-filemesh/log/logtest"
)

type tester struct {
	clock clockwork.FakeClock
	loop  *eventloop.Loop
	r     *Retrier
}

func newTester(tb testing.TB) *tester {
	clock := clockwork.NewFakeClock()
	loop := eventloop.New(eventloop.WithClock(clock))
	return &tester{
		clock: clock,
		loop:  loop,
		r: New(loop,
			WithLogger(logtest.New(tb)),
			WithConfig(Config{Initial: time.Second, Max: 3 * time.Second}),
		),
	}
}

// advance moves the clock and executes the posted attempt.
func (tt *tester) advance(tb testing.TB, d time.Duration, calls *int, expect int) {
	tb.Helper()
	tt.clock.Advance(d)
	require.Eventually(tb, func() bool {
		tt.loop.Drain(context.Background())
		return *calls == expect
	}, time.Second, time.Millisecond)
}

func TestBackoff(t *testing.T) {
	tt := newTester(t)
	calls := 0
	fail := errors.New("fail")
	fn := func(context.Context) error {
		calls++
		if calls < 5 {
			return fail
		}
		return nil
	}
	tt.loop.Post(func(ctx context.Context) { tt.r.Run(ctx, "test", fn) })
	tt.loop.Drain(context.Background())
	require.Equal(t, 1, calls)
	require.True(t, tt.r.Pending("test"))

	tt.clock.BlockUntil(1)
	tt.advance(t, time.Second, &calls, 2)
	tt.clock.BlockUntil(1)
	tt.clock.Advance(time.Second)
	tt.loop.Drain(context.Background())
	require.Equal(t, 2, calls, "second retry waits twice as long")
	tt.advance(t, time.Second, &calls, 3)

	tt.clock.BlockUntil(1)
	tt.advance(t, 3*time.Second, &calls, 4)
	tt.clock.BlockUntil(1)
	tt.advance(t, 3*time.Second, &calls, 5)
	require.False(t, tt.r.Pending("test"))
}

func TestExponential(t *testing.T) {
	b := Exponential(clockwork.NewFakeClock(), time.Second, 3*time.Second)
	var intervals []time.Duration
	for range 4 {
		intervals = append(intervals, b.NextBackOff())
	}
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}, intervals)
	b.Reset()
	require.Equal(t, time.Second, b.NextBackOff())
}

func TestSinglePendingAttempt(t *testing.T) {
	tt := newTester(t)
	calls := 0
	fn := func(context.Context) error {
		calls++
		return errors.New("fail")
	}
	tt.loop.Post(func(ctx context.Context) {
		tt.r.Run(ctx, "test", fn)
		tt.r.Run(ctx, "test", fn)
		tt.r.Run(ctx, "test", fn)
	})
	tt.loop.Drain(context.Background())
	require.Equal(t, 3, calls)

	tt.clock.BlockUntil(1)
	tt.advance(t, time.Second, &calls, 4)
	tt.loop.Drain(context.Background())
	require.Equal(t, 4, calls)
}

func TestSuccessCancelsPending(t *testing.T) {
	tt := newTester(t)
	fail := true
	calls := 0
	fn := func(context.Context) error {
		calls++
		if fail {
			return errors.New("fail")
		}
		return nil
	}
	tt.loop.Post(func(ctx context.Context) { tt.r.Run(ctx, "test", fn) })
	tt.loop.Drain(context.Background())
	require.True(t, tt.r.Pending("test"))

	fail = false
	tt.loop.Post(func(ctx context.Context) { tt.r.Run(ctx, "test", fn) })
	tt.loop.Drain(context.Background())
	require.False(t, tt.r.Pending("test"))
	require.Equal(t, 2, calls)

	tt.clock.Advance(time.Minute)
	tt.loop.Drain(context.Background())
	require.Equal(t, 2, calls)
}

func TestCancel(t *testing.T) {
	tt := newTester(t)
	tt.loop.Post(func(ctx context.Context) {
		tt.r.Run(ctx, "test", func(context.Context) error { return errors.New("fail") })
	})
	tt.loop.Drain(context.Background())
	require.True(t, tt.r.Pending("test"))
	tt.r.Cancel("test")
	require.False(t, tt.r.Pending("test"))
}
