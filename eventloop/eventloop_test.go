package eventloop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/filemesh/go-filemesh/log/logtest"
)

func TestDrainOrder(t *testing.T) {
	l := New(WithLogger(logtest.New(t)))
	var order []int
	l.Post(func(context.Context) {
		order = append(order, 1)
		l.Post(func(context.Context) { order = append(order, 3) })
	})
	l.Post(func(context.Context) { order = append(order, 2) })

	require.Equal(t, 3, l.Drain(context.Background()))
	require.Equal(t, []int{1, 2, 3}, order)
	require.Zero(t, l.Drain(context.Background()))
}

func TestAfterFunc(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(WithClock(clock))

	var mu sync.Mutex
	fired := 0
	l.AfterFunc(time.Second, func(context.Context) {
		mu.Lock()
		fired++
		mu.Unlock()
	})
	stopped := l.AfterFunc(time.Second, func(context.Context) {
		t.Error("stopped timer must not fire")
	})
	require.True(t, stopped.Stop())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		l.Drain(context.Background())
		mu.Lock()
		defer mu.Unlock()
		return fired == 1
	}, time.Second, time.Millisecond)
}

func TestRunAndCall(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	counter := 0
	for range 10 {
		l.Post(func(context.Context) { counter++ })
	}
	var observed int
	require.NoError(t, l.Call(ctx, func(context.Context) error {
		observed = counter
		return nil
	}))
	require.Equal(t, 10, observed)

	errTest := errors.New("test")
	require.ErrorIs(t, l.Call(ctx, func(context.Context) error { return errTest }), errTest)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
