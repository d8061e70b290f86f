// Package eventloop runs tasks one at a time on a single control goroutine.
//
// State owned by a loop must only be touched from its tasks. Work that blocks
// is executed elsewhere and posts its result back with Post.
package eventloop

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Task is executed on the loop goroutine. ctx is canceled when the loop stops.
type Task func(ctx context.Context)

// Opt for configuring Loop.
type Opt func(*Loop)

// WithLogger sets logger for the loop.
func WithLogger(logger *zap.Logger) Opt {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithClock sets clock that is used by AfterFunc.
func WithClock(clock clockwork.Clock) Opt {
	return func(l *Loop) {
		l.clock = clock
	}
}

// New creates a loop. It doesn't execute tasks until Run or Drain is called.
func New(opts ...Opt) *Loop {
	l := &Loop{
		logger: zap.NewNop(),
		clock:  clockwork.NewRealClock(),
		notify: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Loop is a serial executor of tasks.
type Loop struct {
	logger *zap.Logger
	clock  clockwork.Clock

	mu     sync.Mutex
	tasks  []Task
	notify chan struct{}
}

// Clock returns the clock used by the loop.
func (l *Loop) Clock() clockwork.Clock {
	return l.clock
}

// Post schedules task for execution. Tasks are executed in the order they were posted.
// It is safe to call Post from any goroutine, including from a task.
func (l *Loop) Post(task Task) {
	l.mu.Lock()
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()
	pendingTasks.Inc()
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// AfterFunc posts task once d elapses. The returned timer may be used to cancel it.
func (l *Loop) AfterFunc(d time.Duration, task Task) clockwork.Timer {
	return l.clock.AfterFunc(d, func() {
		l.Post(task)
	})
}

// Call executes fn on the loop and waits for the result.
// It must not be called from a task.
func (l *Loop) Call(ctx context.Context, fn func(context.Context) error) error {
	rst := make(chan error, 1)
	l.Post(func(ctx context.Context) {
		rst <- fn(ctx)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-rst:
		return err
	}
}

func (l *Loop) pop() []Task {
	l.mu.Lock()
	defer l.mu.Unlock()
	tasks := l.tasks
	l.tasks = nil
	return tasks
}

func (l *Loop) execute(ctx context.Context, tasks []Task) {
	for _, task := range tasks {
		pendingTasks.Dec()
		executedTasks.Inc()
		task(ctx)
	}
}

// Run executes tasks until ctx is canceled. Tasks that are pending when ctx is canceled are dropped.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("event loop started")
	defer l.logger.Debug("event loop stopped")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.notify:
			for tasks := l.pop(); len(tasks) > 0; tasks = l.pop() {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				l.execute(ctx, tasks)
			}
		}
	}
}

// Drain executes pending tasks on the caller goroutine, including tasks posted
// by the executed ones, and returns the number of executed tasks.
// It must not be used together with Run.
func (l *Loop) Drain(ctx context.Context) int {
	executed := 0
	for tasks := l.pop(); len(tasks) > 0; tasks = l.pop() {
		l.execute(ctx, tasks)
		executed += len(tasks)
	}
	select {
	case <-l.notify:
	default:
	}
	return executed
}
