// Package retry re-executes failed operations on the event loop with exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/filemesh/go-filemesh/eventloop"
)

// Config for the backoff.
type Config struct {
	// Initial is the delay before the first retry.
	Initial time.Duration `mapstructure:"initial"`
	// Max caps the delay between retries.
	Max time.Duration `mapstructure:"max"`
}

// DefaultConfig returns default configuration for the retrier.
func DefaultConfig() Config {
	return Config{
		Initial: time.Second,
		Max:     5 * time.Minute,
	}
}

// Opt for configuring Retrier.
type Opt func(*Retrier)

// WithLogger sets logger for the retrier.
func WithLogger(logger *zap.Logger) Opt {
	return func(r *Retrier) {
		r.logger = logger
	}
}

// WithConfig sets the backoff configuration.
func WithConfig(cfg Config) Opt {
	return func(r *Retrier) {
		r.cfg = cfg
	}
}

// Exponential returns a backoff that starts at initial and doubles up to max.
// Intervals are not randomized and the backoff never stops.
func Exponential(clock clockwork.Clock, initial, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Clock = clock
	b.Reset()
	return b
}

type attempt struct {
	backoff *backoff.ExponentialBackOff
	pending clockwork.Timer
}

// New creates a retrier that schedules attempts on the loop.
func New(loop *eventloop.Loop, opts ...Opt) *Retrier {
	r := &Retrier{
		logger:   zap.NewNop(),
		cfg:      DefaultConfig(),
		loop:     loop,
		attempts: map[string]*attempt{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrier executes named operations until they succeed.
// It is not safe for concurrent use and must be used from loop tasks only.
type Retrier struct {
	logger *zap.Logger
	cfg    Config
	loop   *eventloop.Loop

	attempts map[string]*attempt
}

// Run executes fn immediately. If fn fails, it is executed again after the backoff
// interval, that doubles after every failure up to the configured maximum.
// At most one attempt per name is pending, calling Run while an attempt is pending
// executes fn immediately and cancels the pending attempt if fn succeeds.
// fn may call Run for the same name.
func (r *Retrier) Run(ctx context.Context, name string, fn func(context.Context) error) {
	err := fn(ctx)
	a := r.attempts[name]
	if err == nil {
		if a != nil {
			if a.pending != nil {
				a.pending.Stop()
			}
			delete(r.attempts, name)
		}
		return
	}
	if a == nil {
		a = &attempt{backoff: Exponential(r.loop.Clock(), r.cfg.Initial, r.cfg.Max)}
		r.attempts[name] = a
	}
	if a.pending != nil {
		r.logger.Debug("attempt failed, retry already scheduled",
			zap.String("name", name),
			zap.Error(err),
		)
		return
	}
	interval := a.backoff.NextBackOff()
	retries.WithLabelValues(name).Inc()
	r.logger.Warn("attempt failed, scheduling retry",
		zap.String("name", name),
		zap.Duration("after", interval),
		zap.Error(err),
	)
	a.pending = r.loop.AfterFunc(interval, func(ctx context.Context) {
		if r.attempts[name] != a || a.pending == nil {
			return
		}
		a.pending = nil
		r.Run(ctx, name, fn)
	})
}

// Pending returns true if a retry is scheduled for the name.
func (r *Retrier) Pending(name string) bool {
	a := r.attempts[name]
	return a != nil && a.pending != nil
}

// Cancel drops the pending attempt and the backoff state of the name.
func (r *Retrier) Cancel(name string) {
	if a := r.attempts[name]; a != nil {
		if a.pending != nil {
			a.pending.Stop()
		}
		delete(r.attempts, name)
	}
}
