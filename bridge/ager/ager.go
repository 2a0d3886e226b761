package ager

import (
	"context"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// DefaultInterval is the default garbage collection period.
const DefaultInterval = 100 * time.Millisecond

// Sweeper removes stale entries as of the given time.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Option is a function that configures the ager.
type Option func(*options)

// WithInterval configures the ager with a sweep interval.
func WithInterval(interval time.Duration) Option {
	return func(o *options) {
		o.Interval = interval
	}
}

// WithClock configures the ager with a clock, mainly for tests.
func WithClock(clock clock.WithTicker) Option {
	return func(o *options) {
		o.Clock = clock
	}
}

// WithLog configures the ager with a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

type options struct {
	Interval time.Duration
	Clock    clock.WithTicker
	Log      *zap.SugaredLogger
}

func newOptions() *options {
	return &options{
		Interval: DefaultInterval,
		Clock:    clock.RealClock{},
		Log:      zap.NewNop().Sugar(),
	}
}

// Ager periodically sweeps the forwarding database.
type Ager struct {
	sweeper  Sweeper
	interval time.Duration
	clock    clock.WithTicker
	log      *zap.SugaredLogger
}

// NewAger creates a new ager.
func NewAger(sweeper Sweeper, options ...Option) *Ager {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Ager{
		sweeper:  sweeper,
		interval: interval,
		clock:    opts.Clock,
		log:      opts.Log,
	}
}

// Run runs the ager until the specified context is canceled.
func (m *Ager) Run(ctx context.Context) error {
	m.log.Debugw("starting ager", zap.Duration("interval", m.interval))
	defer m.log.Debugf("stopped ager")

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if n := m.sweeper.Sweep(m.clock.Now()); n > 0 {
				m.log.Debugw("swept expired entries", zap.Int("count", n))
			}
		}
	}
}
