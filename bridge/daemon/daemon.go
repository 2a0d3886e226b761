package daemon

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/yanet-platform/yabridge/bridge/ager"
	"github.com/yanet-platform/yabridge/bridge/api"
	"github.com/yanet-platform/yabridge/bridge/discovery/link"
	"github.com/yanet-platform/yabridge/bridge/fdb"
	"github.com/yanet-platform/yabridge/bridge/port"
	"github.com/yanet-platform/yabridge/bridge/relay"
)

// Option is a function that configures the daemon.
type Option func(*options)

// WithLog configures the daemon with a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

// WithLinkHandle overrides the netlink handle of the link monitor.
func WithLinkHandle(handle link.Handle) Option {
	return func(o *options) {
		o.LinkHandle = handle
	}
}

type options struct {
	Log        *zap.SugaredLogger
	LinkHandle link.Handle
}

func newOptions() *options {
	return &options{
		Log: zap.NewNop().Sugar(),
	}
}

// Daemon keeps the forwarding database of a bridge and exposes it through
// the management API.
type Daemon struct {
	cfg     *Config
	timers  *fdb.BridgeTimers
	table   *fdb.FDB
	ports   *port.Manager
	ager    *ager.Ager
	monitor *link.LinkMonitor
	server  *api.Server
	log     *zap.SugaredLogger
}

// NewDaemon wires the daemon components together.
func NewDaemon(cfg *Config, options ...Option) *Daemon {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	log := opts.Log
	clk := clock.RealClock{}

	timers := fdb.NewBridgeTimers(&cfg.Bridge.Timers)
	registry := port.NewRegistry()
	table := fdb.NewFDB(timers,
		fdb.WithLog(log.With(zap.String("component", "fdb"))),
		fdb.WithClock(clk),
		fdb.WithBuckets(cfg.FDB.Buckets),
		fdb.WithPorts(registry),
	)
	ports := port.NewManager(registry, table, log.With(zap.String("component", "port")))

	classifier := relay.NewClassifier(table, clk, log.With(zap.String("component", "relay")))
	service := api.NewFDBService(table, timers, registry, classifier, log.With(zap.String("component", "api")))

	d := &Daemon{
		cfg:    cfg,
		timers: timers,
		table:  table,
		ports:  ports,
		ager: ager.NewAger(table,
			ager.WithInterval(cfg.Bridge.GCInterval),
			ager.WithClock(clk),
			ager.WithLog(log.With(zap.String("component", "ager"))),
		),
		server: api.NewServer(cfg.API, service, log.With(zap.String("component", "api"))),
		log:    log,
	}

	if cfg.Bridge.Name != "" {
		monitorOptions := []link.Option{
			link.WithLog(log.With(zap.String("component", "link"))),
		}
		if cfg.Bridge.FollowKernelAgeing {
			monitorOptions = append(monitorOptions, link.WithAgeingTime(timers))
		}
		if opts.LinkHandle != nil {
			monitorOptions = append(monitorOptions, link.WithHandle(opts.LinkHandle))
		}

		d.monitor = link.NewLinkMonitor(cfg.Bridge.Name, ports, monitorOptions...)
	}

	return d
}

// FDB returns the forwarding database.
func (m *Daemon) FDB() *fdb.FDB {
	return m.table
}

// Ports returns the port manager.
func (m *Daemon) Ports() *port.Manager {
	return m.ports
}

// Timers returns the bridge timers.
func (m *Daemon) Timers() *fdb.BridgeTimers {
	return m.timers
}

// Run runs the daemon until the specified context is canceled.
func (m *Daemon) Run(ctx context.Context) error {
	m.log.Infow("starting bridge daemon",
		zap.String("bridge", m.cfg.Bridge.Name),
		zap.Int("buckets", m.table.Buckets()),
		zap.Duration("ageing_time", m.timers.AgeingTime()),
		zap.Duration("forward_delay", m.timers.ForwardDelay()),
	)
	defer m.log.Infow("stopped bridge daemon")

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return m.ager.Run(ctx)
	})
	if m.monitor != nil {
		wg.Go(func() error {
			return m.monitor.Run(ctx)
		})
	}
	wg.Go(func() error {
		return m.server.Run(ctx)
	})

	return wg.Wait()
}
