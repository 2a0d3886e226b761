package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/vishvananda/netlink"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/yanet-platform/yabridge/bridge/fdb"
	"github.com/yanet-platform/yabridge/bridge/port"
)

// Ports is the set of bridge ports the monitor keeps in sync with the
// kernel.
type Ports interface {
	Attach(ifindex int, name string, addr fdb.MAC) (port.Port, error)
	Detach(ifindex int) (port.Port, error)
	SetAddress(ifindex int, addr fdb.MAC) (port.Port, error)
	Lookup(ifindex int) (port.Port, bool)
	List() []port.Port
}

// AgeingTimeSetter receives the ageing time configured on the kernel bridge.
type AgeingTimeSetter interface {
	SetAgeingTime(d time.Duration)
}

// Handle is the subset of netlink the monitor uses.
type Handle interface {
	LinkByName(name string) (netlink.Link, error)
	LinkList() ([]netlink.Link, error)
	LinkSubscribe(ch chan<- netlink.LinkUpdate, done <-chan struct{}, errFn func(error)) error
}

type netlinkHandle struct{}

func (netlinkHandle) LinkByName(name string) (netlink.Link, error) {
	return netlink.LinkByName(name)
}

func (netlinkHandle) LinkList() ([]netlink.Link, error) {
	return netlink.LinkList()
}

func (netlinkHandle) LinkSubscribe(ch chan<- netlink.LinkUpdate, done <-chan struct{}, errFn func(error)) error {
	opts := netlink.LinkSubscribeOptions{
		ErrorCallback: errFn,
	}
	return netlink.LinkSubscribeWithOptions(ch, done, opts)
}

// Option is a function that configures the link monitor.
type Option func(*options)

// WithLog configures the link monitor with a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

// WithAgeingTime makes the monitor mirror the ageing time of the kernel
// bridge into the given setter.
func WithAgeingTime(setter AgeingTimeSetter) Option {
	return func(o *options) {
		o.AgeingTime = setter
	}
}

// WithHandle configures the link monitor with a netlink handle.
func WithHandle(handle Handle) Option {
	return func(o *options) {
		o.Handle = handle
	}
}

type options struct {
	Log        *zap.SugaredLogger
	AgeingTime AgeingTimeSetter
	Handle     Handle
}

func newOptions() *options {
	return &options{
		Log:    zap.NewNop().Sugar(),
		Handle: netlinkHandle{},
	}
}

// LinkMonitor follows the slaves of a kernel bridge.
//
// Interfaces enslaved to the bridge are attached as ports, released ones are
// detached, and hardware address changes are propagated.
type LinkMonitor struct {
	bridge      string
	bridgeIndex int
	ports       Ports
	ageingTime  AgeingTimeSetter
	handle      Handle
	log         *zap.SugaredLogger
}

// NewLinkMonitor creates a new link monitor of the bridge with the given
// name.
func NewLinkMonitor(bridge string, ports Ports, options ...Option) *LinkMonitor {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	return &LinkMonitor{
		bridge:     bridge,
		ports:      ports,
		ageingTime: opts.AgeingTime,
		handle:     opts.Handle,
		log:        opts.Log,
	}
}

// Run runs the link monitor until the specified context is canceled.
//
// The subscription is reestablished with exponential backoff when the
// kernel drops it, resynchronizing the ports each time.
func (m *LinkMonitor) Run(ctx context.Context) error {
	m.log.Debugw("starting links monitor", zap.String("bridge", m.bridge))
	defer m.log.Debugf("stopped links monitor")

	runBackoff := backoff.ExponentialBackOff{
		InitialInterval:     backoff.DefaultInitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         30 * time.Second,
	}
	runBackoff.Reset()

	for {
		err := m.runSubscription(ctx, runBackoff.Reset)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := runBackoff.NextBackOff()
		m.log.Warnw("links subscription failed",
			zap.Error(err),
			zap.Duration("retry_in", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (m *LinkMonitor) runSubscription(ctx context.Context, onSync func()) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	txRx := make(chan netlink.LinkUpdate, 16)
	errFn := func(err error) {
		m.log.Warnw("links subscription error", zap.Error(err))
	}
	if err := m.handle.LinkSubscribe(txRx, ctx.Done(), errFn); err != nil {
		return fmt.Errorf("failed to subscribe to links updates: %w", err)
	}

	// Subscribe first, so that nothing happening while listing is missed.
	if err := m.Sync(); err != nil {
		return err
	}
	onSync()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-txRx:
			if !ok {
				return errors.New("links subscription closed")
			}
			if err := m.processUpdate(update); err != nil {
				m.log.Warnw("failed to process link update", zap.Error(err))
			}
		}
	}
}

// Sync resolves the bridge and reconciles the ports with the current list
// of its slaves.
func (m *LinkMonitor) Sync() error {
	bridge, err := m.handle.LinkByName(m.bridge)
	if err != nil {
		return fmt.Errorf("failed to find bridge %q: %w", m.bridge, err)
	}
	m.updateBridge(bridge)

	links, err := m.handle.LinkList()
	if err != nil {
		return fmt.Errorf("failed to list links: %w", err)
	}

	slaves := map[int]struct{}{}
	for _, link := range links {
		attrs := link.Attrs()
		if attrs.MasterIndex != m.bridgeIndex {
			continue
		}

		slaves[attrs.Index] = struct{}{}
		if err := m.attachOrUpdate(attrs); err != nil {
			m.log.Warnw("failed to sync port", zap.String("name", attrs.Name), zap.Error(err))
		}
	}

	for _, p := range m.ports.List() {
		if _, ok := slaves[p.IfIndex]; !ok {
			m.detach(p.IfIndex)
		}
	}

	m.log.Infow("synced bridge ports",
		zap.String("bridge", m.bridge),
		zap.Int("ifindex", m.bridgeIndex),
		zap.Int("ports", len(slaves)),
	)

	return nil
}

func (m *LinkMonitor) processUpdate(update netlink.LinkUpdate) error {
	attrs := update.Link.Attrs()

	m.log.Debugw("processing link update",
		zap.Uint16("type", update.Header.Type),
		zap.String("name", attrs.Name),
		zap.Int("ifindex", attrs.Index),
		zap.Int("master", attrs.MasterIndex),
		zap.Stringer("addr", attrs.HardwareAddr),
	)

	switch update.Header.Type {
	case unix.RTM_NEWLINK:
		if attrs.Name == m.bridge {
			m.updateBridge(update.Link)
			return nil
		}

		if attrs.MasterIndex == m.bridgeIndex && m.bridgeIndex != 0 {
			return m.attachOrUpdate(attrs)
		}
		// Released from the bridge.
		m.detach(attrs.Index)
	case unix.RTM_DELLINK:
		if attrs.Index == m.bridgeIndex {
			m.log.Warnw("bridge removed", zap.String("bridge", m.bridge))
			m.bridgeIndex = 0
			for _, p := range m.ports.List() {
				m.detach(p.IfIndex)
			}
			return nil
		}

		m.detach(attrs.Index)
	default:
		m.log.Warnf("received unexpected link update type: %d", update.Header.Type)
	}

	return nil
}

func (m *LinkMonitor) updateBridge(link netlink.Link) {
	m.bridgeIndex = link.Attrs().Index

	bridge, ok := link.(*netlink.Bridge)
	if !ok || bridge.AgeingTime == nil || m.ageingTime == nil {
		return
	}

	// The kernel reports the ageing time in centiseconds.
	ageingTime := time.Duration(*bridge.AgeingTime) * 10 * time.Millisecond
	m.ageingTime.SetAgeingTime(ageingTime)
	m.log.Debugw("mirrored bridge ageing time", zap.Duration("ageing_time", ageingTime))
}

func (m *LinkMonitor) attachOrUpdate(attrs *netlink.LinkAttrs) error {
	addr, ok := fdb.MACFromSlice(attrs.HardwareAddr)
	if !ok {
		return fmt.Errorf("%w: %q has hardware address %q", fdb.ErrInvalidAddress, attrs.Name, attrs.HardwareAddr)
	}

	if p, ok := m.ports.Lookup(attrs.Index); ok {
		if p.Addr == addr {
			return nil
		}
		_, err := m.ports.SetAddress(attrs.Index, addr)
		return err
	}

	_, err := m.ports.Attach(attrs.Index, attrs.Name, addr)
	return err
}

func (m *LinkMonitor) detach(ifindex int) {
	if _, ok := m.ports.Lookup(ifindex); !ok {
		return
	}

	if _, err := m.ports.Detach(ifindex); err != nil {
		m.log.Warnw("failed to detach port", zap.Int("ifindex", ifindex), zap.Error(err))
	}
}
