package fdb

import (
	"sync/atomic"
	"time"
)

// Timers provides the spanning-tree derived values the forwarding database
// ages entries with.
//
// Values are re-read on every update and every sweep.
type Timers interface {
	// AgeingTime is the hold time outside of a topology change window.
	AgeingTime() time.Duration
	// ForwardDelay is the hold time during a topology change window.
	ForwardDelay() time.Duration
	// TopologyChange reports whether a topology change window is active.
	TopologyChange() bool
}

// HoldTime returns the duration after which an unrefreshed dynamic entry
// expires.
//
// Zero means ageing is disabled and the bridge floods everything.
func HoldTime(t Timers) time.Duration {
	if t.TopologyChange() {
		return t.ForwardDelay()
	}

	return t.AgeingTime()
}

// TimersConfig is the static configuration of bridge timers.
type TimersConfig struct {
	// AgeingTime is the default hold time of learned entries.
	AgeingTime time.Duration `yaml:"ageing_time"`
	// ForwardDelay is the hold time used while a topology change is in
	// progress.
	ForwardDelay time.Duration `yaml:"forward_delay"`
}

// DefaultTimersConfig returns IEEE 802.1D default timers.
func DefaultTimersConfig() *TimersConfig {
	return &TimersConfig{
		AgeingTime:   300 * time.Second,
		ForwardDelay: 15 * time.Second,
	}
}

// BridgeTimers is a concurrently updatable Timers implementation.
//
// The spanning-tree collaborator flips the topology change flag, the link
// monitor may mirror the kernel bridge ageing time.
type BridgeTimers struct {
	ageingTime     atomic.Int64
	forwardDelay   atomic.Int64
	topologyChange atomic.Bool
}

// NewBridgeTimers creates timers initialized from the given config.
func NewBridgeTimers(cfg *TimersConfig) *BridgeTimers {
	t := &BridgeTimers{}
	t.SetAgeingTime(cfg.AgeingTime)
	t.SetForwardDelay(cfg.ForwardDelay)

	return t
}

// AgeingTime implements Timers.
func (m *BridgeTimers) AgeingTime() time.Duration {
	return time.Duration(m.ageingTime.Load())
}

// ForwardDelay implements Timers.
func (m *BridgeTimers) ForwardDelay() time.Duration {
	return time.Duration(m.forwardDelay.Load())
}

// TopologyChange implements Timers.
func (m *BridgeTimers) TopologyChange() bool {
	return m.topologyChange.Load()
}

// SetAgeingTime sets the ageing time. Negative values are clamped to zero.
func (m *BridgeTimers) SetAgeingTime(d time.Duration) {
	m.ageingTime.Store(int64(max(d, 0)))
}

// SetForwardDelay sets the forward delay. Negative values are clamped to
// zero.
func (m *BridgeTimers) SetForwardDelay(d time.Duration) {
	m.forwardDelay.Store(int64(max(d, 0)))
}

// SetTopologyChange enters or leaves the topology change window.
func (m *BridgeTimers) SetTopologyChange(active bool) {
	m.topologyChange.Store(active)
}
