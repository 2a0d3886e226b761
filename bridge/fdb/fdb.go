package fdb

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"k8s.io/utils/clock"
)

// Ports is the set of ports currently attached to the bridge, as seen by
// the forwarding database.
//
// Implementations must not call back into the forwarding database and must
// not block: both methods are invoked with the write lock held.
type Ports interface {
	// SharingPort returns the first attached port, in port number order,
	// other than "except" whose hardware address equals addr.
	SharingPort(addr MAC, except PortID) (PortID, bool)
	// Attached reports whether the port is currently attached.
	Attached(port PortID) bool
}

// Option is a function that configures the forwarding database.
type Option func(*options)

// WithLog configures the forwarding database with a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

// WithClock configures the clock used by lookups and snapshots to evaluate
// entry expiry.
func WithClock(clock clock.PassiveClock) Option {
	return func(o *options) {
		o.Clock = clock
	}
}

// WithBuckets configures the number of hash buckets. The value is rounded up
// to a power of two.
func WithBuckets(buckets int) Option {
	return func(o *options) {
		o.Buckets = buckets
	}
}

// WithPorts configures the attached ports collaborator.
func WithPorts(ports Ports) Option {
	return func(o *options) {
		o.Ports = ports
	}
}

type options struct {
	Log     *zap.SugaredLogger
	Clock   clock.PassiveClock
	Buckets int
	Ports   Ports
	// Alloc returns nil when an entry cannot be allocated.
	Alloc func(addr MAC, port PortID, local bool, now time.Time) *Entry
}

func newOptions() *options {
	return &options{
		Log:     zap.NewNop().Sugar(),
		Clock:   clock.RealClock{},
		Buckets: DefaultBuckets,
		Ports:   anyPorts{},
		Alloc:   newEntry,
	}
}

// anyPorts treats every port as attached and shares no addresses.
type anyPorts struct{}

func (anyPorts) SharingPort(MAC, PortID) (PortID, bool) { return NoPort, false }
func (anyPorts) Attached(PortID) bool                   { return true }

// FDB is the forwarding database of a learning bridge.
//
// Lookups and the learning fast path never take the lock. Structural
// changes (link, unlink, relocation of local entries, sweeps) are serialized
// by a single table-wide mutex.
type FDB struct {
	mu     sync.Mutex
	index  *index
	size   atomic.Int64
	timers Timers
	ports  Ports
	clock  clock.PassiveClock
	alloc  func(addr MAC, port PortID, local bool, now time.Time) *Entry
	// ownAddrLimit rate limits the "own address as source" diagnostic.
	ownAddrLimit *rate.Limiter
	stats        stats
	log          *zap.SugaredLogger
}

// NewFDB creates a new empty forwarding database.
func NewFDB(timers Timers, options ...Option) *FDB {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	return &FDB{
		index:        newIndex(opts.Buckets),
		timers:       timers,
		ports:        opts.Ports,
		clock:        opts.Clock,
		alloc:        opts.Alloc,
		ownAddrLimit: rate.NewLimiter(rate.Every(500*time.Millisecond), 10),
		log:          opts.Log,
	}
}

// Len returns the number of linked entries.
func (m *FDB) Len() int {
	return int(m.size.Load())
}

// Buckets returns the number of hash buckets.
func (m *FDB) Buckets() int {
	return m.index.Len()
}

// Stats returns a snapshot of the counters.
func (m *FDB) Stats() Stats {
	return m.stats.snapshot()
}

// HoldTime returns the current hold time.
func (m *FDB) HoldTime() time.Duration {
	return HoldTime(m.timers)
}

func (m *FDB) isExpired(e *Entry, now time.Time, holdTime time.Duration) bool {
	return !e.IsStatic() && now.Sub(e.LastSeen()) >= holdTime
}

// Lookup returns the live entry for the given address with a reference
// taken. The caller must pass the entry to Release once done with it.
//
// The returned entry is a snapshot in time: it may be relocated or removed
// concurrently, but stays valid to read until released.
//
// Entries that are expired but not yet swept are treated as absent.
func (m *FDB) Lookup(addr MAC) (*Entry, bool) {
	e := m.index.find(addr)
	if e == nil {
		return nil, false
	}
	if m.isExpired(e, m.clock.Now(), m.HoldTime()) {
		return nil, false
	}
	if !e.tryAcquire() {
		return nil, false
	}

	return e, true
}

// Release drops a reference obtained from Lookup.
func (m *FDB) Release(e *Entry) {
	if e.put() {
		m.reclaim(e)
	}
}

// Resolve returns the port the address is reachable through and whether
// it is one of our own addresses.
func (m *FDB) Resolve(addr MAC) (port PortID, local bool, ok bool) {
	e, ok := m.Lookup(addr)
	if !ok {
		return NoPort, false, false
	}
	defer m.Release(e)

	return e.Port(), e.IsLocal(), true
}

// Update records that addr was seen as the source of a frame received on
// the given port.
//
// Never fails: when learning is impossible the frame is simply flooded
// until a later update succeeds. Filtering bogus source addresses is up to
// the caller.
func (m *FDB) Update(port PortID, addr MAC, now time.Time) {
	// Some users want to always flood.
	if m.HoldTime() == 0 {
		return
	}

	if e := m.index.find(addr); e != nil {
		m.refresh(e, port, now)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Someone may have learned it while we were waiting for the lock.
	if e := m.index.find(addr); e != nil {
		m.refresh(e, port, now)
		return
	}

	e := m.alloc(addr, port, false, now)
	if e == nil {
		m.stats.learnFailures.Add(1)
		m.log.Debugw("failed to learn address",
			zap.Stringer("addr", addr),
			zap.Uint16("port", uint16(port)),
			zap.Error(ErrOutOfMemory),
		)
		return
	}

	m.linkUnlocked(e)
	m.stats.learned.Add(1)
}

func (m *FDB) refresh(e *Entry, port PortID, now time.Time) {
	if e.IsLocal() {
		m.stats.ownAddress.Add(1)
		if m.ownAddrLimit.Allow() {
			m.log.Warnw("received packet with own address as source address",
				zap.Stringer("addr", e.Addr()),
				zap.Uint16("port", uint16(port)),
				zap.Uint16("owner", uint16(e.Port())),
			)
		}
		return
	}

	e.touch(port, now)
	m.stats.refreshed.Add(1)
}

// InsertLocal registers addr as the hardware address of the given port.
//
// Registering the same address on the same port again is a no-op. If
// another port already owns the address locally, the entry moves to this
// port. A learned entry for the address is replaced.
func (m *FDB) InsertLocal(port PortID, addr MAC) error {
	if !addr.IsValidUnicast() {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, addr)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.insertLocalUnlocked(port, addr)
}

func (m *FDB) insertLocalUnlocked(port PortID, addr MAC) error {
	if e := m.index.find(addr); e != nil {
		if e.IsLocal() {
			if owner := e.Port(); owner != port {
				m.log.Infow("moving shared local address",
					zap.Stringer("addr", addr),
					zap.Uint16("from", uint16(owner)),
					zap.Uint16("to", uint16(port)),
				)
				e.port.Store(uint32(port))
			}
			return nil
		}

		m.log.Warnw("adding interface with same address as a received packet",
			zap.Stringer("addr", addr),
			zap.Uint16("port", uint16(port)),
			zap.Uint16("learned_port", uint16(e.Port())),
		)
		m.stats.conflicts.Add(1)
		m.unlinkUnlocked(e)
	}

	e := m.alloc(addr, port, true, m.clock.Now())
	if e == nil {
		m.stats.learnFailures.Add(1)
		return ErrOutOfMemory
	}

	m.linkUnlocked(e)
	return nil
}

// ChangeAddress is called when the hardware address of a port changes.
//
// The old local entry of the port is handed over to another attached port
// sharing that address, or removed otherwise. Then addr is registered as
// the local address of the port.
func (m *FDB) ChangeAddress(port PortID, addr MAC) error {
	if !addr.IsValidUnicast() {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, addr)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// The index is keyed by address, so the old one has to be searched for.
	m.index.traverse(func(e *Entry) bool {
		if !e.IsLocal() || e.Port() != port {
			return true
		}
		if e.Addr() == addr {
			return false
		}

		if other, ok := m.ports.SharingPort(e.Addr(), port); ok {
			e.port.Store(uint32(other))
		} else {
			m.unlinkUnlocked(e)
			m.stats.deleted.Add(1)
		}
		return false
	})

	return m.insertLocalUnlocked(port, addr)
}

// DeleteByPort removes every entry reachable through the given port.
//
// Local entries whose address is shared with another attached port are
// handed over to that port instead.
func (m *FDB) DeleteByPort(port PortID) int {
	return m.deletePort(port, true)
}

// FlushPort removes every non-static entry reachable through the given port.
func (m *FDB) FlushPort(port PortID) int {
	return m.deletePort(port, false)
}

func (m *FDB) deletePort(port PortID, all bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	m.index.traverse(func(e *Entry) bool {
		if e.Port() != port {
			return true
		}
		if e.IsStatic() && !all {
			return true
		}

		if e.IsLocal() {
			if other, ok := m.ports.SharingPort(e.Addr(), port); ok {
				e.port.Store(uint32(other))
				return true
			}
		}

		m.unlinkUnlocked(e)
		deleted++
		return true
	})

	m.stats.deleted.Add(uint64(deleted))
	if deleted > 0 {
		m.log.Debugw("deleted port entries",
			zap.Uint16("port", uint16(port)),
			zap.Bool("static", all),
			zap.Int("count", deleted),
		)
	}

	return deleted
}

// Flush removes every non-static entry.
func (m *FDB) Flush() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	m.index.traverse(func(e *Entry) bool {
		if !e.IsStatic() {
			m.unlinkUnlocked(e)
			deleted++
		}
		return true
	})

	m.stats.deleted.Add(uint64(deleted))
	return deleted
}

// Delete removes the non-local entry for the given address.
func (m *FDB) Delete(addr MAC) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.index.find(addr)
	if e == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	if e.IsLocal() {
		return fmt.Errorf("%w: %s", ErrLocalEntry, addr)
	}

	m.unlinkUnlocked(e)
	m.stats.deleted.Add(1)
	return nil
}

// SetStatic pins or unpins a non-local entry. Static entries are never aged
// out.
func (m *FDB) SetStatic(addr MAC, static bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.index.find(addr)
	if e == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	if e.IsLocal() {
		if static {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrLocalEntry, addr)
	}

	e.static.Store(static)
	return nil
}

func (m *FDB) linkUnlocked(e *Entry) {
	m.index.insertUnlocked(e)
	m.size.Add(1)
}

func (m *FDB) unlinkUnlocked(e *Entry) {
	if !m.index.unlinkUnlocked(e) {
		m.log.Errorw("entry is not linked", zap.Stringer("addr", e.Addr()))
		return
	}
	m.size.Add(-1)

	// Drop the reference held by the index.
	m.Release(e)
}

func (m *FDB) reclaim(e *Entry) {
	m.stats.reclaimed.Add(1)
}
