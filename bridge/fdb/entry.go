package fdb

import (
	"sync/atomic"
	"time"
)

// EntryState is the lifecycle state of a forwarding entry.
type EntryState int

const (
	// StateLinked means the entry is reachable through the index.
	StateLinked EntryState = iota
	// StateUnlinking means the entry was removed from the index, but some
	// borrowers still hold it.
	StateUnlinking
	// StateReclaimed means the entry was removed and the last borrower has
	// released it.
	StateReclaimed
)

// String returns string representation of this state.
func (m EntryState) String() string {
	switch m {
	case StateLinked:
		return "LINKED"
	case StateUnlinking:
		return "UNLINKING"
	case StateReclaimed:
		return "RECLAIMED"
	default:
		return "UNKNOWN"
	}
}

// Entry is a forwarding database record mapping a hardware address to the
// port it is reachable through.
//
// The address and the local flag never change. The port, the timestamp and
// the static flag may be updated concurrently with readers, which observe
// either the old or the new value.
type Entry struct {
	addr  MAC
	local bool
	// created keeps the monotonic clock reading lastSeen is relative to.
	created time.Time

	next     atomic.Pointer[Entry]
	port     atomic.Uint32
	lastSeen atomic.Int64
	static   atomic.Bool
	linked   atomic.Bool
	// The index holds one reference while the entry is linked.
	refs atomic.Int32
}

func newEntry(addr MAC, port PortID, local bool, now time.Time) *Entry {
	e := &Entry{
		addr:    addr,
		local:   local,
		created: now,
	}
	e.port.Store(uint32(port))
	e.static.Store(local)
	e.refs.Store(1)

	return e
}

// Addr returns the hardware address of this entry.
func (m *Entry) Addr() MAC {
	return m.addr
}

// Port returns the port this address is reachable through.
func (m *Entry) Port() PortID {
	return PortID(m.port.Load())
}

// IsLocal reports whether the address belongs to one of the bridge ports.
func (m *Entry) IsLocal() bool {
	return m.local
}

// IsStatic reports whether the entry is exempt from ageing.
func (m *Entry) IsStatic() bool {
	return m.static.Load()
}

// LastSeen returns the time this entry was last confirmed.
func (m *Entry) LastSeen() time.Time {
	return m.created.Add(time.Duration(m.lastSeen.Load()))
}

// Refs returns the number of outstanding references, including the one held
// by the index while the entry is linked.
func (m *Entry) Refs() int {
	return int(m.refs.Load())
}

// State returns the current lifecycle state.
func (m *Entry) State() EntryState {
	switch {
	case m.refs.Load() <= 0:
		return StateReclaimed
	case !m.linked.Load():
		return StateUnlinking
	default:
		return StateLinked
	}
}

func (m *Entry) touch(port PortID, now time.Time) {
	m.port.Store(uint32(port))
	m.lastSeen.Store(int64(now.Sub(m.created)))
}

// tryAcquire takes a reference unless the entry is already reclaimed.
func (m *Entry) tryAcquire() bool {
	for {
		refs := m.refs.Load()
		if refs <= 0 {
			return false
		}
		if m.refs.CompareAndSwap(refs, refs+1) {
			return true
		}
	}
}

// put drops a reference and reports whether it was the last one.
func (m *Entry) put() bool {
	return m.refs.Add(-1) == 0
}
