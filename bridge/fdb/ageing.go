package fdb

import (
	"time"

	"go.uber.org/zap"
)

// Sweep removes every dynamic entry not confirmed within the current hold
// time, and returns the number of entries removed.
//
// Entries that claim a port which is no longer attached are removed too.
//
// Nothing ages out while the hold time is zero.
func (m *FDB) Sweep(now time.Time) int {
	holdTime := m.HoldTime()
	ageing := holdTime > 0

	m.mu.Lock()
	defer m.mu.Unlock()

	aged := 0
	stale := 0
	m.index.traverse(func(e *Entry) bool {
		switch {
		case ageing && m.isExpired(e, now, holdTime):
			m.unlinkUnlocked(e)
			aged++
		case !m.ports.Attached(e.Port()):
			m.log.Warnw("removing entry of detached port",
				zap.Stringer("addr", e.Addr()),
				zap.Uint16("port", uint16(e.Port())),
				zap.Bool("local", e.IsLocal()),
			)
			m.unlinkUnlocked(e)
			stale++
		}
		return true
	})

	m.stats.aged.Add(uint64(aged))
	m.stats.deleted.Add(uint64(stale))

	return aged + stale
}
