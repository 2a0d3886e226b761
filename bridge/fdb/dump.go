package fdb

import (
	"time"
)

// Record is a point-in-time view of a forwarding entry for the management
// plane.
type Record struct {
	Addr     MAC    `json:"addr" yaml:"addr"`
	Port     PortID `json:"port" yaml:"port"`
	IsLocal  bool   `json:"is_local" yaml:"is_local"`
	IsStatic bool   `json:"is_static" yaml:"is_static"`
	// Age is the time since the entry was last confirmed. Always zero for
	// static entries, which have no lifetime.
	Age time.Duration `json:"age" yaml:"age"`
}

// AgeIn returns the age expressed in the given unit, truncated.
func (m Record) AgeIn(unit time.Duration) int64 {
	if unit <= 0 {
		return int64(m.Age)
	}

	return int64(m.Age / unit)
}

// Fill writes up to len(buf) records of live, unexpired entries into buf,
// skipping the first "skip" of them, and returns the number written.
//
// The order is bucket-then-chain, stable while the table is not mutated, so
// that consecutive calls with increasing skip enumerate the whole table.
//
// Fill does not take the write lock.
func (m *FDB) Fill(buf []Record, skip int, now time.Time) int {
	holdTime := m.HoldTime()

	n := 0
	m.index.traverse(func(e *Entry) bool {
		if n >= len(buf) {
			return false
		}
		if m.isExpired(e, now, holdTime) {
			return true
		}
		if skip > 0 {
			skip--
			return true
		}

		buf[n] = newRecord(e, now)
		n++
		return true
	})

	return n
}

// Snapshot returns up to maxEntries records after skipping the first "skip"
// live entries. See Fill.
func (m *FDB) Snapshot(maxEntries int, skip int) []Record {
	if maxEntries <= 0 {
		return nil
	}

	buf := make([]Record, maxEntries)
	n := m.Fill(buf, skip, m.clock.Now())

	return buf[:n]
}

// Get returns a record of the live entry for the given address.
func (m *FDB) Get(addr MAC) (Record, bool) {
	e, ok := m.Lookup(addr)
	if !ok {
		return Record{}, false
	}
	defer m.Release(e)

	return newRecord(e, m.clock.Now()), true
}

func newRecord(e *Entry, now time.Time) Record {
	record := Record{
		Addr:     e.Addr(),
		Port:     e.Port(),
		IsLocal:  e.IsLocal(),
		IsStatic: e.IsStatic(),
	}
	if !record.IsStatic {
		record.Age = max(now.Sub(e.LastSeen()), 0)
	}

	return record
}
