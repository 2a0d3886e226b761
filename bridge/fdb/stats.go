package fdb

import (
	"sync/atomic"
)

// Stats is a snapshot of forwarding database counters.
type Stats struct {
	// Learned is the number of entries created from received traffic.
	Learned uint64 `json:"learned" yaml:"learned"`
	// Refreshed is the number of in-place port/timestamp updates.
	Refreshed uint64 `json:"refreshed" yaml:"refreshed"`
	// OwnAddress counts received frames carrying one of our own addresses
	// as the source.
	OwnAddress uint64 `json:"own_address" yaml:"own_address"`
	// Conflicts counts learned entries replaced by a local registration.
	Conflicts uint64 `json:"conflicts" yaml:"conflicts"`
	// Aged is the number of entries evicted by sweeps.
	Aged uint64 `json:"aged" yaml:"aged"`
	// Deleted is the number of entries removed by explicit, port or flush
	// operations.
	Deleted uint64 `json:"deleted" yaml:"deleted"`
	// Reclaimed is the number of removed entries released by their last
	// borrower.
	Reclaimed uint64 `json:"reclaimed" yaml:"reclaimed"`
	// LearnFailures counts failed entry allocations.
	LearnFailures uint64 `json:"learn_failures" yaml:"learn_failures"`
}

type stats struct {
	learned       atomic.Uint64
	refreshed     atomic.Uint64
	ownAddress    atomic.Uint64
	conflicts     atomic.Uint64
	aged          atomic.Uint64
	deleted       atomic.Uint64
	reclaimed     atomic.Uint64
	learnFailures atomic.Uint64
}

func (m *stats) snapshot() Stats {
	return Stats{
		Learned:       m.learned.Load(),
		Refreshed:     m.refreshed.Load(),
		OwnAddress:    m.ownAddress.Load(),
		Conflicts:     m.conflicts.Load(),
		Aged:          m.aged.Load(),
		Deleted:       m.deleted.Load(),
		Reclaimed:     m.reclaimed.Load(),
		LearnFailures: m.learnFailures.Load(),
	}
}
