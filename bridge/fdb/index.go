package fdb

import (
	"math/bits"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// DefaultBuckets is the default number of hash buckets.
const DefaultBuckets = 256

// index is a fixed-size chained hash table of entries.
//
// Readers traverse chains without locking. Writers must be serialized by the
// caller; the "Unlocked" suffix marks methods that assume so.
//
// Unlinking an entry leaves its own "next" pointer intact, so a reader that
// is standing on the removed entry still reaches the rest of the chain.
type index struct {
	buckets []atomic.Pointer[Entry]
	mask    uint64
}

func newIndex(size int) *index {
	size = roundBuckets(size)

	return &index{
		buckets: make([]atomic.Pointer[Entry], size),
		mask:    uint64(size - 1),
	}
}

// roundBuckets rounds the given size up to the nearest power of two.
func roundBuckets(size int) int {
	if size <= 1 {
		return 1
	}

	return 1 << bits.Len(uint(size-1))
}

// bucketIndex hashes the raw address bytes and masks the result to the
// table size.
func bucketIndex(addr MAC, mask uint64) uint64 {
	return xxhash.Sum64(addr[:]) & mask
}

func (m *index) head(addr MAC) *atomic.Pointer[Entry] {
	return &m.buckets[bucketIndex(addr, m.mask)]
}

// Len returns the number of buckets.
func (m *index) Len() int {
	return len(m.buckets)
}

// find returns the entry for the given address without taking a reference.
func (m *index) find(addr MAC) *Entry {
	for e := m.head(addr).Load(); e != nil; e = e.next.Load() {
		if e.addr == addr {
			return e
		}
	}

	return nil
}

func (m *index) insertUnlocked(e *Entry) {
	head := m.head(e.addr)
	e.next.Store(head.Load())
	e.linked.Store(true)
	head.Store(e)
}

func (m *index) unlinkUnlocked(e *Entry) bool {
	link := m.head(e.addr)
	for cur := link.Load(); cur != nil; cur = cur.next.Load() {
		if cur == e {
			link.Store(e.next.Load())
			e.linked.Store(false)
			return true
		}

		link = &cur.next
	}

	return false
}

// traverse walks every chain in bucket order and calls fn for each entry
// until it returns false.
//
// Safe to call without the write lock; entries linked or unlinked
// concurrently may or may not be visited.
func (m *index) traverse(fn func(e *Entry) bool) {
	for idx := range m.buckets {
		for e := m.buckets[idx].Load(); e != nil; e = e.next.Load() {
			if !fn(e) {
				return
			}
		}
	}
}

// chainLen returns the number of entries in the given bucket.
func (m *index) chainLen(bucket int) int {
	n := 0
	for e := m.buckets[bucket].Load(); e != nil; e = e.next.Load() {
		n++
	}

	return n
}
