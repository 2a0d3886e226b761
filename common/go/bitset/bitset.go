package bitset

import (
	"fmt"
	"iter"
	"math/bits"
)

// MaxBitsetWords specifies the number of 64-bit words in the bitset.
const MaxBitsetWords = 16

// MaxBits is the capacity of the bitset.
const MaxBits = 64 * MaxBitsetWords

// TinyBitset implements constant-length bitset.
//
// The zero value is an empty set. Being an array, it is comparable and
// copied by value.
type TinyBitset struct {
	words [MaxBitsetWords]uint64
}

func checkIndex(idx uint32) {
	if idx >= MaxBits {
		panic(fmt.Sprintf("index %d is too big: must be less than %d", idx, MaxBits))
	}
}

// Count returns the number of bits set in the bitset.
func (m *TinyBitset) Count() uint {
	count := uint(0)
	for _, word := range m.words {
		count += uint(bits.OnesCount64(word))
	}

	return count
}

// Insert sets the bit at the given index.
func (m *TinyBitset) Insert(idx uint32) {
	checkIndex(idx)
	m.words[idx/64] |= 1 << (idx % 64)
}

// Remove clears the bit at the given index.
func (m *TinyBitset) Remove(idx uint32) {
	checkIndex(idx)
	m.words[idx/64] &^= 1 << (idx % 64)
}

// Contains reports whether the bit at the given index is set.
func (m *TinyBitset) Contains(idx uint32) bool {
	if idx >= MaxBits {
		return false
	}

	return m.words[idx/64]&(1<<(idx%64)) != 0
}

// NextClear returns the lowest index not less than "from" whose bit is
// clear.
func (m *TinyBitset) NextClear(from uint32) (uint32, bool) {
	for idx := from / 64; idx < MaxBitsetWords; idx++ {
		word := ^m.words[idx]
		if idx == from/64 {
			// Mask out positions below "from".
			word &= ^uint64(0) << (from % 64)
		}
		if word != 0 {
			return 64*idx + uint32(bits.TrailingZeros64(word)), true
		}
	}

	return 0, false
}

// Traverse calls the given function for each bit set, from the lowest index
// to the highest one, until it returns false.
func (m *TinyBitset) Traverse(fn func(uint32) bool) {
	for idx, word := range m.words {
		for word != 0 {
			r := bits.TrailingZeros64(word)
			word &= word - 1

			if !fn(64*uint32(idx) + uint32(r)) {
				return
			}
		}
	}
}

// Iter returns an iterator over the indices of bits set.
func (m *TinyBitset) Iter() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		m.Traverse(yield)
	}
}

// AsSlice returns the bitset as a slice of indices, where each index is a
// position of the bit set.
func (m *TinyBitset) AsSlice() []uint32 {
	out := make([]uint32, 0, m.Count())

	m.Traverse(func(idx uint32) bool {
		out = append(out, idx)
		return true
	})

	return out
}
