// Package tmask wraps bits-and-blooms/bitset to give the scheduler a
// single, arbitrary-width thread-set type. The source used a raw machine
// word when N<=64; this generalizes to any worker-thread count without
// changing call sites, per spec.md §9 ("Bitmasks over thread sets").
package tmask

import "github.com/bits-and-blooms/bitset"

// Mask is a set of worker-thread indices.
type Mask struct {
	bits *bitset.BitSet
}

// New returns an empty mask sized for n worker threads.
func New(n uint) Mask {
	return Mask{bits: bitset.New(n)}
}

// Single returns a mask naming exactly one thread.
func Single(tid uint) Mask {
	var m Mask
	m.bits = bitset.New(tid + 1)
	m.bits.Set(tid)
	return m
}

// All returns a mask naming every thread in [0, n).
func All(n uint) Mask {
	m := New(n)
	for i := uint(0); i < n; i++ {
		m.bits.Set(i)
	}
	return m
}

// Set adds tid to the mask.
func (m *Mask) Set(tid uint) {
	if m.bits == nil {
		m.bits = bitset.New(tid + 1)
	}
	m.bits.Set(tid)
}

// Clear removes tid from the mask.
func (m *Mask) Clear(tid uint) {
	if m.bits == nil {
		return
	}
	m.bits.Clear(tid)
}

// Has reports whether tid is a member.
func (m Mask) Has(tid uint) bool {
	return m.bits != nil && m.bits.Test(tid)
}

// IsEmpty reports whether no thread is named.
func (m Mask) IsEmpty() bool {
	return m.bits == nil || m.bits.None()
}

// Count returns the number of named threads.
func (m Mask) Count() uint {
	if m.bits == nil {
		return 0
	}
	return m.bits.Count()
}

// OnlyThread returns the sole named thread and true, if the mask names
// exactly one thread. Used to distinguish single-thread-affine tasks
// (local run queue) from multi-thread-affine ones (global run queue).
func (m Mask) OnlyThread() (uint, bool) {
	if m.bits == nil || m.bits.Count() != 1 {
		return 0, false
	}
	tid, ok := m.bits.NextSet(0)
	return tid, ok
}

// Or merges other into a copy of m.
func (m Mask) Or(other Mask) Mask {
	if m.bits == nil {
		return other.clone()
	}
	if other.bits == nil {
		return m.clone()
	}
	return Mask{bits: m.bits.Union(other.bits)}
}

// LowestSet returns the lowest-numbered member and true if any bit is set.
// Used by the wakeup algorithm to pick a sleeping thread to rouse.
func (m Mask) LowestSet() (uint, bool) {
	if m.bits == nil {
		return 0, false
	}
	return m.bits.NextSet(0)
}

func (m Mask) clone() Mask {
	if m.bits == nil {
		return Mask{}
	}
	return Mask{bits: m.bits.Clone()}
}

// Clone returns an independent copy of m.
func (m Mask) Clone() Mask { return m.clone() }

// Each calls fn for every member thread index in ascending order.
func (m Mask) Each(fn func(tid uint)) {
	if m.bits == nil {
		return
	}
	for i, ok := m.bits.NextSet(0); ok; i, ok = m.bits.NextSet(i + 1) {
		fn(i)
	}
}
