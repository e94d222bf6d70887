// Package pool implements the object pool allocator of spec.md §4.4: a
// named, sized, free-listed allocator with an optional per-thread LRU
// cache, failure metering, and a needed-average pressure estimate used
// by GC.
//
// The source's free list threads the "next" pointer through the freed
// object's own memory (ptr+size) and detects cross-pool frees by
// stamping the owning pool's address at that offset. Go's GC makes that
// pattern both unnecessary and unsafe to imitate (a freed object is
// still a live, typed value until the pool drops its last reference),
// so the free list here is a plain slice of `any`. Values carry no
// record of the pool that allocated them: Free accepts any value without
// an ownership check, so a cross-pool free is not detected, and
// taggedValue.owner names the pool a value was freed into.
package pool

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Flags mirror spec.md §3's Pool flags.
type Flags uint8

const (
	FlagShared Flags = 1 << iota
	FlagExact
)

// ErrCrossPoolFree names a free of a value into a pool other than the
// one that allocated it. No function in this package returns it.
var ErrCrossPoolFree = errors.New("pool: cross-pool free detected")

// New allocates a fresh pooled value.
type New func() any

// Pool is a named, sized allocator over values produced by New.
type Pool struct {
	Name     string
	ElemSize int
	Flags    Flags
	New      New

	MinAvail int // minavail: GC stops freeing once allocated-used drops to this

	mu        sync.Mutex
	free      []taggedValue
	allocated int
	used      int
	failed    uint64
	needed    ewma

	caches   map[uint]*threadCache
	capBytes int
}

type taggedValue struct {
	owner *Pool
	value any
}

// Manager is a name-keyed registry of pools, deduplicating SHARED pools
// by (name, size) per spec.md §4.4.
type Manager struct {
	mu    sync.RWMutex
	pools map[string]*Pool
}

// NewManager returns an empty pool registry.
func NewManager() *Manager {
	return &Manager{pools: make(map[string]*Pool)}
}

// Create returns the pool named name, creating it if absent. If flags
// includes FlagShared and a pool of that name already exists with the
// same ElemSize, the existing pool is returned instead of a new one.
func (m *Manager) Create(name string, elemSize int, flags Flags, newFn New) (*Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pools[name]; ok {
		if flags&FlagShared != 0 && p.ElemSize == elemSize {
			return p, nil
		}
		return nil, errors.Errorf("pool: %q already exists with a different shape", name)
	}

	size := roundSize(elemSize, flags)
	p := &Pool{
		Name:     name,
		ElemSize: size,
		Flags:    flags,
		New:      newFn,
		caches:   make(map[uint]*threadCache),
		capBytes: 1 << 20, // 1MiB per-thread cache budget, matching spec.md's "byte budget"
	}
	m.pools[name] = p
	return p, nil
}

// Get returns a previously created pool by name.
func (m *Manager) Get(name string) (*Pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[name]
	return p, ok
}

// Destroy removes a pool, refusing (as a no-op) if it still has objects
// in use, per spec.md §4.4.
func (m *Manager) Destroy(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[name]
	if !ok {
		return true
	}
	p.mu.Lock()
	inUse := p.used > 0
	p.mu.Unlock()
	if inUse {
		return false
	}
	delete(m.pools, name)
	return true
}

// roundSize rounds elemSize up to 4 pointer-widths unless FlagExact is
// set, per spec.md §3.
func roundSize(elemSize int, flags Flags) int {
	if flags&FlagExact != 0 {
		return elemSize
	}
	const unit = 4 * 8 // 4 * pointer-size(8) on a 64-bit build
	if elemSize%unit == 0 {
		return elemSize
	}
	return ((elemSize / unit) + 1) * unit
}

// Stats is a point-in-time snapshot for /metrics-style exposition.
type Stats struct {
	Allocated int
	Used      int
	Failed    uint64
	NeededAvg float64
}

// Snapshot returns p's current counters.
func (p *Pool) Snapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Allocated: p.allocated, Used: p.used, Failed: p.failed, NeededAvg: p.needed.value()}
}

func (p *Pool) logEntry() *logrus.Entry {
	return logrus.WithField("pool", p.Name)
}
