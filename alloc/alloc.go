// Package alloc is the façade over the two in-place heap allocators in
// this module: a segregated free-list allocator and a buddy allocator.
// Both operate entirely inside a caller-supplied (or mcache-acquired)
// []byte region; callers pick which algorithm to use at construction time
// via a Tag and interact with it through one shared API afterwards.
package alloc

import (
	"fmt"
	"log"

	"github.com/bytedance/gopkg/lang/mcache"

	"github.com/Ivan00700/os-cp/alloc/buddy"
	"github.com/Ivan00700/os-cp/alloc/segregated"
	"github.com/Ivan00700/os-cp/alloc/stats"
)

// Tag selects which algorithm New binds a region to.
type Tag int

const (
	Segregated Tag = iota
	Buddy
)

func (t Tag) String() string {
	switch t {
	case Segregated:
		return "segregated"
	case Buddy:
		return "buddy"
	default:
		return fmt.Sprintf("Tag(%d)", int(t))
	}
}

// Stats is a snapshot of an Allocator's bookkeeping counters.
type Stats = stats.Counters

// algorithm is implemented by both alloc/segregated and alloc/buddy. Each
// method is resolved once, at construction, not re-dispatched per call.
type algorithm interface {
	Alloc(size int) []byte
	Free(block []byte)
	Destroy()
	Stats() stats.Counters
	ResetStats()
}

// Allocator dispatches Alloc/Free/etc. to whichever algorithm it was
// constructed with.
type Allocator struct {
	tag   Tag
	impl  algorithm
	owned []byte // non-nil only when the region was acquired via NewWithMalloc
}

// New binds a new Allocator of the given algorithm to region. The region
// remains owned by the caller; Destroy never frees it.
func New(tag Tag, region []byte) (*Allocator, error) {
	impl, err := newImpl(tag, region)
	if err != nil {
		return nil, err
	}
	return &Allocator{tag: tag, impl: impl}, nil
}

// NewWithMalloc acquires a region of at least size bytes from mcache's
// pooled byte-slice allocator and binds a new Allocator of the given
// algorithm to it; the whole capacity mcache hands back is used, which can
// exceed size. Destroy returns the region to mcache.
func NewWithMalloc(tag Tag, size int) (*Allocator, error) {
	region := mcache.Malloc(size)
	region = region[:cap(region)]
	impl, err := newImpl(tag, region)
	if err != nil {
		mcache.Free(region)
		return nil, err
	}
	return &Allocator{tag: tag, impl: impl, owned: region}, nil
}

func newImpl(tag Tag, region []byte) (algorithm, error) {
	switch tag {
	case Segregated:
		return segregated.New(region)
	case Buddy:
		return buddy.New(region)
	default:
		return nil, fmt.Errorf("alloc: unknown allocator tag %v", tag)
	}
}

// Destroy releases the Allocator's own bookkeeping and, if the region was
// acquired via NewWithMalloc, returns it to mcache. Destroy is a no-op on a
// nil Allocator, matching free(nil)/destroy(nil) semantics.
func (a *Allocator) Destroy() {
	if a == nil {
		return
	}
	if a.impl != nil {
		a.impl.Destroy()
	}
	if a.owned != nil {
		mcache.Free(a.owned)
		a.owned = nil
	}
}

// Alloc requests size bytes from the bound algorithm. It returns nil if
// size <= 0 or if the request cannot be satisfied; the latter increments
// the allocator's FailedAllocations counter.
func (a *Allocator) Alloc(size int) []byte {
	if a == nil {
		return nil
	}
	return a.impl.Alloc(size)
}

// Free returns block to the bound algorithm. It is a no-op for a nil
// Allocator or a nil/empty block. Freeing a block that was never returned
// by this Allocator's Alloc, or freeing it twice, logs a diagnostic and
// leaves state unchanged.
func (a *Allocator) Free(block []byte) {
	if a == nil || cap(block) == 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("alloc: invalid free on %s allocator: %v", a.tag, r)
		}
	}()
	a.impl.Free(block)
}

// ReallocDiscardingContents allocates a fresh block of newSize bytes and
// then frees block. A nil block makes it a plain Alloc; a newSize of 0 frees
// block and returns nil; if the fresh allocation fails, block stays
// allocated and nil is returned. Unlike a conventional realloc, the contents
// of block are NOT copied into the new block — callers that need the old
// bytes must copy them out before calling this.
func (a *Allocator) ReallocDiscardingContents(block []byte, newSize int) []byte {
	if a == nil {
		return nil
	}
	if cap(block) == 0 {
		return a.Alloc(newSize)
	}
	if newSize == 0 {
		a.Free(block)
		return nil
	}
	fresh := a.Alloc(newSize)
	if fresh != nil {
		a.Free(block)
	}
	return fresh
}

// Stats returns a snapshot of the allocator's bookkeeping counters.
func (a *Allocator) Stats() Stats {
	if a == nil {
		return Stats{}
	}
	return a.impl.Stats()
}

// ResetStats zeroes every counter except HeapSize.
func (a *Allocator) ResetStats() {
	if a == nil {
		return
	}
	a.impl.ResetStats()
}

// Tag reports which algorithm this Allocator was constructed with.
func (a *Allocator) Tag() Tag {
	if a == nil {
		return Segregated
	}
	return a.tag
}
