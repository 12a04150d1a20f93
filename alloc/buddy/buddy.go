// Package buddy implements a power-of-two buddy allocator operating
// in-place inside a caller-supplied byte region. Free blocks store their
// own free-list link inside their own bytes, addressed by offset from the
// region's base rather than by Go pointer, so the structure stays safe to
// keep inside a []byte the garbage collector does not scan for pointers.
package buddy

import (
	"fmt"
	"math/bits"
	"unsafe"

	"github.com/Ivan00700/os-cp/alloc/stats"
	"github.com/Ivan00700/os-cp/internal/memlayout"
)

const (
	// headerSize is the on-disk size of blockHeader: magic(4) + order(4) +
	// requested(4) + pad(4), kept a multiple of align so payloads stay
	// aligned too.
	headerSize = 16

	// align is the alignment boundary for the heap base and every block.
	align = 16

	// minBlockSize is the smallest block the allocator will ever hand out
	// or split down to. It must be large enough to hold either a header
	// (headerSize bytes, while allocated) or a free-list node (8 bytes,
	// while free) plus be a power of two >= align.
	minBlockSize = 32

	magic uint32 = 0xC0FFEE42
)

// Allocator is a buddy-system allocator bound to a fixed-size byte region.
type Allocator struct {
	heap     []byte
	base     unsafe.Pointer
	minOrder int
	maxOrder int

	// freeHeads[order] is the offset (relative to base) of the head of the
	// free list for blocks of size 1<<order, or -1 if that list is empty.
	// Each free block's first 8 bytes hold the offset of the next free
	// block in the same list.
	freeHeads []int64

	stats stats.Counters
}

// New binds a buddy allocator to region. The usable heap begins at the
// first align-byte-aligned offset within region, so a few leading bytes may
// be unavailable depending on the caller's allocation alignment.
func New(region []byte) (*Allocator, error) {
	pad := memlayout.LeadingPad(region, align)
	if pad < 0 {
		return nil, fmt.Errorf("buddy: region of %d bytes too small to align", len(region))
	}
	heap := region[pad:]

	minOrder := bits.TrailingZeros(uint(minBlockSize))

	// The managed heap must itself be exactly a power of two: find the
	// largest block that fits in the aligned region and use only that much
	// of it. Any remainder past the chosen block is left unused, the same
	// way buddy_allocator_init walks max_order down from floor_log2(available)
	// until order_to_size(max_order) fits before region_end.
	maxOrder := -1
	for order := bits.Len(uint(len(heap))) - 1; order >= minOrder; order-- {
		if 1<<order <= len(heap) {
			maxOrder = order
			break
		}
	}
	if maxOrder < 0 {
		return nil, fmt.Errorf("buddy: region of %d usable bytes too small for a %d-byte block", len(heap), minBlockSize)
	}
	heap = heap[:1<<maxOrder]

	a := &Allocator{
		heap:      heap,
		base:      unsafe.Pointer(&heap[0]),
		minOrder:  minOrder,
		maxOrder:  maxOrder,
		freeHeads: make([]int64, maxOrder+1),
	}
	for i := range a.freeHeads {
		a.freeHeads[i] = -1
	}

	a.pushFree(maxOrder, 0)
	a.stats.HeapSize = uint64(len(heap))
	return a, nil
}

// Destroy releases the allocator's own bookkeeping. The underlying region
// is left to the caller; Destroy is safe to call on a nil Allocator.
func (a *Allocator) Destroy() {
	if a == nil {
		return
	}
	a.heap = nil
	a.freeHeads = nil
}

// Alloc returns a block of at least size bytes, or nil if the request
// cannot be satisfied (including size <= 0).
func (a *Allocator) Alloc(size int) []byte {
	if a == nil || size <= 0 {
		return nil
	}
	total := size + headerSize
	order := orderForSize(total, a.minOrder)
	if order > a.maxOrder {
		a.stats.RecordFailure()
		return nil
	}

	found := -1
	for o := order; o <= a.maxOrder; o++ {
		if a.freeHeads[o] != -1 {
			found = o
			break
		}
	}
	if found == -1 {
		a.stats.RecordFailure()
		return nil
	}

	offset := a.popFree(found)
	for found > order {
		found--
		buddyOffset := offset + int64(1<<found)
		a.pushFree(found, buddyOffset)
	}

	blockSize := 1 << order
	a.writeHeader(offset, order, size)
	payload := unsafe.Slice((*byte)(unsafe.Add(a.base, offset+headerSize)), blockSize-headerSize)

	a.stats.RecordAlloc(uint64(blockSize), uint64(size))
	return payload[:size]
}

// Free returns a previously allocated block to the allocator, eagerly
// merging it with its buddy (and that buddy's buddy, and so on) whenever
// the sibling is also free. block must be the exact slice returned by
// Alloc. Free is a no-op for a nil Allocator or a nil/empty block.
func (a *Allocator) Free(block []byte) {
	if a == nil || cap(block) == 0 {
		return
	}
	dataPtr := *(*uintptr)(unsafe.Pointer(&block))
	offset := int64(dataPtr-uintptr(a.base)) - headerSize
	if offset < 0 || offset >= int64(len(a.heap)) {
		panic("buddy: block not in region")
	}

	order, requested, ok := a.readHeader(offset)
	if !ok {
		panic("buddy: double free or invalid block")
	}
	blockSize := int64(1 << order)
	if offset&(blockSize-1) != 0 {
		panic("buddy: misaligned block")
	}

	a.clearMagic(offset)
	a.stats.RecordFree(uint64(blockSize), uint64(requested))

	curOffset, curOrder := offset, order
	for curOrder < a.maxOrder {
		buddyOffset := curOffset ^ int64(1<<curOrder)
		if !a.removeFree(curOrder, buddyOffset) {
			break
		}
		if buddyOffset < curOffset {
			curOffset = buddyOffset
		}
		curOrder++
	}
	a.pushFree(curOrder, curOffset)
}

// Available returns the total bytes currently obtainable across all free
// lists, ignoring per-block header overhead.
func (a *Allocator) Available() int {
	if a == nil {
		return 0
	}
	total := 0
	for order := 0; order <= a.maxOrder; order++ {
		for off := a.freeHeads[order]; off != -1; off = a.readNext(off) {
			total += 1 << order
		}
	}
	return total
}

// Stats returns a snapshot of the allocator's bookkeeping counters.
func (a *Allocator) Stats() stats.Counters {
	if a == nil {
		return stats.Counters{}
	}
	return a.stats
}

// ResetStats zeroes every counter except HeapSize.
func (a *Allocator) ResetStats() {
	if a == nil {
		return
	}
	a.stats.Reset()
}

func orderForSize(size, minOrder int) int {
	order := bits.Len(uint(size - 1))
	if order < minOrder {
		return minOrder
	}
	return order
}

func (a *Allocator) writeHeader(offset int64, order, requested int) {
	ptr := unsafe.Add(a.base, offset)
	*(*uint32)(ptr) = magic
	*(*uint32)(unsafe.Add(ptr, 4)) = uint32(order)
	*(*uint32)(unsafe.Add(ptr, 8)) = uint32(requested)
}

// readHeader validates the magic at offset and returns the stored order and
// requested size. ok is false if the magic does not match (already free or
// corrupt).
func (a *Allocator) readHeader(offset int64) (order, requested int, ok bool) {
	ptr := unsafe.Add(a.base, offset)
	if *(*uint32)(ptr) != magic {
		return 0, 0, false
	}
	order = int(*(*uint32)(unsafe.Add(ptr, 4)))
	requested = int(*(*uint32)(unsafe.Add(ptr, 8)))
	return order, requested, true
}

func (a *Allocator) clearMagic(offset int64) {
	*(*uint32)(unsafe.Add(a.base, offset)) = 0
}

func (a *Allocator) readNext(offset int64) int64 {
	return *(*int64)(unsafe.Add(a.base, offset))
}

func (a *Allocator) writeNext(offset, next int64) {
	*(*int64)(unsafe.Add(a.base, offset)) = next
}

func (a *Allocator) pushFree(order int, offset int64) {
	a.writeNext(offset, a.freeHeads[order])
	a.freeHeads[order] = offset
}

func (a *Allocator) popFree(order int) int64 {
	offset := a.freeHeads[order]
	a.freeHeads[order] = a.readNext(offset)
	return offset
}

// removeFree unlinks target from the free list for order, if present, and
// reports whether it was found.
func (a *Allocator) removeFree(order int, target int64) bool {
	prev := int64(-1)
	cur := a.freeHeads[order]
	for cur != -1 {
		if cur == target {
			next := a.readNext(cur)
			if prev == -1 {
				a.freeHeads[order] = next
			} else {
				a.writeNext(prev, next)
			}
			return true
		}
		prev = cur
		cur = a.readNext(cur)
	}
	return false
}
