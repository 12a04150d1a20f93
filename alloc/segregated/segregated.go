// Package segregated implements a segregated free-list allocator operating
// in-place inside a caller-supplied byte region. Eight fixed size classes
// (16..2048 bytes) each keep a singly-linked free list whose nodes live
// inside the freed bytes themselves; anything larger is served first-fit
// from a single "large blocks" list covering the rest of the heap. There is
// no coalescing: once a large block is cut down to serve a request, the
// remainder (if big enough) goes back on the large-blocks list, never on a
// size-class list.
package segregated

import (
	"fmt"
	"unsafe"

	"github.com/Ivan00700/os-cp/alloc/stats"
	"github.com/Ivan00700/os-cp/internal/memlayout"
)

// sizeClasses are the committed block sizes (header included) served by the
// fixed free lists, smallest first.
var sizeClasses = [8]int{16, 32, 64, 128, 256, 512, 1024, 2048}

const (
	// headerSize is the on-disk size of blockHeader: committed(4) +
	// requested(4) + magic(4) + pad(4).
	headerSize = 16

	alignSize = 8

	blockMagic uint32 = 0xDEADBEEF

	// minFreeNode is the smallest number of bytes a free block needs to
	// hold its own free-list node: next(8) + size(8).
	minFreeNode = 16
)

// Allocator is a segregated free-list allocator bound to a fixed-size byte
// region.
type Allocator struct {
	heap []byte
	base unsafe.Pointer

	// classHeads[i] is the offset of the head of the free list for
	// sizeClasses[i], or -1 if empty. Node layout at that offset:
	// next int64 (offset or -1), size int64 (committed bytes, header
	// included).
	classHeads [8]int64

	// largeHead is the head of the first-fit list of blocks that do not
	// belong to any fixed size class (either oversized requests or
	// leftover remainders from cutting a large block).
	largeHead int64

	stats stats.Counters
}

// New binds a segregated free-list allocator to region, which is carved
// into one large free block spanning the whole (alignment-trimmed) heap.
func New(region []byte) (*Allocator, error) {
	pad := memlayout.LeadingPad(region, alignSize)
	if pad < 0 {
		return nil, fmt.Errorf("segregated: region of %d bytes too small to align", len(region))
	}
	heap := region[pad:]
	if len(heap) < headerSize+minFreeNode {
		return nil, fmt.Errorf("segregated: region of %d usable bytes too small", len(heap))
	}

	a := &Allocator{
		heap:      heap,
		base:      unsafe.Pointer(&heap[0]),
		largeHead: -1,
	}
	for i := range a.classHeads {
		a.classHeads[i] = -1
	}

	a.pushLarge(0, int64(len(heap)))
	a.stats.HeapSize = uint64(len(heap))
	return a, nil
}

// Destroy releases the allocator's own bookkeeping. Safe on a nil Allocator.
func (a *Allocator) Destroy() {
	if a == nil {
		return
	}
	a.heap = nil
}

// Alloc returns a block of at least size bytes, or nil if the request
// cannot be satisfied (including size <= 0). The header is carved out of
// whatever budget serves the request (a size class or a large-list cut), so
// a class-served block's committed size is always exactly sizeClasses[i],
// never sizeClasses[i]+headerSize.
func (a *Allocator) Alloc(size int) []byte {
	if a == nil || size <= 0 {
		return nil
	}
	total := memlayout.AlignUp(size+headerSize, alignSize)

	if classIdx, ok := classFor(total); ok {
		need := sizeClasses[classIdx]
		if offset, ok := a.popClass(classIdx); ok {
			return a.serve(offset, need, size)
		}
		if offset, ok := a.cutLarge(need); ok {
			return a.serve(offset, need, size)
		}
		a.stats.RecordFailure()
		return nil
	}

	offset, ok := a.cutLarge(total)
	if !ok {
		a.stats.RecordFailure()
		return nil
	}
	return a.serve(offset, total, size)
}

// cutLarge pops the first large-list block that fits need bytes and carves
// exactly need bytes off its front, pushing the remainder back onto the
// large list only if it is big enough to hold a free-list node on its own
// (sizeClasses[0] bytes); anything smaller is forfeited, matching
// segregated_freelist_alloc's `remaining >= SIZE_CLASSES[0]` check.
func (a *Allocator) cutLarge(need int) (int64, bool) {
	offset, blockSize, ok := a.popLargeFit(need)
	if !ok {
		return 0, false
	}
	remainder := blockSize - int64(need)
	if remainder >= int64(sizeClasses[0]) {
		a.pushLarge(offset+int64(need), remainder)
	}
	return offset, true
}

func (a *Allocator) serve(offset int64, committed, requested int) []byte {
	a.writeHeader(offset, committed, requested)
	payload := unsafe.Slice((*byte)(unsafe.Add(a.base, offset+headerSize)), committed-headerSize)
	a.stats.RecordAlloc(uint64(committed), uint64(requested))
	return payload[:requested]
}

// Free returns a previously allocated block to the allocator. block must be
// the exact slice returned by Alloc. Free is a no-op for a nil Allocator or
// a nil/empty block. There is no coalescing: the block is pushed back onto
// its size class list (or the large-blocks list) unmerged.
func (a *Allocator) Free(block []byte) {
	if a == nil || cap(block) == 0 {
		return
	}
	dataPtr := *(*uintptr)(unsafe.Pointer(&block))
	offset := int64(dataPtr-uintptr(a.base)) - headerSize
	if offset < 0 || offset >= int64(len(a.heap)) {
		panic("segregated: block not in region")
	}

	committed, requested, ok := a.readHeader(offset)
	if !ok {
		panic("segregated: double free or invalid block")
	}
	a.clearMagic(offset)
	a.stats.RecordFree(uint64(committed), uint64(requested))

	if classIdx, ok := classFor(committed); ok && sizeClasses[classIdx] == committed {
		a.pushClass(classIdx, offset)
		return
	}
	a.pushLarge(offset, int64(committed))
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

// classFor returns the index of the smallest size class that can hold
// committed bytes, if any fixed class is large enough.
func classFor(committed int) (int, bool) {
	for i, sz := range sizeClasses {
		if committed <= sz {
			return i, true
		}
	}
	return 0, false
}

func (a *Allocator) writeHeader(offset int64, committed, requested int) {
	ptr := unsafe.Add(a.base, offset)
	*(*uint32)(ptr) = uint32(committed)
	*(*uint32)(unsafe.Add(ptr, 4)) = uint32(requested)
	*(*uint32)(unsafe.Add(ptr, 8)) = blockMagic
}

func (a *Allocator) readHeader(offset int64) (committed, requested int, ok bool) {
	ptr := unsafe.Add(a.base, offset)
	committed = int(*(*uint32)(ptr))
	requested = int(*(*uint32)(unsafe.Add(ptr, 4)))
	if *(*uint32)(unsafe.Add(ptr, 8)) != blockMagic {
		return 0, 0, false
	}
	return committed, requested, true
}

func (a *Allocator) clearMagic(offset int64) {
	*(*uint32)(unsafe.Add(a.base, offset+8)) = 0
}

// free-node layout (reused for both class lists and the large list):
// next int64 at +0, size int64 at +8 (size is the full block span
// including what would be the header, i.e. usable-for-the-next-owner span).

func (a *Allocator) writeNode(offset, next, size int64) {
	ptr := unsafe.Add(a.base, offset)
	*(*int64)(ptr) = next
	*(*int64)(unsafe.Add(ptr, 8)) = size
}

func (a *Allocator) readNode(offset int64) (next, size int64) {
	ptr := unsafe.Add(a.base, offset)
	return *(*int64)(ptr), *(*int64)(unsafe.Add(ptr, 8))
}

func (a *Allocator) pushClass(classIdx int, offset int64) {
	a.writeNode(offset, a.classHeads[classIdx], int64(sizeClasses[classIdx]))
	a.classHeads[classIdx] = offset
}

func (a *Allocator) popClass(classIdx int) (int64, bool) {
	offset := a.classHeads[classIdx]
	if offset == -1 {
		return 0, false
	}
	next, _ := a.readNode(offset)
	a.classHeads[classIdx] = next
	return offset, true
}

func (a *Allocator) pushLarge(offset, size int64) {
	a.writeNode(offset, a.largeHead, size)
	a.largeHead = offset
}

// popLargeFit removes and returns the first block in the large list whose
// size is >= need (first-fit).
func (a *Allocator) popLargeFit(need int) (offset, size int64, ok bool) {
	prev := int64(-1)
	cur := a.largeHead
	for cur != -1 {
		next, sz := a.readNode(cur)
		if sz >= int64(need) {
			if prev == -1 {
				a.largeHead = next
			} else {
				_, prevSize := a.readNode(prev)
				a.writeNode(prev, next, prevSize)
			}
			return cur, sz, true
		}
		prev = cur
		cur = next
	}
	return 0, 0, false
}
