package buddy

import (
	"math/rand"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"one_meg", 1024 * 1024, false},
		{"tiny_but_aligned", 64, false},
		{"too_small", 8, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(make([]byte, tt.size))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAllocFree(t *testing.T) {
	a := newTestAllocator(t, 64*1024)

	b1 := a.Alloc(100)
	require.NotNil(t, b1)
	assert.Equal(t, 100, len(b1))

	b2 := a.Alloc(100)
	require.NotNil(t, b2)
	assert.False(t, overlap(b1, b2))

	a.Free(b1)
	a.Free(b2)
}

func TestAllocZeroOrNegative(t *testing.T) {
	a := newTestAllocator(t, 4096)
	assert.Nil(t, a.Alloc(0))
	assert.Nil(t, a.Alloc(-1))
}

func TestAllocTooLarge(t *testing.T) {
	a := newTestAllocator(t, 4096)
	assert.Nil(t, a.Alloc(1<<20))
	assert.EqualValues(t, 1, a.Stats().FailedAllocations)
}

func TestFreeNilIsNoop(t *testing.T) {
	a := newTestAllocator(t, 4096)
	assert.NotPanics(t, func() { a.Free(nil) })

	var nilAlloc *Allocator
	assert.NotPanics(t, func() { nilAlloc.Free(nil) })
	assert.NotPanics(t, func() { nilAlloc.Destroy() })
}

func TestFreeDoubleFreePanics(t *testing.T) {
	a := newTestAllocator(t, 4096)
	b := a.Alloc(64)
	require.NotNil(t, b)
	a.Free(b)
	assert.Panics(t, func() { a.Free(b) })
}

func TestEagerCoalesceReducesToSingleRoot(t *testing.T) {
	a := newTestAllocator(t, 4096)

	var blocks [][]byte
	for {
		b := a.Alloc(32)
		if b == nil {
			break
		}
		blocks = append(blocks, b)
	}
	require.NotEmpty(t, blocks)

	for _, b := range blocks {
		a.Free(b)
	}

	// After freeing everything, exactly one free list holds exactly one
	// block: the fully-coalesced root at maxOrder.
	nonEmpty := 0
	for order := 0; order <= a.maxOrder; order++ {
		if a.freeHeads[order] != -1 {
			nonEmpty++
			assert.Equal(t, a.maxOrder, order)
			assert.Equal(t, int64(-1), a.readNext(a.freeHeads[order]))
		}
	}
	assert.Equal(t, 1, nonEmpty)
	assert.Equal(t, uint64(0), a.Stats().CurrentAllocated)
	assert.Equal(t, len(a.heap), a.Available())
}

func TestNonPowerOfTwoRegionUsesLargestSingleRoot(t *testing.T) {
	// 10 MiB is not a power of two (2^21*5); the managed heap must still
	// truncate down to a single root of the largest power of two that
	// fits (2^23 = 8 MiB), not several same-order roots covering the
	// full 10 MiB.
	const regionSize = 10 * 1024 * 1024
	a := newTestAllocator(t, regionSize)

	assert.Equal(t, 1<<23, len(a.heap))
	assert.Equal(t, 23, a.maxOrder)
	assert.Equal(t, uint64(1<<23), a.Stats().HeapSize)

	nonEmpty := 0
	for order := 0; order <= a.maxOrder; order++ {
		if a.freeHeads[order] != -1 {
			nonEmpty++
			assert.Equal(t, a.maxOrder, order)
		}
	}
	assert.Equal(t, 1, nonEmpty)

	// A request that would have spuriously failed against five 2 MiB
	// roots (anything above ~2 MiB) now succeeds against the single
	// 8 MiB root.
	b := a.Alloc(6 * 1024 * 1024)
	require.NotNil(t, b)
	a.Free(b)
}

func TestAllocSizesAndReuse(t *testing.T) {
	a := newTestAllocator(t, 256*1024)
	sizes := []int{8, 16, 32, 64, 128, 256, 512, 1024}

	blocks := make([][]byte, len(sizes))
	for i, sz := range sizes {
		blocks[i] = a.Alloc(sz)
		require.NotNilf(t, blocks[i], "size=%d", sz)
		assert.Equal(t, sz, len(blocks[i]))
	}
	for _, b := range blocks {
		a.Free(b)
	}

	reused := a.Alloc(8)
	require.NotNil(t, reused)
	a.Free(reused)
}

func TestRandomAllocFreeNeverOverlaps(t *testing.T) {
	a := newTestAllocator(t, 1024*1024)
	rng := rand.New(rand.NewSource(42))

	var live [][]byte
	for i := 0; i < 500; i++ {
		if len(live) > 0 && rng.Intn(2) == 0 {
			idx := rng.Intn(len(live))
			a.Free(live[idx])
			live = append(live[:idx], live[idx+1:]...)
			continue
		}
		size := 16 + rng.Intn(512)
		b := a.Alloc(size)
		if b == nil {
			continue
		}
		for _, other := range live {
			require.False(t, overlap(b, other))
		}
		live = append(live, b)
	}
	for _, b := range live {
		a.Free(b)
	}
	assert.Equal(t, len(a.heap), a.Available())
}

func newTestAllocator(t *testing.T, size int) *Allocator {
	t.Helper()
	a, err := New(make([]byte, size))
	require.NoError(t, err)
	return a
}

func overlap(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	aStart := uintptr(unsafe.Pointer(&a[0]))
	bStart := uintptr(unsafe.Pointer(&b[0]))
	aEnd := aStart + uintptr(cap(a))
	bEnd := bStart + uintptr(cap(b))
	return aStart < bEnd && bStart < aEnd
}
