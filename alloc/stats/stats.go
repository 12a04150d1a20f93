// Package stats holds the allocator bookkeeping counters shared by the
// façade and both algorithm implementations.
package stats

// Counters mirrors the accounting fields tracked by an allocator across its
// lifetime. All fields are exported so the façade can return a Counters
// value directly to callers as a snapshot.
type Counters struct {
	TotalAllocations  uint64
	TotalFrees        uint64
	CurrentAllocated  uint64
	PeakAllocated     uint64
	CurrentRequested  uint64
	PeakRequested     uint64
	FailedAllocations uint64
	HeapSize          uint64
}

// RecordAlloc updates the counters for a successful allocation of committed
// bytes serving a request for requested bytes.
func (c *Counters) RecordAlloc(committed, requested uint64) {
	c.TotalAllocations++
	c.CurrentAllocated += committed
	c.CurrentRequested += requested
	if c.CurrentAllocated > c.PeakAllocated {
		c.PeakAllocated = c.CurrentAllocated
	}
	if c.CurrentRequested > c.PeakRequested {
		c.PeakRequested = c.CurrentRequested
	}
}

// RecordFree updates the counters for a block release of committed bytes
// that had served a request for requested bytes.
func (c *Counters) RecordFree(committed, requested uint64) {
	c.TotalFrees++
	if committed <= c.CurrentAllocated {
		c.CurrentAllocated -= committed
	} else {
		c.CurrentAllocated = 0
	}
	if requested <= c.CurrentRequested {
		c.CurrentRequested -= requested
	} else {
		c.CurrentRequested = 0
	}
}

// RecordFailure marks a request that could not be satisfied.
func (c *Counters) RecordFailure() {
	c.FailedAllocations++
}

// Reset zeroes every counter except HeapSize, which reflects the fixed
// region size and is set once at construction.
func (c *Counters) Reset() {
	heapSize := c.HeapSize
	*c = Counters{HeapSize: heapSize}
}
