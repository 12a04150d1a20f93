// Package bench runs a fixed set of allocation-pattern scenarios against an
// alloc.Allocator and produces one Result row per scenario, matching the
// CSV schema consumed by cmd/allocbench.
package bench

import (
	"math/rand"
	"time"

	"github.com/Ivan00700/os-cp/alloc"
)

// DefaultHeapSize is the region size Run gives each allocator
// under test (10MB).
const DefaultHeapSize = 10 * 1024 * 1024

// maxStressAllocs bounds the Stress scenario's working set.
const maxStressAllocs = 10000

// Result is one row of benchmark output.
type Result struct {
	Allocator        string
	Benchmark        string
	AllocTimeUs      float64
	FreeTimeUs       float64
	AllocOps         int
	FreeOps          int
	AllocOpsPerSec   float64
	FreeOpsPerSec    float64
	PeakUtilization  float64
}

// Scenario is a named allocation pattern run against a fresh allocator.
type Scenario struct {
	Name string
	Run  func(a *alloc.Allocator, numOps int) Result
}

// Scenarios is the fixed, ordered set of patterns run by the harness:
// Sequential, Random, Mixed, Stress.
var Scenarios = []Scenario{
	{Name: "Sequential", Run: runSequential},
	{Name: "Random", Run: runRandom},
	{Name: "Mixed", Run: runMixed},
	{Name: "Stress", Run: runStress},
}

func utilization(a *alloc.Allocator) float64 {
	s := a.Stats()
	if s.HeapSize == 0 {
		return 0
	}
	return float64(s.PeakRequested) / float64(s.HeapSize)
}

func opsPerSec(ops int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(ops) / elapsed.Seconds()
}

// runSequential allocates numOps (capped at 100000) fixed 64-byte blocks in
// order, then frees them in the same order.
func runSequential(a *alloc.Allocator, numOps int) Result {
	n := numOps
	if n > 100000 {
		n = 100000
	}
	ptrs := make([][]byte, 0, n)

	a.ResetStats()
	allocStart := time.Now()
	for i := 0; i < n; i++ {
		p := a.Alloc(64)
		if p == nil {
			break
		}
		ptrs = append(ptrs, p)
	}
	allocElapsed := time.Since(allocStart)

	freeStart := time.Now()
	for _, p := range ptrs {
		a.Free(p)
	}
	freeElapsed := time.Since(freeStart)

	return Result{
		Allocator:       "",
		Benchmark:       "Sequential",
		AllocTimeUs:     float64(allocElapsed.Microseconds()),
		FreeTimeUs:      float64(freeElapsed.Microseconds()),
		AllocOps:        len(ptrs),
		FreeOps:         len(ptrs),
		AllocOpsPerSec:  opsPerSec(len(ptrs), allocElapsed),
		FreeOpsPerSec:   opsPerSec(len(ptrs), freeElapsed),
		PeakUtilization: utilization(a),
	}
}

// runRandom allocates randomly sized blocks (16..2063 bytes, seeded for
// reproducibility), shuffles the pointers to approximate an out-of-order
// free pattern, then frees them.
func runRandom(a *alloc.Allocator, numOps int) Result {
	n := 2000
	if numOps < n {
		n = numOps
	}
	ptrs := make([][]byte, 0, n)

	a.ResetStats()
	rng := rand.New(rand.NewSource(42))

	allocStart := time.Now()
	for i := 0; i < n; i++ {
		size := 16 + rng.Intn(2048)
		p := a.Alloc(size)
		if p == nil {
			break
		}
		ptrs = append(ptrs, p)
	}
	allocElapsed := time.Since(allocStart)

	for i := 0; i+1 < len(ptrs); i++ {
		j := i + rng.Intn(len(ptrs)-i)
		ptrs[i], ptrs[j] = ptrs[j], ptrs[i]
	}

	freeStart := time.Now()
	for _, p := range ptrs {
		a.Free(p)
	}
	freeElapsed := time.Since(freeStart)

	return Result{
		Benchmark:       "Random",
		AllocTimeUs:     float64(allocElapsed.Microseconds()),
		FreeTimeUs:      float64(freeElapsed.Microseconds()),
		AllocOps:        len(ptrs),
		FreeOps:         len(ptrs),
		AllocOpsPerSec:  opsPerSec(len(ptrs), allocElapsed),
		FreeOpsPerSec:   opsPerSec(len(ptrs), freeElapsed),
		PeakUtilization: utilization(a),
	}
}

// runMixed allocates 500 small blocks, frees every other one, allocates 250
// larger blocks into the gaps, then frees everything that remains.
func runMixed(a *alloc.Allocator, _ int) Result {
	const n = 500
	ptrs := make([][]byte, n)

	a.ResetStats()
	var allocTime, freeTime time.Duration
	var allocOps, freeOps int

	t0 := time.Now()
	for i := 0; i < n; i++ {
		if p := a.Alloc(32); p != nil {
			ptrs[i] = p
			allocOps++
		}
	}
	allocTime += time.Since(t0)

	t0 = time.Now()
	for i := 0; i < n; i += 2 {
		if ptrs[i] != nil {
			a.Free(ptrs[i])
			ptrs[i] = nil
			freeOps++
		}
	}
	freeTime += time.Since(t0)

	t0 = time.Now()
	for i := 0; i < n; i += 2 {
		if p := a.Alloc(128); p != nil {
			ptrs[i] = p
			allocOps++
		}
	}
	allocTime += time.Since(t0)

	t0 = time.Now()
	for i := 0; i < n; i++ {
		if ptrs[i] != nil {
			a.Free(ptrs[i])
			ptrs[i] = nil
			freeOps++
		}
	}
	freeTime += time.Since(t0)

	return Result{
		Benchmark:       "Mixed",
		AllocTimeUs:     float64(allocTime.Microseconds()),
		FreeTimeUs:      float64(freeTime.Microseconds()),
		AllocOps:        allocOps,
		FreeOps:         freeOps,
		AllocOpsPerSec:  opsPerSec(allocOps, allocTime),
		FreeOpsPerSec:   opsPerSec(freeOps, freeTime),
		PeakUtilization: utilization(a),
	}
}

// runStress allocates up to maxStressAllocs (and at most numOps) 256-byte
// blocks back to back, then frees them all.
func runStress(a *alloc.Allocator, numOps int) Result {
	n := numOps
	if n > maxStressAllocs {
		n = maxStressAllocs
	}
	ptrs := make([][]byte, 0, n)

	a.ResetStats()
	allocStart := time.Now()
	for i := 0; i < n; i++ {
		p := a.Alloc(256)
		if p == nil {
			break
		}
		ptrs = append(ptrs, p)
	}
	allocElapsed := time.Since(allocStart)

	freeStart := time.Now()
	for _, p := range ptrs {
		a.Free(p)
	}
	freeElapsed := time.Since(freeStart)

	return Result{
		Benchmark:       "Stress",
		AllocTimeUs:     float64(allocElapsed.Microseconds()),
		FreeTimeUs:      float64(freeElapsed.Microseconds()),
		AllocOps:        len(ptrs),
		FreeOps:         len(ptrs),
		AllocOpsPerSec:  opsPerSec(len(ptrs), allocElapsed),
		FreeOpsPerSec:   opsPerSec(len(ptrs), freeElapsed),
		PeakUtilization: utilization(a),
	}
}

// Run executes every scenario against a freshly constructed allocator of
// tag, in order, returning one Result per scenario with Allocator set to
// name.
func Run(tag alloc.Tag, name string, numOps int) []Result {
	results := make([]Result, 0, len(Scenarios))
	for _, sc := range Scenarios {
		a, err := alloc.New(tag, make([]byte, DefaultHeapSize))
		if err != nil {
			continue
		}
		r := sc.Run(a, numOps)
		r.Allocator = name
		results = append(results, r)
		a.Destroy()
	}
	return results
}
