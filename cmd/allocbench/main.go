// Command allocbench runs the Sequential, Random, Mixed, and Stress
// allocation scenarios against one or both in-place allocators and writes
// the results as CSV, to stdout or to a file.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/Ivan00700/os-cp/alloc"
	"github.com/Ivan00700/os-cp/internal/bench"
)

func main() {
	var (
		allocatorFlag = flag.String("a", "all", "Allocator type: segregated, buddy, all")
		numOpsFlag    = flag.Int("n", 10000, "Number of operations")
		outputFlag    = flag.String("o", "", "Output CSV file (default: stdout)")
	)
	flag.StringVar(allocatorFlag, "allocator", *allocatorFlag, "alias for -a")
	flag.IntVar(numOpsFlag, "num-ops", *numOpsFlag, "alias for -n")
	flag.StringVar(outputFlag, "output", *outputFlag, "alias for -o")
	flag.Parse()

	targets, err := targetsFor(*allocatorFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		flag.Usage()
		os.Exit(1)
	}

	out := os.Stdout
	if *outputFlag != "" {
		f, err := os.Create(*outputFlag)
		if err != nil {
			log.Fatalf("failed to open output file: %v", err)
		}
		defer f.Close()
		out = f
	}

	fmt.Fprintf(os.Stderr, "=== Memory Allocator Benchmark ===\n")
	fmt.Fprintf(os.Stderr, "Operations per benchmark: %d\n\n", *numOpsFlag)

	var all []bench.Result
	for _, target := range targets {
		fmt.Fprintf(os.Stderr, "Running benchmarks for %s...\n", target.name)
		all = append(all, bench.Run(target.tag, target.name, *numOpsFlag)...)
	}

	if err := bench.WriteCSV(out, all); err != nil {
		log.Fatalf("failed to write results: %v", err)
	}
	if *outputFlag != "" {
		fmt.Fprintf(os.Stderr, "\nResults written to: %s\n", *outputFlag)
	}
	fmt.Fprintln(os.Stderr, "\nBenchmark complete!")
}

type namedTag struct {
	tag  alloc.Tag
	name string
}

func targetsFor(allocatorFlag string) ([]namedTag, error) {
	switch allocatorFlag {
	case "segregated":
		return []namedTag{{alloc.Segregated, "SegregatedFreeList"}}, nil
	case "buddy":
		return []namedTag{{alloc.Buddy, "Buddy"}}, nil
	case "all":
		return []namedTag{
			{alloc.Segregated, "SegregatedFreeList"},
			{alloc.Buddy, "Buddy"},
		}, nil
	default:
		return nil, fmt.Errorf("unknown allocator type: %s", allocatorFlag)
	}
}
