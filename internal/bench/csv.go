package bench

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Header is the exact column order every row written by WriteCSV follows.
var Header = []string{
	"Allocator", "Benchmark", "AllocTime_us", "FreeTime_us",
	"AllocOps", "FreeOps", "AllocOpsPerSec", "FreeOpsPerSec", "PeakUtilization",
}

// WriteCSV writes the header followed by one row per result to w.
func WriteCSV(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{
			r.Allocator,
			r.Benchmark,
			fmt.Sprintf("%.2f", r.AllocTimeUs),
			fmt.Sprintf("%.2f", r.FreeTimeUs),
			fmt.Sprintf("%d", r.AllocOps),
			fmt.Sprintf("%d", r.FreeOps),
			fmt.Sprintf("%.2f", r.AllocOpsPerSec),
			fmt.Sprintf("%.2f", r.FreeOpsPerSec),
			fmt.Sprintf("%.6f", r.PeakUtilization),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
