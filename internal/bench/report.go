package bench

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"barbench/internal/logging"
)

// BackendResult holds one backend's timings for one case. All durations
// are milliseconds.
type BackendResult struct {
	Backend    string  `json:"backend"`
	Rows       int     `json:"rows"`
	Iterations int     `json:"iterations"`
	TotalMs    float64 `json:"total_ms"`
	MeanMs     float64 `json:"mean_ms"`
	P50Ms      float64 `json:"p50_ms"`
	P95Ms      float64 `json:"p95_ms"`
	P99Ms      float64 `json:"p99_ms"`
	Failed     bool    `json:"failed,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// CaseResult pairs both backends' results for one case. Ratio is
// meanA/meanB; Summary names the faster backend.
type CaseResult struct {
	Name    string        `json:"name"`
	A       BackendResult `json:"a"`
	B       BackendResult `json:"b"`
	Ratio   float64       `json:"ratio,omitempty"`
	Summary string        `json:"summary,omitempty"`
	Failed  bool          `json:"failed,omitempty"`
}

// SizeComparison compares the whole-dataset on-disk footprints.
type SizeComparison struct {
	BytesA  int64   `json:"bytes_a"`
	BytesB  int64   `json:"bytes_b"`
	Ratio   float64 `json:"ratio,omitempty"`
	DiffPct float64 `json:"diff_pct,omitempty"`
	Summary string  `json:"summary,omitempty"`
}

// Report is the normalized comparison record for one benchmark run. It is
// built during the run and discarded with the process; benchmark history
// is not persisted beyond the optional JSON file.
type Report struct {
	BackendA    string         `json:"backend_a"`
	BackendB    string         `json:"backend_b"`
	Iterations  int            `json:"iterations"`
	GeneratedAt time.Time      `json:"generated_at"`
	Cases       []CaseResult   `json:"cases"`
	AvgRatio    float64        `json:"avg_ratio,omitempty"`
	Size        SizeComparison `json:"size"`
	FailedCases int            `json:"failed_cases,omitempty"`
}

// finish computes the run-level aggregates from the per-case results.
func (r *Report) finish() {
	var sum float64
	var n int
	for _, c := range r.Cases {
		if c.Failed {
			r.FailedCases++
			continue
		}
		sum += c.Ratio
		n++
	}
	if n > 0 {
		r.AvgRatio = sum / float64(n)
	}
}

// WriteJSON writes the indented report to path, creating parent
// directories as needed.
func (r *Report) WriteJSON(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	logging.Component("bench").Info("report written", "path", path, "cases", len(r.Cases))
	return nil
}

// Render writes a human-readable summary.
func (r *Report) Render(w io.Writer) {
	fmt.Fprintf(w, "Benchmark: %s vs %s (%d iterations per case)\n",
		r.BackendA, r.BackendB, r.Iterations)
	for _, c := range r.Cases {
		if c.Failed {
			fmt.Fprintf(w, "  %-22s FAILED (a: %s, b: %s)\n", c.Name, c.A.Error, c.B.Error)
			continue
		}
		fmt.Fprintf(w, "  %-22s %s=%.3fms %s=%.3fms  rows=%d  %s\n",
			c.Name, r.BackendA, c.A.MeanMs, r.BackendB, c.B.MeanMs, c.A.Rows, c.Summary)
	}
	if r.AvgRatio > 0 {
		fmt.Fprintf(w, "Average time ratio (%s/%s): %.2fx\n", r.BackendA, r.BackendB, r.AvgRatio)
	}
	fmt.Fprintf(w, "Footprint: %s=%.2fKB %s=%.2fKB",
		r.BackendA, float64(r.Size.BytesA)/1024, r.BackendB, float64(r.Size.BytesB)/1024)
	if r.Size.Summary != "" {
		fmt.Fprintf(w, " (%s, %.1f%% difference)", r.Size.Summary, r.Size.DiffPct)
	}
	fmt.Fprintln(w)
}
