package bench

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"barbench/internal/config"
	"barbench/internal/errors"
	"barbench/internal/market"
	"barbench/internal/store"
)

// fakeStore answers every facade query with a fixed row count, or fails
// with a configured error. Timings are whatever the clock says; tests
// assert only on structure, never on durations.
type fakeStore struct {
	name  string
	rows  int
	bytes int64
	err   error
}

func (f *fakeStore) Name() string { return f.name }

func (f *fakeStore) Load(context.Context, []market.Ticker, []market.Bar) error { return nil }

func (f *fakeStore) RangeQuery(context.Context, string, time.Time, time.Time) ([]market.Bar, error) {
	if f.err != nil {
		return nil, f.err
	}
	return make([]market.Bar, f.rows), nil
}

func (f *fakeStore) AverageDailyVolume(context.Context) ([]store.VolumeRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return make([]store.VolumeRow, f.rows), nil
}

func (f *fakeStore) TopReturns(context.Context, time.Time, time.Time, int) ([]store.ReturnRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return make([]store.ReturnRow, f.rows), nil
}

func (f *fakeStore) DailyFirstLast(context.Context, int) ([]store.DailyRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return make([]store.DailyRow, f.rows), nil
}

func (f *fakeStore) RollingAverage(context.Context, string, int) ([]store.RollingAvgRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return make([]store.RollingAvgRow, f.rows), nil
}

func (f *fakeStore) RollingVolatility(context.Context, int) ([]store.VolatilityRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return make([]store.VolatilityRow, f.rows), nil
}

func (f *fakeStore) FootprintBytes() (int64, error) { return f.bytes, nil }

func (f *fakeStore) Close() error { return nil }

func benchConfig() config.BenchConfig {
	return config.BenchConfig{Iterations: 3, SketchAccuracy: 0.01}
}

func queryConfig() config.QueryConfig {
	return config.QueryConfig{
		Ticker: "TSLA",
		Start:  time.Date(2023, 11, 17, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2023, 11, 21, 23, 59, 59, 0, time.UTC),
		TopN:   3,
		Window: 5,
	}
}

func TestRunnerProducesAllCases(t *testing.T) {
	a := &fakeStore{name: "sqlite", rows: 5, bytes: 4096}
	b := &fakeStore{name: "parquet", rows: 5, bytes: 1024}
	r := NewRunner(a, b, benchConfig())

	report, err := r.Run(context.Background(), StandardBattery(queryConfig()))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.BackendA != "sqlite" || report.BackendB != "parquet" {
		t.Errorf("backend names: %s vs %s", report.BackendA, report.BackendB)
	}
	if len(report.Cases) != 6 {
		t.Fatalf("got %d cases, want 6", len(report.Cases))
	}
	wantNames := []string{
		"range_query", "average_daily_volume", "top_returns",
		"daily_first_last", "rolling_average", "rolling_volatility",
	}
	for i, c := range report.Cases {
		if c.Name != wantNames[i] {
			t.Errorf("case %d = %s, want %s", i, c.Name, wantNames[i])
		}
		if c.Failed {
			t.Errorf("case %s unexpectedly failed", c.Name)
		}
		if c.A.Iterations != 3 || c.B.Iterations != 3 {
			t.Errorf("case %s iterations: a=%d b=%d", c.Name, c.A.Iterations, c.B.Iterations)
		}
		if c.A.Rows != 5 || c.B.Rows != 5 {
			t.Errorf("case %s rows: a=%d b=%d", c.Name, c.A.Rows, c.B.Rows)
		}
		if c.A.MeanMs < 0 || c.B.MeanMs < 0 {
			t.Errorf("case %s means: a=%f b=%f", c.Name, c.A.MeanMs, c.B.MeanMs)
		}
		if c.Summary == "" {
			t.Errorf("case %s has no summary", c.Name)
		}
	}
	if report.FailedCases != 0 {
		t.Errorf("failed cases = %d", report.FailedCases)
	}
	if report.AvgRatio <= 0 {
		t.Errorf("avg ratio = %f", report.AvgRatio)
	}

	if report.Size.BytesA != 4096 || report.Size.BytesB != 1024 {
		t.Errorf("size = %+v", report.Size)
	}
	if report.Size.Ratio != 4 {
		t.Errorf("size ratio = %f, want 4", report.Size.Ratio)
	}
	if report.Size.Summary != "parquet is 4.00x smaller" {
		t.Errorf("size summary = %q", report.Size.Summary)
	}
}

func TestRunnerRecordsUnavailableBackend(t *testing.T) {
	a := &fakeStore{name: "sqlite", rows: 5, bytes: 4096}
	b := &fakeStore{
		name:  "parquet",
		bytes: 1024,
		err:   errors.NewBackendUnavailable("parquet", errors.ErrInternal),
	}
	r := NewRunner(a, b, benchConfig())

	report, err := r.Run(context.Background(), StandardBattery(queryConfig()))
	if err != nil {
		t.Fatalf("unavailable backend should not abort the run: %v", err)
	}

	if report.FailedCases != len(report.Cases) {
		t.Errorf("failed cases = %d, want %d", report.FailedCases, len(report.Cases))
	}
	for _, c := range report.Cases {
		if !c.Failed {
			t.Errorf("case %s should be failed", c.Name)
		}
		if c.B.Error == "" {
			t.Errorf("case %s missing backend error", c.Name)
		}
		if c.Ratio != 0 {
			t.Errorf("failed case %s has ratio %f", c.Name, c.Ratio)
		}
	}
	if report.AvgRatio != 0 {
		t.Errorf("avg ratio over failed cases = %f", report.AvgRatio)
	}
}

func TestRunnerAbortsOnOtherErrors(t *testing.T) {
	a := &fakeStore{name: "sqlite", err: errors.ErrInternal}
	b := &fakeStore{name: "parquet", rows: 1}
	r := NewRunner(a, b, benchConfig())

	if _, err := r.Run(context.Background(), StandardBattery(queryConfig())); err == nil {
		t.Fatal("internal errors should abort the run")
	}
}

func TestSpeedupSummary(t *testing.T) {
	cases := []struct {
		meanA, meanB float64
		want         string
	}{
		{10, 2, "parquet is 5.00x faster"},
		{2, 10, "sqlite is 5.00x faster"},
		{4, 4, "sqlite is 1.00x faster"},
		{0, 4, "n/a"},
	}
	for _, tc := range cases {
		got := speedupSummary("sqlite", tc.meanA, "parquet", tc.meanB)
		if got != tc.want {
			t.Errorf("speedupSummary(%f, %f) = %q, want %q", tc.meanA, tc.meanB, got, tc.want)
		}
	}
}

func TestReportJSONRoundTrip(t *testing.T) {
	a := &fakeStore{name: "sqlite", rows: 2, bytes: 100}
	b := &fakeStore{name: "parquet", rows: 2, bytes: 50}
	r := NewRunner(a, b, benchConfig())

	report, err := r.Run(context.Background(), StandardBattery(queryConfig())[:1])
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	path := filepath.Join(t.TempDir(), "reports", "bench.json")
	if err := report.WriteJSON(path); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var decoded Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if decoded.BackendA != "sqlite" || len(decoded.Cases) != 1 {
		t.Errorf("decoded report: %+v", decoded)
	}
	if decoded.Size.BytesA != 100 || decoded.Size.BytesB != 50 {
		t.Errorf("decoded size: %+v", decoded.Size)
	}
}

func TestReportRender(t *testing.T) {
	report := &Report{
		BackendA:   "sqlite",
		BackendB:   "parquet",
		Iterations: 3,
		Cases: []CaseResult{
			{
				Name:    "range_query",
				A:       BackendResult{Backend: "sqlite", Rows: 5, MeanMs: 1.2},
				B:       BackendResult{Backend: "parquet", Rows: 5, MeanMs: 0.4},
				Ratio:   3,
				Summary: "parquet is 3.00x faster",
			},
			{
				Name:   "top_returns",
				A:      BackendResult{Backend: "sqlite", Failed: true, Error: "sqlite unavailable"},
				B:      BackendResult{Backend: "parquet", Rows: 3, MeanMs: 0.4},
				Failed: true,
			},
		},
		AvgRatio: 3,
		Size:     SizeComparison{BytesA: 4096, BytesB: 1024, Summary: "parquet is 4.00x smaller"},
	}

	var buf bytes.Buffer
	report.Render(&buf)
	out := buf.String()

	for _, want := range []string{
		"sqlite vs parquet",
		"range_query",
		"parquet is 3.00x faster",
		"FAILED",
		"parquet is 4.00x smaller",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render output missing %q:\n%s", want, out)
		}
	}
}
