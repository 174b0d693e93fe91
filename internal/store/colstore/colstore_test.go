package colstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"barbench/internal/store/storetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "market_data"), DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, openTestStore(t))
}

func TestPartitionLayout(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.Load(ctx, storetest.Tickers(), storetest.Bars()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	for _, sym := range []string{"AAPL", "TSLA", "GOOG"} {
		path := filepath.Join(st.dir, "ticker="+sym, partitionFile)
		stat, err := os.Stat(path)
		if err != nil {
			t.Fatalf("partition for %s should exist: %v", sym, err)
		}
		if stat.Size() == 0 {
			t.Errorf("partition for %s should not be empty", sym)
		}
	}
}

func TestPartitionRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.Load(ctx, storetest.Tickers(), storetest.Bars()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	bars, err := st.readPartition("TSLA")
	if err != nil {
		t.Fatalf("readPartition: %v", err)
	}
	if len(bars) != 5 {
		t.Fatalf("expected 5 TSLA bars, got %d", len(bars))
	}
	for i, b := range bars {
		if b.Symbol != "TSLA" {
			t.Errorf("row %d: symbol %s", i, b.Symbol)
		}
		if i > 0 && !bars[i-1].Timestamp.Before(b.Timestamp) {
			t.Errorf("row %d: partition not in timestamp order", i)
		}
	}
	if bars[0].Close != 268.07 || bars[4].Close != 271.00 {
		t.Errorf("close values did not round-trip: %.2f, %.2f", bars[0].Close, bars[4].Close)
	}
}

func TestReloadClearsStalePartitions(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.Load(ctx, storetest.Tickers(), storetest.Bars()); err != nil {
		t.Fatalf("first load: %v", err)
	}

	// Reload with GOOG removed; its partition must not survive.
	tickers := storetest.Tickers()[:2]
	var bars = storetest.Bars()
	kept := bars[:0]
	for _, b := range bars {
		if b.Symbol != "GOOG" {
			kept = append(kept, b)
		}
	}
	if err := st.Load(ctx, tickers, kept); err != nil {
		t.Fatalf("second load: %v", err)
	}

	if _, err := os.Stat(filepath.Join(st.dir, "ticker=GOOG")); !os.IsNotExist(err) {
		t.Errorf("stale GOOG partition should be gone, got %v", err)
	}

	rows, err := st.AverageDailyVolume(ctx)
	if err != nil {
		t.Fatalf("AverageDailyVolume: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("got %d tickers after reload, want 2", len(rows))
	}
}

func TestKnownSymbolsFromExistingDataset(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "market_data")
	ctx := context.Background()

	first, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := first.Load(ctx, storetest.Tickers(), storetest.Bars()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A fresh store over the same directory derives the ticker set from
	// the partition layout.
	second, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	bars, err := second.RangeQuery(ctx, "AAPL", storetest.Nov17, storetest.Nov18)
	if err != nil {
		t.Fatalf("RangeQuery after reopen: %v", err)
	}
	if len(bars) != 5 {
		t.Errorf("expected 5 AAPL bars after reopen, got %d", len(bars))
	}
}

func TestAggregationsOnBarlessDataset(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	// Known tickers but no bars: no partition file is ever written, so the
	// glob matches nothing. Aggregations must return empty, not error.
	if err := st.Load(ctx, storetest.Tickers(), nil); err != nil {
		t.Fatalf("Load: %v", err)
	}

	volumes, err := st.AverageDailyVolume(ctx)
	if err != nil {
		t.Fatalf("AverageDailyVolume: %v", err)
	}
	if len(volumes) != 0 {
		t.Errorf("expected no volume rows, got %+v", volumes)
	}

	returns, err := st.TopReturns(ctx, storetest.Nov17, storetest.Nov21, 3)
	if err != nil {
		t.Fatalf("TopReturns: %v", err)
	}
	if len(returns) != 0 {
		t.Errorf("expected no return rows, got %+v", returns)
	}

	daily, err := st.DailyFirstLast(ctx, 0)
	if err != nil {
		t.Fatalf("DailyFirstLast: %v", err)
	}
	if len(daily) != 0 {
		t.Errorf("expected no daily rows, got %+v", daily)
	}
}

func TestParseCompressionType(t *testing.T) {
	cases := []struct {
		in   string
		want CompressionType
	}{
		{"zstd", CompressionZstd},
		{"snappy", CompressionSnappy},
		{"lz4", CompressionLZ4},
		{"gzip", CompressionGzip},
		{"none", CompressionNone},
		{"", CompressionNone},
		{"bogus", CompressionZstd},
	}
	for _, c := range cases {
		if got := ParseCompressionType(c.in); got != c.want {
			t.Errorf("ParseCompressionType(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
