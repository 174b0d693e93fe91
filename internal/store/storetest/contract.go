package storetest

import (
	"context"
	"math"
	"testing"

	"barbench/internal/errors"
	"barbench/internal/store"
)

// tolerance for floating-point comparisons across backends.
const tolerance = 1e-6

func approx(a, b float64) bool {
	return math.Abs(a-b) <= tolerance
}

// Run loads the fixture into st and exercises the whole facade contract.
func Run(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()

	if err := st.Load(ctx, Tickers(), Bars()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	t.Run("RangeQuery", func(t *testing.T) { testRangeQuery(ctx, t, st) })
	t.Run("AverageDailyVolume", func(t *testing.T) { testAverageDailyVolume(ctx, t, st) })
	t.Run("TopReturns", func(t *testing.T) { testTopReturns(ctx, t, st) })
	t.Run("DailyFirstLast", func(t *testing.T) { testDailyFirstLast(ctx, t, st) })
	t.Run("RollingAverage", func(t *testing.T) { testRollingAverage(ctx, t, st) })
	t.Run("RollingVolatility", func(t *testing.T) { testRollingVolatility(ctx, t, st) })
	t.Run("Footprint", func(t *testing.T) { testFootprint(t, st) })
}

func testRangeQuery(ctx context.Context, t *testing.T, st store.Store) {
	bars, err := st.RangeQuery(ctx, "AAPL", Nov17, Nov18)
	if err != nil {
		t.Fatalf("RangeQuery: %v", err)
	}
	if len(bars) != 5 {
		t.Fatalf("expected 5 AAPL bars, got %d", len(bars))
	}
	for i, b := range bars {
		if b.Symbol != "AAPL" {
			t.Errorf("row %d: symbol %s", i, b.Symbol)
		}
		if b.Timestamp.Before(Nov17) || b.Timestamp.After(Nov18) {
			t.Errorf("row %d: timestamp %v outside range", i, b.Timestamp)
		}
		if i > 0 && !bars[i-1].Timestamp.Before(b.Timestamp) {
			t.Errorf("row %d: not sorted ascending", i)
		}
	}

	// Known ticker, empty range: empty result, not an error.
	empty, err := st.RangeQuery(ctx, "GOOG", Nov17, Nov18)
	if err != nil {
		t.Fatalf("RangeQuery empty: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no GOOG bars before Nov 20, got %d", len(empty))
	}

	// Unknown ticker raises, never silently returns empty.
	if _, err := st.RangeQuery(ctx, "NFLX", Nov17, Nov18); !errors.IsNotFound(err) {
		t.Errorf("unknown ticker: want not-found, got %v", err)
	}

	// End before start.
	if _, err := st.RangeQuery(ctx, "AAPL", Nov18, Nov17); !errors.Is(err, errors.ErrInvalidRange) {
		t.Errorf("inverted range: want ErrInvalidRange, got %v", err)
	}
}

func testAverageDailyVolume(ctx context.Context, t *testing.T, st store.Store) {
	rows, err := st.AverageDailyVolume(ctx)
	if err != nil {
		t.Fatalf("AverageDailyVolume: %v", err)
	}

	want := []store.VolumeRow{
		{Symbol: "GOOG", AvgDailyVolume: 10000},
		{Symbol: "AAPL", AvgDailyVolume: 3200},
		{Symbol: "TSLA", AvgDailyVolume: 699}, // 699.8 truncated, not rounded
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows (one per ticker), got %d", len(want), len(rows))
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d: got %+v, want %+v", i, rows[i], want[i])
		}
	}
}

func testTopReturns(ctx context.Context, t *testing.T, st store.Store) {
	// GOOG has no bars in [Nov17, Nov18] and must be excluded, not zero.
	rows, err := st.TopReturns(ctx, Nov17, Nov18, 3)
	if err != nil {
		t.Fatalf("TopReturns: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 qualifying tickers, got %d", len(rows))
	}
	if rows[0].Symbol != "AAPL" || !approx(rows[0].ReturnPct, 4.00) {
		t.Errorf("row 0: got %+v, want AAPL 4.00", rows[0])
	}
	if rows[1].Symbol != "TSLA" || !approx(rows[1].ReturnPct, 1.12) {
		t.Errorf("row 1: got %+v, want TSLA 1.12", rows[1])
	}

	// Full range: GOOG 100 -> 133.38 is a 33.38% return on top.
	rows, err = st.TopReturns(ctx, Nov17, Nov21, 3)
	if err != nil {
		t.Fatalf("TopReturns full range: %v", err)
	}
	if len(rows) != 3 || rows[0].Symbol != "GOOG" || !approx(rows[0].ReturnPct, 33.38) {
		t.Fatalf("full range: got %+v, want GOOG 33.38 first", rows)
	}

	// topN caps the result.
	rows, err = st.TopReturns(ctx, Nov17, Nov21, 1)
	if err != nil {
		t.Fatalf("TopReturns topN=1: %v", err)
	}
	if len(rows) != 1 || rows[0].Symbol != "GOOG" {
		t.Errorf("topN=1: got %+v", rows)
	}

	// Invalid parameters.
	if _, err := st.TopReturns(ctx, Nov17, Nov21, 0); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("topN=0: want ErrInvalidArgument, got %v", err)
	}
	if _, err := st.TopReturns(ctx, Nov21, Nov17, 3); !errors.Is(err, errors.ErrInvalidRange) {
		t.Errorf("inverted range: want ErrInvalidRange, got %v", err)
	}
}

func testDailyFirstLast(ctx context.Context, t *testing.T, st store.Store) {
	rows, err := st.DailyFirstLast(ctx, 0)
	if err != nil {
		t.Fatalf("DailyFirstLast: %v", err)
	}

	want := []store.DailyRow{
		{Symbol: "GOOG", Date: "2025-11-20", FirstTradePrice: 100, LastTradePrice: 133.38},
		{Symbol: "AAPL", Date: "2025-11-18", FirstTradePrice: 102, LastTradePrice: 104},
		{Symbol: "TSLA", Date: "2025-11-18", FirstTradePrice: 267.92, LastTradePrice: 271.00},
		{Symbol: "AAPL", Date: "2025-11-17", FirstTradePrice: 100, LastTradePrice: 102},
		{Symbol: "TSLA", Date: "2025-11-17", FirstTradePrice: 268.00, LastTradePrice: 267.92},
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d: %+v", len(want), len(rows), rows)
	}
	for i := range want {
		if rows[i].Symbol != want[i].Symbol || rows[i].Date != want[i].Date ||
			!approx(rows[i].FirstTradePrice, want[i].FirstTradePrice) ||
			!approx(rows[i].LastTradePrice, want[i].LastTradePrice) {
			t.Errorf("row %d: got %+v, want %+v", i, rows[i], want[i])
		}
	}

	// Positional truncation, which may cut inside a date group.
	capped, err := st.DailyFirstLast(ctx, 2)
	if err != nil {
		t.Fatalf("DailyFirstLast limit: %v", err)
	}
	if len(capped) != 2 {
		t.Fatalf("limit=2: got %d rows", len(capped))
	}
	if capped[0] != rows[0] || capped[1] != rows[1] {
		t.Errorf("limit=2 should be a prefix of the uncapped result")
	}
}

func testRollingAverage(ctx context.Context, t *testing.T, st store.Store) {
	rows, err := st.RollingAverage(ctx, "TSLA", 5)
	if err != nil {
		t.Fatalf("RollingAverage: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("output length %d, want bar count 5", len(rows))
	}

	// Expanding window over the first window-1 bars.
	if !approx(rows[0].RollingAvg, 268.07) {
		t.Errorf("index 0: got %.6f, want close[0]=268.07", rows[0].RollingAvg)
	}
	if !approx(rows[1].RollingAvg, (268.07+269.04)/2) {
		t.Errorf("index 1: got %.6f, want mean of first two closes", rows[1].RollingAvg)
	}
	if !approx(rows[4].RollingAvg, 269.206) {
		t.Errorf("index 4: got %.6f, want 269.206", rows[4].RollingAvg)
	}

	if _, err := st.RollingAverage(ctx, "NFLX", 5); !errors.IsNotFound(err) {
		t.Errorf("unknown ticker: want not-found, got %v", err)
	}
	if _, err := st.RollingAverage(ctx, "TSLA", 0); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("window=0: want ErrInvalidArgument, got %v", err)
	}
}

func testRollingVolatility(ctx context.Context, t *testing.T, st store.Store) {
	rows, err := st.RollingVolatility(ctx, 2)
	if err != nil {
		t.Fatalf("RollingVolatility: %v", err)
	}
	if len(rows) != 12 {
		t.Fatalf("expected one row per bar (12), got %d", len(rows))
	}

	perSymbol := make(map[string][]int)
	for i, r := range rows {
		perSymbol[r.Symbol] = append(perSymbol[r.Symbol], i)
	}
	for sym, idx := range perSymbol {
		// First bar of each ticker has no return.
		first := rows[idx[0]]
		if first.ReturnValid || first.VolatilityValid {
			t.Errorf("%s first bar: return/volatility should be undefined", sym)
		}
		for n, i := range idx {
			r := rows[i]
			switch {
			case n == 0:
				// handled above
			case n < 2:
				// Fewer than window return values: volatility undefined.
				if !r.ReturnValid || r.VolatilityValid {
					t.Errorf("%s bar %d: want return only, got %+v", sym, n, r)
				}
			default:
				if !r.ReturnValid || !r.VolatilityValid {
					t.Errorf("%s bar %d: want defined volatility, got %+v", sym, n, r)
				}
				if r.Volatility < 0 {
					t.Errorf("%s bar %d: negative volatility %f", sym, n, r.Volatility)
				}
			}
		}
	}

	if _, err := st.RollingVolatility(ctx, -1); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("window=-1: want ErrInvalidArgument, got %v", err)
	}
}

func testFootprint(t *testing.T, st store.Store) {
	size, err := st.FootprintBytes()
	if err != nil {
		t.Fatalf("FootprintBytes: %v", err)
	}
	if size <= 0 {
		t.Errorf("footprint should be positive after load, got %d", size)
	}
}
