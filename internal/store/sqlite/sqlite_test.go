package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"barbench/internal/store/storetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "market_data.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, openTestStore(t))
}

func TestLoadReplacesContents(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.Load(ctx, storetest.Tickers(), storetest.Bars()); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if err := st.Load(ctx, storetest.Tickers(), storetest.Bars()); err != nil {
		t.Fatalf("second load: %v", err)
	}

	rows, err := st.AverageDailyVolume(ctx)
	if err != nil {
		t.Fatalf("AverageDailyVolume: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("reload duplicated data: got %d tickers, want 3", len(rows))
	}
}

func TestLoadDropsUnknownTickers(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	tickers := storetest.Tickers()[:2] // AAPL, TSLA; GOOG becomes unknown
	if err := st.Load(ctx, tickers, storetest.Bars()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	rows, err := st.AverageDailyVolume(ctx)
	if err != nil {
		t.Fatalf("AverageDailyVolume: %v", err)
	}
	for _, r := range rows {
		if r.Symbol == "GOOG" {
			t.Errorf("GOOG bars should have been dropped")
		}
	}
	if len(rows) != 2 {
		t.Errorf("got %d tickers, want 2", len(rows))
	}
}

func TestClosedStoreRejectsQueries(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.Load(ctx, storetest.Tickers(), storetest.Bars()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Second close is a no-op.
	if err := st.Close(); err != nil {
		t.Fatalf("double Close: %v", err)
	}

	if _, err := st.AverageDailyVolume(ctx); err == nil {
		t.Error("query on closed store should fail")
	}
}
