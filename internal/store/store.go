// Package store defines the backend-agnostic contract for querying OHLCV
// data. Two implementations exist: the relational row store
// (internal/store/sqlite) and the partitioned columnar store
// (internal/store/colstore). The benchmark harness treats both uniformly
// through the Store interface; call sites never branch on backend kind.
package store

import (
	"context"
	"math"
	"sort"
	"time"

	"barbench/internal/errors"
	"barbench/internal/market"
	"barbench/internal/rolling"
)

// Store is the data access facade over one storage backend. All query
// operations are pure reads; Load is the single write phase and never
// overlaps query execution.
type Store interface {
	// Name identifies the backend in reports and logs ("sqlite", "parquet").
	Name() string

	// Load populates the backend from validated reference data and bars.
	// Bars whose symbol is absent from the reference tickers are dropped.
	Load(ctx context.Context, tickers []market.Ticker, bars []market.Bar) error

	// RangeQuery returns all bars for symbol with timestamp in [start, end]
	// inclusive, ordered ascending by timestamp. An unknown symbol is an
	// ErrTickerNotFound; a known symbol with no bars in range returns an
	// empty result.
	RangeQuery(ctx context.Context, symbol string, start, end time.Time) ([]market.Bar, error)

	// AverageDailyVolume returns, per known ticker, the arithmetic mean of
	// volume across all bars truncated to an integer, ordered descending by
	// the average with ties broken by symbol ascending.
	AverageDailyVolume(ctx context.Context) ([]VolumeRow, error)

	// TopReturns ranks tickers by percentage return over [start, end]:
	// open of the earliest in-range bar to close of the latest, rounded to
	// two decimals. Tickers without bars in range are excluded. At most
	// topN rows are returned, ordered descending by return with ties broken
	// by symbol ascending.
	TopReturns(ctx context.Context, start, end time.Time, topN int) ([]ReturnRow, error)

	// DailyFirstLast returns one row per (ticker, calendar date) with the
	// open of the earliest and the close of the latest bar that date,
	// ordered by date descending then symbol ascending. A positive limit
	// caps the row count positionally.
	DailyFirstLast(ctx context.Context, limit int) ([]DailyRow, error)

	// RollingAverage computes the trailing moving average of close over
	// window bars for one symbol, expanding over the first window-1 bars.
	// Output length equals the symbol's bar count.
	RollingAverage(ctx context.Context, symbol string, window int) ([]RollingAvgRow, error)

	// RollingVolatility computes, per ticker independently, the trailing
	// sample standard deviation of consecutive-close returns over window
	// return values. Rows carry validity flags: the first bar of a ticker
	// has no return, and volatility is undefined until window returns
	// exist.
	RollingVolatility(ctx context.Context, window int) ([]VolatilityRow, error)

	// FootprintBytes reports the on-disk size of the backend's persisted
	// representation of the whole dataset.
	FootprintBytes() (int64, error)

	// Close releases the backend's resources. Safe to call more than once.
	Close() error
}

// VolumeRow is one average-daily-volume result row.
type VolumeRow struct {
	Symbol         string `json:"symbol"`
	AvgDailyVolume int64  `json:"avg_daily_volume"`
}

// ReturnRow is one top-returns result row.
type ReturnRow struct {
	Symbol    string  `json:"symbol"`
	ReturnPct float64 `json:"return_pct"`
}

// DailyRow is one daily first/last trade summary row. Date is the bar's
// own calendar date formatted as 2006-01-02.
type DailyRow struct {
	Symbol          string  `json:"symbol"`
	Date            string  `json:"date"`
	FirstTradePrice float64 `json:"first_trade_price"`
	LastTradePrice  float64 `json:"last_trade_price"`
}

// RollingAvgRow is one rolling-average result row.
type RollingAvgRow struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Close      float64   `json:"close"`
	RollingAvg float64   `json:"rolling_avg"`
}

// VolatilityRow is one rolling-volatility result row. Return and
// Volatility are meaningful only when their Valid flag is set; an unset
// flag propagates "no value", never zero.
type VolatilityRow struct {
	Symbol          string    `json:"symbol"`
	Timestamp       time.Time `json:"timestamp"`
	Close           float64   `json:"close"`
	Return          float64   `json:"return"`
	ReturnValid     bool      `json:"return_valid"`
	Volatility      float64   `json:"volatility"`
	VolatilityValid bool      `json:"volatility_valid"`
}

// RankReturns rounds each percentage return to two decimals, orders rows
// descending by the rounded value with ties broken by symbol ascending,
// and truncates to at most topN rows. Ranking happens here rather than in
// backend SQL so both engines agree on rounding and tie-break behavior.
func RankReturns(rows []ReturnRow, topN int) []ReturnRow {
	for i := range rows {
		rows[i].ReturnPct = RoundPct(rows[i].ReturnPct)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ReturnPct != rows[j].ReturnPct {
			return rows[i].ReturnPct > rows[j].ReturnPct
		}
		return rows[i].Symbol < rows[j].Symbol
	})
	if len(rows) > topN {
		rows = rows[:topN]
	}
	return rows
}

// VolatilitySeries builds the per-bar volatility rows for one ticker from
// its chronologically ordered closes. Shared by both backends so the
// windowed arithmetic cannot diverge.
func VolatilitySeries(symbol string, stamps []time.Time, closes []float64, window int) []VolatilityRow {
	rets := rolling.Returns(closes)
	stds, ok := rolling.StdDevs(rets, window)

	out := make([]VolatilityRow, len(closes))
	for i := range closes {
		row := VolatilityRow{
			Symbol:    symbol,
			Timestamp: stamps[i],
			Close:     closes[i],
		}
		if i > 0 {
			row.Return = rets[i-1]
			row.ReturnValid = true
			if ok[i-1] {
				row.Volatility = stds[i-1]
				row.VolatilityValid = true
			}
		}
		out[i] = row
	}
	return out
}

// ValidateRange rejects ranges whose end precedes the start. Equal bounds
// are a valid single-instant range.
func ValidateRange(start, end time.Time) error {
	if end.Before(start) {
		return errors.NewInvalidRange(
			start.Format("2006-01-02 15:04:05"),
			end.Format("2006-01-02 15:04:05"),
		)
	}
	return nil
}

// ValidatePositive rejects non-positive numeric parameters such as window
// sizes and top-N counts.
func ValidatePositive(name string, n int) error {
	if n <= 0 {
		return errors.NewInvalidArgument(name, n, "must be positive")
	}
	return nil
}

// RoundPct rounds a percentage to two decimal places, half away from zero,
// matching SQLite's ROUND.
func RoundPct(x float64) float64 {
	return math.Round(x*100) / 100
}
