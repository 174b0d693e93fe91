// Package market defines the OHLCV domain model and CSV ingestion for
// barbench. Both storage backends are loaded from the same validated
// slice of bars, so query results are comparable row for row.
package market

import (
	"sort"
	"time"
)

// Ticker is immutable reference data for one instrument.
type Ticker struct {
	ID       int64
	Symbol   string
	Name     string
	Exchange string
}

// Bar is one OHLCV observation at minute granularity.
//
// For a given ticker, timestamps are unique and monotonically increasing
// once sorted. The low <= open,close <= high relation is expected but not
// enforced; the source data is taken as-is.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Date returns the bar's calendar date from its canonical UTC timestamp.
// Both backends derive the same value for their daily groupings.
func (b *Bar) Date() string {
	return b.Timestamp.UTC().Format("2006-01-02")
}

// SortBars orders bars by symbol, then timestamp ascending. Both backends
// receive bars in this order at load time.
func SortBars(bars []Bar) {
	sort.Slice(bars, func(i, j int) bool {
		if bars[i].Symbol != bars[j].Symbol {
			return bars[i].Symbol < bars[j].Symbol
		}
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
}

// GroupBySymbol splits bars into per-symbol slices, preserving input order
// within each symbol.
func GroupBySymbol(bars []Bar) map[string][]Bar {
	groups := make(map[string][]Bar)
	for i := range bars {
		groups[bars[i].Symbol] = append(groups[bars[i].Symbol], bars[i])
	}
	return groups
}
