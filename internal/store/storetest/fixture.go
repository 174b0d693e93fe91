// Package storetest provides a shared fixture and a conformance suite for
// Store implementations. Both backends run the same suite, so a behavioral
// divergence between the relational and columnar paths fails their tests
// identically.
package storetest

import (
	"time"

	"barbench/internal/market"
)

func ts(day, hour, min int) time.Time {
	return time.Date(2025, 11, day, hour, min, 0, 0, time.UTC)
}

// Tickers returns the reference data for the fixture dataset.
func Tickers() []market.Ticker {
	return []market.Ticker{
		{ID: 1, Symbol: "AAPL", Name: "Apple Inc.", Exchange: "NASDAQ"},
		{ID: 2, Symbol: "TSLA", Name: "Tesla Inc.", Exchange: "NASDAQ"},
		{ID: 3, Symbol: "GOOG", Name: "Alphabet Inc.", Exchange: "NASDAQ"},
	}
}

// Bars returns the fixture bars. The numbers are chosen so every expected
// query result is hand-checkable:
//
//   - AAPL volumes average exactly 3200; TSLA's average 699.8 truncates
//     to 699.
//   - TSLA closes are 268.07, 269.04, 267.92, 270.00, 271.00, so the
//     5-bar rolling average at the last bar is 269.206.
//   - GOOG trades only on Nov 20 with open 100 and final close 133.38,
//     a 33.38% return, and is absent from any range ending Nov 18.
func Bars() []market.Bar {
	return []market.Bar{
		{Symbol: "AAPL", Timestamp: ts(17, 9, 30), Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 1000},
		{Symbol: "AAPL", Timestamp: ts(17, 9, 31), Open: 100.5, High: 101.5, Low: 100, Close: 101, Volume: 2000},
		{Symbol: "AAPL", Timestamp: ts(17, 9, 32), Open: 101, High: 102.5, Low: 100.5, Close: 102, Volume: 3000},
		{Symbol: "AAPL", Timestamp: ts(18, 9, 30), Open: 102, High: 103.5, Low: 101.5, Close: 103, Volume: 4000},
		{Symbol: "AAPL", Timestamp: ts(18, 9, 31), Open: 103, High: 104.5, Low: 102.5, Close: 104, Volume: 6000},

		{Symbol: "TSLA", Timestamp: ts(17, 9, 30), Open: 268.00, High: 268.5, Low: 267.5, Close: 268.07, Volume: 500},
		{Symbol: "TSLA", Timestamp: ts(17, 9, 31), Open: 268.07, High: 269.5, Low: 268, Close: 269.04, Volume: 600},
		{Symbol: "TSLA", Timestamp: ts(17, 9, 32), Open: 269.04, High: 269.5, Low: 267.5, Close: 267.92, Volume: 700},
		{Symbol: "TSLA", Timestamp: ts(18, 9, 30), Open: 267.92, High: 270.5, Low: 267.5, Close: 270.00, Volume: 800},
		{Symbol: "TSLA", Timestamp: ts(18, 9, 31), Open: 270.00, High: 271.5, Low: 269.5, Close: 271.00, Volume: 899},

		{Symbol: "GOOG", Timestamp: ts(20, 9, 30), Open: 100, High: 121, Low: 99, Close: 120, Volume: 10000},
		{Symbol: "GOOG", Timestamp: ts(20, 9, 31), Open: 120, High: 134, Low: 119.5, Close: 133.38, Volume: 10000},
	}
}

// Range bounds used across the suite.
var (
	Nov17 = ts(17, 0, 0)
	Nov18 = ts(18, 23, 59)
	Nov21 = ts(21, 23, 59)
)
