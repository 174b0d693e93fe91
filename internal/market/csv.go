package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"barbench/internal/errors"
)

// timestampLayouts are tried in order when parsing bar timestamps.
// Offset-bearing inputs are normalized to UTC so both backends derive
// identical dates and ordering from the same bar.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// LoadTickersCSV reads ticker reference data. The symbol column is located
// by header name; remaining descriptive columns are optional.
func LoadTickersCSV(path string) ([]Ticker, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tickers file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read tickers header: %w", err)
	}
	cols := columnIndex(header)

	symCol, ok := cols["symbol"]
	if !ok {
		// Reference files without a symbol header use the first column.
		symCol = 0
	}

	var tickers []Ticker
	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tickers row %d: %w", line, err)
		}
		line++

		t := Ticker{Symbol: strings.TrimSpace(rec[symCol])}
		if t.Symbol == "" {
			return nil, errors.Wrapf(errors.NewMissingField("symbol"), "tickers row %d", line)
		}
		if i, ok := cols["ticker_id"]; ok && i < len(rec) {
			id, err := strconv.ParseInt(strings.TrimSpace(rec[i]), 10, 64)
			if err == nil {
				t.ID = id
			}
		}
		if i, ok := cols["name"]; ok && i < len(rec) {
			t.Name = strings.TrimSpace(rec[i])
		}
		if i, ok := cols["exchange"]; ok && i < len(rec) {
			t.Exchange = strings.TrimSpace(rec[i])
		}
		tickers = append(tickers, t)
	}

	if len(tickers) == 0 {
		return nil, fmt.Errorf("tickers file %s contains no rows", path)
	}
	return tickers, nil
}

// LoadBarsCSV reads per-minute OHLCV bars and validates them: every row
// must have a parseable timestamp and complete price/volume values.
// Returned bars are sorted by (symbol, timestamp).
func LoadBarsCSV(path string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open prices file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read prices header: %w", err)
	}
	cols := columnIndex(header)

	required := []string{"timestamp", "ticker", "open", "high", "low", "close", "volume"}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, errors.Wrapf(errors.NewMissingField(name), "prices header")
		}
	}

	var bars []Bar
	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read prices row %d: %w", line, err)
		}
		line++

		bar, err := parseBar(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("prices row %d: %w", line, err)
		}
		bars = append(bars, bar)
	}

	SortBars(bars)
	return bars, nil
}

func parseBar(rec []string, cols map[string]int) (Bar, error) {
	var bar Bar

	bar.Symbol = strings.TrimSpace(rec[cols["ticker"]])
	if bar.Symbol == "" {
		return bar, errors.NewMissingField("ticker")
	}

	ts, err := parseTimestamp(strings.TrimSpace(rec[cols["timestamp"]]))
	if err != nil {
		return bar, err
	}
	bar.Timestamp = ts

	fields := []struct {
		name string
		dst  *float64
	}{
		{"open", &bar.Open},
		{"high", &bar.High},
		{"low", &bar.Low},
		{"close", &bar.Close},
	}
	for _, fl := range fields {
		raw := strings.TrimSpace(rec[cols[fl.name]])
		if raw == "" {
			return bar, errors.NewMissingField(fl.name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return bar, errors.NewInvalidArgument(fl.name, raw, "not a number")
		}
		*fl.dst = v
	}

	rawVol := strings.TrimSpace(rec[cols["volume"]])
	if rawVol == "" {
		return bar, errors.NewMissingField("volume")
	}
	vol, err := strconv.ParseInt(rawVol, 10, 64)
	if err != nil {
		return bar, errors.NewInvalidArgument("volume", rawVol, "not an integer")
	}
	if vol < 0 {
		return bar, errors.NewInvalidArgument("volume", rawVol, "negative")
	}
	bar.Volume = vol

	return bar, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.NewMissingField("timestamp")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, errors.NewInvalidArgument("timestamp", raw, "unrecognized format")
}

// ValidateCoverage checks that every reference ticker appears in the bar
// data. Bars whose symbol is absent from the reference set are not an
// error here; backends drop them at load time.
func ValidateCoverage(bars []Bar, tickers []Ticker) error {
	present := make(map[string]struct{}, len(bars))
	for i := range bars {
		present[bars[i].Symbol] = struct{}{}
	}

	var missing []string
	for _, t := range tickers {
		if _, ok := present[t.Symbol]; !ok {
			missing = append(missing, t.Symbol)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("reference tickers missing from market data: %s", strings.Join(missing, ", "))
	}
	return nil
}

// columnIndex maps normalized (lowercased, trimmed) header names to their
// positions.
func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return cols
}
