// Package colstore implements the partitioned columnar backend. Bars are
// written as one Parquet file per ticker under ticker=SYMBOL/ directories;
// single-ticker reads open only the matching partition, and whole-dataset
// aggregations run as SQL over the partition glob through an in-memory
// DuckDB connection.
package colstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/parquet-go/parquet-go"
	"golang.org/x/sync/errgroup"

	"barbench/internal/errors"
	"barbench/internal/logging"
	"barbench/internal/market"
	"barbench/internal/rolling"
	"barbench/internal/store"
)

// partitionFile is the single data file inside each ticker partition.
const partitionFile = "data.parquet"

// barRow is the Parquet representation of one bar. The ticker column is
// stored inside the file as well as in the partition directory name, so
// SQL over the partition glob sees it directly.
type barRow struct {
	Ticker      string  `parquet:"ticker,zstd"`
	TimestampMs int64   `parquet:"timestamp_ms"`
	Open        float64 `parquet:"open"`
	High        float64 `parquet:"high"`
	Low         float64 `parquet:"low"`
	Close       float64 `parquet:"close"`
	Volume      int64   `parquet:"volume"`
}

func barToRow(b *market.Bar) barRow {
	return barRow{
		Ticker:      b.Symbol,
		TimestampMs: b.Timestamp.UnixMilli(),
		Open:        b.Open,
		High:        b.High,
		Low:         b.Low,
		Close:       b.Close,
		Volume:      b.Volume,
	}
}

func rowToBar(r *barRow) market.Bar {
	return market.Bar{
		Symbol:    r.Ticker,
		Timestamp: time.UnixMilli(r.TimestampMs).UTC(),
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
	}
}

// Store is the columnar backend. The DuckDB handle is opened once and held
// until Close; Parquet files are re-read per query, so no state is cached
// across Load calls.
type Store struct {
	mu      sync.Mutex
	dir     string
	opts    Options
	db      *sql.DB
	symbols map[string]struct{}
	closed  bool
}

// Open prepares the partition root and opens the in-memory DuckDB used for
// aggregation queries.
func Open(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.NewBackendUnavailable("parquet", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.NewBackendUnavailable("parquet", err)
	}

	return &Store{dir: dir, opts: opts, db: db}, nil
}

// Name implements store.Store.
func (s *Store) Name() string { return "parquet" }

// Close releases the DuckDB handle. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) handle() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.ErrStoreClosed
	}
	return s.db, nil
}

func (s *Store) partitionDir(symbol string) string {
	return filepath.Join(s.dir, "ticker="+symbol)
}

func (s *Store) partitionGlob() string {
	return filepath.Join(s.dir, "ticker=*", "*.parquet")
}

// hasPartitions reports whether any partition file exists. DuckDB's
// read_parquet errors on a glob matching nothing, whereas the relational
// backend returns empty rows; an empty dataset short-circuits to the same
// empty result.
func (s *Store) hasPartitions() (bool, error) {
	matches, err := filepath.Glob(s.partitionGlob())
	if err != nil {
		return false, errors.NewBackendUnavailable("parquet", err)
	}
	return len(matches) > 0, nil
}

// Load rewrites the partition tree from the given bars. Partition files
// are independent, so they are written concurrently; this is the ingest
// phase only and never overlaps query execution.
func (s *Store) Load(ctx context.Context, tickers []market.Ticker, bars []market.Bar) error {
	if _, err := s.handle(); err != nil {
		return err
	}

	known := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		known[t.Symbol] = struct{}{}
	}

	kept := make([]market.Bar, 0, len(bars))
	dropped := 0
	for i := range bars {
		if _, ok := known[bars[i].Symbol]; ok {
			kept = append(kept, bars[i])
		} else {
			dropped++
		}
	}
	market.SortBars(kept)
	groups := market.GroupBySymbol(kept)

	// Rebuild from scratch so stale partitions from a previous dataset
	// cannot leak into query results.
	if err := os.RemoveAll(s.dir); err != nil {
		return errors.Wrap(err, "clear partition root")
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errors.NewBackendUnavailable("parquet", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	for symbol, group := range groups {
		symbol, group := symbol, group
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return s.writePartition(symbol, group)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	s.symbols = known
	s.mu.Unlock()

	log := logging.Component("parquet")
	if dropped > 0 {
		log.Warn("dropped bars with unknown ticker", "count", dropped)
	}
	log.Info("loaded price records",
		"partitions", len(groups), "bars", len(kept), "dir", s.dir)
	return nil
}

func (s *Store) writePartition(symbol string, bars []market.Bar) error {
	dir := s.partitionDir(symbol)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "create partition %s", symbol)
	}

	f, err := os.Create(filepath.Join(dir, partitionFile))
	if err != nil {
		return errors.Wrapf(err, "create partition file %s", symbol)
	}

	w := parquet.NewGenericWriter[barRow](f,
		parquet.Compression(getCompression(s.opts.Compression)))

	rows := make([]barRow, len(bars))
	for i := range bars {
		rows[i] = barToRow(&bars[i])
	}
	if _, err := w.Write(rows); err != nil {
		f.Close()
		return errors.Wrapf(err, "write partition %s", symbol)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return errors.Wrapf(err, "close partition writer %s", symbol)
	}
	return f.Close()
}

// readPartition reads one ticker's bars, in timestamp order as written. A
// known ticker that never produced a partition (no bars at load time)
// reads as empty, matching the relational backend.
func (s *Store) readPartition(symbol string) ([]market.Bar, error) {
	path := filepath.Join(s.partitionDir(symbol), partitionFile)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewBackendUnavailable("parquet", err)
	}
	defer f.Close()

	r := parquet.NewGenericReader[barRow](f)
	defer r.Close()

	rows := make([]barRow, r.NumRows())
	n, err := r.Read(rows)
	if err != nil && n < len(rows) {
		return nil, errors.Wrapf(err, "read partition %s", symbol)
	}

	bars := make([]market.Bar, n)
	for i := 0; i < n; i++ {
		bars[i] = rowToBar(&rows[i])
	}
	return bars, nil
}

// knownSymbols returns the reference set from the last Load, or derives it
// from the partition directories when the store was opened over an
// existing dataset.
func (s *Store) knownSymbols() (map[string]struct{}, error) {
	s.mu.Lock()
	if s.symbols != nil {
		set := s.symbols
		s.mu.Unlock()
		return set, nil
	}
	s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.NewBackendUnavailable("parquet", err)
	}
	set := make(map[string]struct{})
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "ticker=") {
			set[strings.TrimPrefix(e.Name(), "ticker=")] = struct{}{}
		}
	}

	s.mu.Lock()
	s.symbols = set
	s.mu.Unlock()
	return set, nil
}

func (s *Store) requireSymbol(symbol string) error {
	set, err := s.knownSymbols()
	if err != nil {
		return err
	}
	if _, ok := set[symbol]; !ok {
		return errors.NewTickerNotFound(symbol)
	}
	return nil
}

// RangeQuery implements store.Store. Only the matching partition is read.
func (s *Store) RangeQuery(ctx context.Context, symbol string, start, end time.Time) ([]market.Bar, error) {
	if err := store.ValidateRange(start, end); err != nil {
		return nil, err
	}
	if _, err := s.handle(); err != nil {
		return nil, err
	}
	if err := s.requireSymbol(symbol); err != nil {
		return nil, err
	}

	bars, err := s.readPartition(symbol)
	if err != nil {
		return nil, err
	}

	var out []market.Bar
	for i := range bars {
		ts := bars[i].Timestamp
		if !ts.Before(start) && !ts.After(end) {
			out = append(out, bars[i])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// RollingAverage implements store.Store.
func (s *Store) RollingAverage(ctx context.Context, symbol string, window int) ([]store.RollingAvgRow, error) {
	if err := store.ValidatePositive("windowSize", window); err != nil {
		return nil, err
	}
	if _, err := s.handle(); err != nil {
		return nil, err
	}
	if err := s.requireSymbol(symbol); err != nil {
		return nil, err
	}

	bars, err := s.readPartition(symbol)
	if err != nil {
		return nil, err
	}

	closes := make([]float64, len(bars))
	for i := range bars {
		closes[i] = bars[i].Close
	}
	avgs := rolling.Averages(closes, window)

	out := make([]store.RollingAvgRow, len(bars))
	for i := range bars {
		out[i] = store.RollingAvgRow{
			Symbol:     symbol,
			Timestamp:  bars[i].Timestamp,
			Close:      closes[i],
			RollingAvg: avgs[i],
		}
	}
	return out, nil
}

// RollingVolatility implements store.Store. Every partition is read; the
// windowed arithmetic is shared with the relational backend.
func (s *Store) RollingVolatility(ctx context.Context, window int) ([]store.VolatilityRow, error) {
	if err := store.ValidatePositive("windowSize", window); err != nil {
		return nil, err
	}
	if _, err := s.handle(); err != nil {
		return nil, err
	}

	set, err := s.knownSymbols()
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(set))
	for sym := range set {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var out []store.VolatilityRow
	for _, sym := range symbols {
		bars, err := s.readPartition(sym)
		if err != nil {
			return nil, err
		}
		stamps := make([]time.Time, len(bars))
		closes := make([]float64, len(bars))
		for i := range bars {
			stamps[i] = bars[i].Timestamp
			closes[i] = bars[i].Close
		}
		out = append(out, store.VolatilitySeries(sym, stamps, closes, window)...)
	}
	return out, nil
}

// FootprintBytes sums the sizes of every file under the partition root.
func (s *Store) FootprintBytes() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", s.dir, err)
	}
	return total, nil
}
