// Package sqlite implements the relational row-store backend on SQLite.
// The schema and query shapes follow the classic two-table layout:
// a tickers reference table and an indexed prices table, with analytics
// expressed as joins, GROUP BY aggregation and CTE chains.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"barbench/internal/errors"
	"barbench/internal/logging"
	"barbench/internal/market"
	"barbench/internal/rolling"
	"barbench/internal/store"
)

// timeLayout is the canonical TEXT representation of bar timestamps,
// always UTC wall clock. Lexicographic order equals chronological order,
// so BETWEEN and MIN/MAX work directly on the column.
const timeLayout = "2006-01-02 15:04:05"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tickers (
	ticker_id INTEGER PRIMARY KEY,
	symbol TEXT NOT NULL UNIQUE,
	name TEXT,
	exchange TEXT
);

CREATE TABLE IF NOT EXISTS prices (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	ticker_id INTEGER NOT NULL,
	open REAL,
	high REAL,
	low REAL,
	close REAL,
	volume INTEGER,
	FOREIGN KEY (ticker_id) REFERENCES tickers(ticker_id)
);

CREATE INDEX IF NOT EXISTS idx_prices_ticker_ts ON prices(ticker_id, timestamp);
`

// Store is the relational backend. A single *sql.DB handle is held for the
// store's lifetime and released by Close.
type Store struct {
	mu     sync.Mutex
	path   string
	db     *sql.DB
	closed bool
}

// Open opens (creating if necessary) the database file and initializes the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.NewBackendUnavailable("sqlite", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.NewBackendUnavailable("sqlite", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.NewBackendUnavailable("sqlite", err)
	}

	return &Store{path: path, db: db}, nil
}

// Name implements store.Store.
func (s *Store) Name() string { return "sqlite" }

// Close releases the database handle. Safe to call more than once.
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

// Load replaces the current contents with the given reference data and
// bars. Bars whose symbol is not in the reference set are dropped with a
// warning, mirroring the ingestion contract.
func (s *Store) Load(ctx context.Context, tickers []market.Ticker, bars []market.Bar) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewBackendUnavailable("sqlite", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM prices"); err != nil {
		return errors.Wrap(err, "clear prices")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tickers"); err != nil {
		return errors.Wrap(err, "clear tickers")
	}

	insTicker, err := tx.PrepareContext(ctx,
		"INSERT INTO tickers (ticker_id, symbol, name, exchange) VALUES (?, ?, ?, ?)")
	if err != nil {
		return errors.Wrap(err, "prepare ticker insert")
	}
	defer insTicker.Close()

	ids := make(map[string]int64, len(tickers))
	for i, t := range tickers {
		id := t.ID
		if id == 0 {
			id = int64(i + 1)
		}
		if _, err := insTicker.ExecContext(ctx, id, t.Symbol, t.Name, t.Exchange); err != nil {
			return errors.Wrapf(err, "insert ticker %s", t.Symbol)
		}
		ids[t.Symbol] = id
	}

	insBar, err := tx.PrepareContext(ctx,
		"INSERT INTO prices (timestamp, ticker_id, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return errors.Wrap(err, "prepare price insert")
	}
	defer insBar.Close()

	dropped := 0
	inserted := 0
	for i := range bars {
		b := &bars[i]
		id, ok := ids[b.Symbol]
		if !ok {
			dropped++
			continue
		}
		_, err := insBar.ExecContext(ctx,
			b.Timestamp.UTC().Format(timeLayout), id, b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return errors.Wrapf(err, "insert bar %s@%s", b.Symbol, b.Timestamp)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return errors.NewBackendUnavailable("sqlite", err)
	}

	log := logging.Component("sqlite")
	if dropped > 0 {
		log.Warn("dropped bars with unknown ticker", "count", dropped)
	}
	log.Info("loaded price records", "tickers", len(tickers), "bars", inserted, "path", s.path)
	return nil
}

func (s *Store) symbolExists(ctx context.Context, db *sql.DB, symbol string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, "SELECT 1 FROM tickers WHERE symbol = ?", symbol).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewBackendUnavailable("sqlite", err)
	}
	return true, nil
}

// RangeQuery implements store.Store.
func (s *Store) RangeQuery(ctx context.Context, symbol string, start, end time.Time) ([]market.Bar, error) {
	if err := store.ValidateRange(start, end); err != nil {
		return nil, err
	}
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	known, err := s.symbolExists(ctx, db, symbol)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, errors.NewTickerNotFound(symbol)
	}

	const q = `
	SELECT t.symbol, p.timestamp, p.open, p.high, p.low, p.close, p.volume
	FROM prices p
	JOIN tickers t ON p.ticker_id = t.ticker_id
	WHERE t.symbol = ?
	  AND p.timestamp BETWEEN ? AND ?
	ORDER BY p.timestamp ASC`

	rows, err := db.QueryContext(ctx, q, symbol, start.UTC().Format(timeLayout), end.UTC().Format(timeLayout))
	if err != nil {
		return nil, errors.NewBackendUnavailable("sqlite", err)
	}
	defer rows.Close()

	var out []market.Bar
	for rows.Next() {
		var b market.Bar
		var ts string
		if err := rows.Scan(&b.Symbol, &ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, errors.Wrap(err, "scan bar")
		}
		b.Timestamp, err = time.Parse(timeLayout, ts)
		if err != nil {
			return nil, errors.Wrapf(err, "parse stored timestamp %q", ts)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// AverageDailyVolume implements store.Store. CAST truncates toward zero,
// which is the contracted integer conversion.
func (s *Store) AverageDailyVolume(ctx context.Context) ([]store.VolumeRow, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	const q = `
	SELECT t.symbol, CAST(AVG(p.volume) AS INTEGER) AS avg_daily_volume
	FROM prices p
	JOIN tickers t ON p.ticker_id = t.ticker_id
	GROUP BY t.symbol
	ORDER BY avg_daily_volume DESC, t.symbol ASC`

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, errors.NewBackendUnavailable("sqlite", err)
	}
	defer rows.Close()

	var out []store.VolumeRow
	for rows.Next() {
		var r store.VolumeRow
		if err := rows.Scan(&r.Symbol, &r.AvgDailyVolume); err != nil {
			return nil, errors.Wrap(err, "scan volume row")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TopReturns implements store.Store.
func (s *Store) TopReturns(ctx context.Context, start, end time.Time, topN int) ([]store.ReturnRow, error) {
	if err := store.ValidateRange(start, end); err != nil {
		return nil, err
	}
	if err := store.ValidatePositive("topN", topN); err != nil {
		return nil, err
	}
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	const q = `
	WITH period_boundaries AS (
		SELECT ticker_id,
		       MIN(timestamp) AS first_ts,
		       MAX(timestamp) AS last_ts
		FROM prices
		WHERE timestamp BETWEEN ? AND ?
		GROUP BY ticker_id
	),
	start_prices AS (
		SELECT p.ticker_id, p.open AS start_price
		FROM prices p
		JOIN period_boundaries pb ON p.ticker_id = pb.ticker_id AND p.timestamp = pb.first_ts
	),
	end_prices AS (
		SELECT p.ticker_id, p.close AS end_price
		FROM prices p
		JOIN period_boundaries pb ON p.ticker_id = pb.ticker_id AND p.timestamp = pb.last_ts
	)
	SELECT t.symbol,
	       ((e.end_price - s.start_price) / s.start_price) * 100 AS return_pct
	FROM tickers t
	JOIN start_prices s ON t.ticker_id = s.ticker_id
	JOIN end_prices e ON t.ticker_id = e.ticker_id
	WHERE s.start_price <> 0`

	rows, err := db.QueryContext(ctx, q, start.UTC().Format(timeLayout), end.UTC().Format(timeLayout))
	if err != nil {
		return nil, errors.NewBackendUnavailable("sqlite", err)
	}
	defer rows.Close()

	var out []store.ReturnRow
	for rows.Next() {
		var r store.ReturnRow
		if err := rows.Scan(&r.Symbol, &r.ReturnPct); err != nil {
			return nil, errors.Wrap(err, "scan return row")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return store.RankReturns(out, topN), nil
}

// DailyFirstLast implements store.Store. limit == 0 means no cap.
func (s *Store) DailyFirstLast(ctx context.Context, limit int) ([]store.DailyRow, error) {
	if limit < 0 {
		return nil, errors.NewInvalidArgument("limit", limit, "must not be negative")
	}
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	q := `
	WITH daily_boundaries AS (
		SELECT ticker_id,
		       DATE(timestamp) AS trade_date,
		       MIN(timestamp) AS start_time,
		       MAX(timestamp) AS end_time
		FROM prices
		GROUP BY ticker_id, DATE(timestamp)
	)
	SELECT t.symbol,
	       db.trade_date,
	       p_start.open AS first_trade_price,
	       p_end.close AS last_trade_price
	FROM daily_boundaries db
	JOIN tickers t ON db.ticker_id = t.ticker_id
	JOIN prices p_start ON db.ticker_id = p_start.ticker_id AND p_start.timestamp = db.start_time
	JOIN prices p_end ON db.ticker_id = p_end.ticker_id AND p_end.timestamp = db.end_time
	ORDER BY db.trade_date DESC, t.symbol ASC`

	args := []interface{}{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.NewBackendUnavailable("sqlite", err)
	}
	defer rows.Close()

	var out []store.DailyRow
	for rows.Next() {
		var r store.DailyRow
		if err := rows.Scan(&r.Symbol, &r.Date, &r.FirstTradePrice, &r.LastTradePrice); err != nil {
			return nil, errors.Wrap(err, "scan daily row")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// closesFor fetches (timestamp, close) for one symbol in ascending order.
func (s *Store) closesFor(ctx context.Context, db *sql.DB, symbol string) ([]time.Time, []float64, error) {
	const q = `
	SELECT p.timestamp, p.close
	FROM prices p
	JOIN tickers t ON p.ticker_id = t.ticker_id
	WHERE t.symbol = ?
	ORDER BY p.timestamp ASC`

	rows, err := db.QueryContext(ctx, q, symbol)
	if err != nil {
		return nil, nil, errors.NewBackendUnavailable("sqlite", err)
	}
	defer rows.Close()

	var stamps []time.Time
	var closes []float64
	for rows.Next() {
		var ts string
		var c float64
		if err := rows.Scan(&ts, &c); err != nil {
			return nil, nil, errors.Wrap(err, "scan close")
		}
		parsed, err := time.Parse(timeLayout, ts)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "parse stored timestamp %q", ts)
		}
		stamps = append(stamps, parsed)
		closes = append(closes, c)
	}
	return stamps, closes, rows.Err()
}

// RollingAverage implements store.Store. The windowed arithmetic is shared
// with the columnar backend via the rolling package.
func (s *Store) RollingAverage(ctx context.Context, symbol string, window int) ([]store.RollingAvgRow, error) {
	if err := store.ValidatePositive("windowSize", window); err != nil {
		return nil, err
	}
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	known, err := s.symbolExists(ctx, db, symbol)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, errors.NewTickerNotFound(symbol)
	}

	stamps, closes, err := s.closesFor(ctx, db, symbol)
	if err != nil {
		return nil, err
	}

	avgs := rolling.Averages(closes, window)
	out := make([]store.RollingAvgRow, len(closes))
	for i := range closes {
		out[i] = store.RollingAvgRow{
			Symbol:     symbol,
			Timestamp:  stamps[i],
			Close:      closes[i],
			RollingAvg: avgs[i],
		}
	}
	return out, nil
}

// RollingVolatility implements store.Store.
func (s *Store) RollingVolatility(ctx context.Context, window int) ([]store.VolatilityRow, error) {
	if err := store.ValidatePositive("windowSize", window); err != nil {
		return nil, err
	}
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		"SELECT symbol FROM tickers ORDER BY symbol ASC")
	if err != nil {
		return nil, errors.NewBackendUnavailable("sqlite", err)
	}
	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan symbol")
		}
		symbols = append(symbols, sym)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var out []store.VolatilityRow
	for _, sym := range symbols {
		stamps, closes, err := s.closesFor(ctx, db, sym)
		if err != nil {
			return nil, err
		}
		out = append(out, store.VolatilitySeries(sym, stamps, closes, window)...)
	}
	return out, nil
}

// FootprintBytes returns the database file size.
func (s *Store) FootprintBytes() (int64, error) {
	stat, err := os.Stat(s.path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", s.path, err)
	}
	return stat.Size(), nil
}
