package colstore

import (
	"context"
	"time"

	"barbench/internal/errors"
	"barbench/internal/store"
)

// Whole-dataset aggregations run as SQL over the partition glob. DuckDB
// reads the Parquet files directly, so there is nothing to refresh between
// Load and query.

// AverageDailyVolume implements store.Store. FLOOR matches the contracted
// truncation for the non-negative volume averages.
func (s *Store) AverageDailyVolume(ctx context.Context) ([]store.VolumeRow, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	ok, err := s.hasPartitions()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	const q = `
	SELECT ticker, CAST(FLOOR(AVG(volume)) AS BIGINT) AS avg_daily_volume
	FROM read_parquet($1)
	GROUP BY ticker
	ORDER BY avg_daily_volume DESC, ticker ASC`

	rows, err := db.QueryContext(ctx, q, s.partitionGlob())
	if err != nil {
		return nil, errors.NewBackendUnavailable("parquet", err)
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

// TopReturns implements store.Store. The SQL extracts each ticker's
// boundary prices inside the range; rounding, ordering and truncation are
// shared with the relational backend via store.RankReturns.
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
	ok, err := s.hasPartitions()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	const q = `
	WITH bounds AS (
		SELECT ticker,
		       arg_min(open, timestamp_ms) AS start_price,
		       arg_max(close, timestamp_ms) AS end_price
		FROM read_parquet($1)
		WHERE timestamp_ms BETWEEN $2 AND $3
		GROUP BY ticker
	)
	SELECT ticker,
	       ((end_price - start_price) / start_price) * 100 AS return_pct
	FROM bounds
	WHERE start_price <> 0`

	rows, err := db.QueryContext(ctx, q, s.partitionGlob(), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, errors.NewBackendUnavailable("parquet", err)
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

// DailyFirstLast implements store.Store. Timestamps are stored as naive
// UTC milliseconds, so the UTC calendar date is the bar's own date.
func (s *Store) DailyFirstLast(ctx context.Context, limit int) ([]store.DailyRow, error) {
	if limit < 0 {
		return nil, errors.NewInvalidArgument("limit", limit, "must not be negative")
	}
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	ok, err := s.hasPartitions()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	q := `
	WITH days AS (
		SELECT ticker,
		       strftime(epoch_ms(timestamp_ms), '%Y-%m-%d') AS trade_date,
		       arg_min(open, timestamp_ms) AS first_trade_price,
		       arg_max(close, timestamp_ms) AS last_trade_price
		FROM read_parquet($1)
		GROUP BY ticker, trade_date
	)
	SELECT ticker, trade_date, first_trade_price, last_trade_price
	FROM days
	ORDER BY trade_date DESC, ticker ASC`

	args := []interface{}{s.partitionGlob()}
	if limit > 0 {
		q += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.NewBackendUnavailable("parquet", err)
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
