// Package bench executes a fixed battery of equivalent query operations
// against both storage backends and produces a comparison report. Timings
// are illustrative by nature; the contract under test is result
// correctness and the relative ordering of backends, never absolute
// numbers.
package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"barbench/internal/config"
	"barbench/internal/errors"
	"barbench/internal/logging"
	"barbench/internal/store"
)

// Case is one named benchmark query with concrete parameters bound. Run
// returns the result row count so the report can confirm both backends
// produced the same shape.
type Case struct {
	Name string
	Run  func(ctx context.Context, st store.Store) (rows int, err error)
}

// StandardBattery builds one case per facade operation from the configured
// query parameters.
func StandardBattery(q config.QueryConfig) []Case {
	limit := q.DailyLimit
	return []Case{
		{
			Name: "range_query",
			Run: func(ctx context.Context, st store.Store) (int, error) {
				rows, err := st.RangeQuery(ctx, q.Ticker, q.Start, q.End)
				return len(rows), err
			},
		},
		{
			Name: "average_daily_volume",
			Run: func(ctx context.Context, st store.Store) (int, error) {
				rows, err := st.AverageDailyVolume(ctx)
				return len(rows), err
			},
		},
		{
			Name: "top_returns",
			Run: func(ctx context.Context, st store.Store) (int, error) {
				rows, err := st.TopReturns(ctx, q.Start, q.End, q.TopN)
				return len(rows), err
			},
		},
		{
			Name: "daily_first_last",
			Run: func(ctx context.Context, st store.Store) (int, error) {
				rows, err := st.DailyFirstLast(ctx, limit)
				return len(rows), err
			},
		},
		{
			Name: "rolling_average",
			Run: func(ctx context.Context, st store.Store) (int, error) {
				rows, err := st.RollingAverage(ctx, q.Ticker, q.Window)
				return len(rows), err
			},
		},
		{
			Name: "rolling_volatility",
			Run: func(ctx context.Context, st store.Store) (int, error) {
				rows, err := st.RollingVolatility(ctx, q.Window)
				return len(rows), err
			},
		},
	}
}

// Runner executes cases against two backends, sequentially and
// single-threaded: each query runs to completion before the next begins.
type Runner struct {
	a, b       store.Store
	iterations int
	accuracy   float64
}

// NewRunner builds a runner over backend a and backend b.
func NewRunner(a, b store.Store, cfg config.BenchConfig) *Runner {
	return &Runner{
		a:          a,
		b:          b,
		iterations: cfg.Iterations,
		accuracy:   cfg.SketchAccuracy,
	}
}

// Run executes every case against both backends and assembles the report.
// A case whose backend is unavailable is recorded as failed and the run
// continues; any other error aborts the whole run.
func (r *Runner) Run(ctx context.Context, cases []Case) (*Report, error) {
	log := logging.Component("bench")

	report := &Report{
		BackendA:    r.a.Name(),
		BackendB:    r.b.Name(),
		Iterations:  r.iterations,
		GeneratedAt: time.Now().UTC(),
	}

	for _, c := range cases {
		resA, err := r.runBackend(ctx, c, r.a)
		if err != nil {
			return nil, errors.Wrapf(err, "case %s on %s", c.Name, r.a.Name())
		}
		resB, err := r.runBackend(ctx, c, r.b)
		if err != nil {
			return nil, errors.Wrapf(err, "case %s on %s", c.Name, r.b.Name())
		}

		cr := CaseResult{Name: c.Name, A: resA, B: resB}
		cr.Failed = resA.Failed || resB.Failed
		if !cr.Failed {
			cr.Ratio = ratio(resA.MeanMs, resB.MeanMs)
			cr.Summary = speedupSummary(r.a.Name(), resA.MeanMs, r.b.Name(), resB.MeanMs)
			log.Info("case done", "case", c.Name,
				r.a.Name()+"_ms", resA.MeanMs, r.b.Name()+"_ms", resB.MeanMs,
				"rows_a", resA.Rows, "rows_b", resB.Rows,
				"summary", cr.Summary)
		} else {
			log.Warn("case failed", "case", c.Name,
				"error_a", resA.Error, "error_b", resB.Error)
		}
		report.Cases = append(report.Cases, cr)
	}

	report.finish()

	if err := r.footprints(report); err != nil {
		return nil, err
	}
	return report, nil
}

// runBackend times one case against one backend. Per-iteration latencies
// go into a DDSketch so the report can carry p50/p95/p99 alongside the
// mean.
func (r *Runner) runBackend(ctx context.Context, c Case, st store.Store) (BackendResult, error) {
	res := BackendResult{Backend: st.Name()}

	sketch, err := ddsketch.NewDefaultDDSketch(r.accuracy)
	if err != nil {
		return res, errors.Wrap(err, "create sketch")
	}

	var total time.Duration
	for i := 0; i < r.iterations; i++ {
		start := time.Now()
		rows, err := c.Run(ctx, st)
		elapsed := time.Since(start)

		if err != nil {
			if errors.IsBackendUnavailable(err) {
				res.Failed = true
				res.Error = err.Error()
				return res, nil
			}
			return res, err
		}

		res.Rows = rows
		res.Iterations++
		total += elapsed
		if err := sketch.Add(float64(elapsed.Nanoseconds()) / 1e6); err != nil {
			return res, errors.Wrap(err, "record latency")
		}
	}

	res.TotalMs = float64(total.Nanoseconds()) / 1e6
	res.MeanMs = res.TotalMs / float64(res.Iterations)
	if p, err := sketch.GetValueAtQuantile(0.50); err == nil {
		res.P50Ms = p
	}
	if p, err := sketch.GetValueAtQuantile(0.95); err == nil {
		res.P95Ms = p
	}
	if p, err := sketch.GetValueAtQuantile(0.99); err == nil {
		res.P99Ms = p
	}
	return res, nil
}

// footprints records the on-disk size of each backend's persisted dataset.
// Sizes are per-dataset, not per-query.
func (r *Runner) footprints(report *Report) error {
	sizeA, err := r.a.FootprintBytes()
	if err != nil {
		return errors.Wrapf(err, "footprint %s", r.a.Name())
	}
	sizeB, err := r.b.FootprintBytes()
	if err != nil {
		return errors.Wrapf(err, "footprint %s", r.b.Name())
	}

	report.Size = SizeComparison{
		BytesA: sizeA,
		BytesB: sizeB,
	}
	if sizeB > 0 {
		report.Size.Ratio = float64(sizeA) / float64(sizeB)
		report.Size.DiffPct = (float64(sizeA) - float64(sizeB)) / float64(sizeB) * 100
	}
	if sizeA > 0 && sizeB > 0 {
		smaller, factor := r.a.Name(), float64(sizeB)/float64(sizeA)
		if sizeB < sizeA {
			smaller, factor = r.b.Name(), float64(sizeA)/float64(sizeB)
		}
		report.Size.Summary = fmt.Sprintf("%s is %.2fx smaller", smaller, factor)
	}
	return nil
}

// ratio returns meanA / meanB, guarding division by zero.
func ratio(meanA, meanB float64) float64 {
	if meanB == 0 {
		return 0
	}
	return meanA / meanB
}

// speedupSummary labels the faster backend with its factor, consistently
// "X is N.NNx faster".
func speedupSummary(nameA string, meanA float64, nameB string, meanB float64) string {
	if meanA == 0 || meanB == 0 {
		return "n/a"
	}
	if meanB < meanA {
		return fmt.Sprintf("%s is %.2fx faster", nameB, meanA/meanB)
	}
	return fmt.Sprintf("%s is %.2fx faster", nameA, meanB/meanA)
}
