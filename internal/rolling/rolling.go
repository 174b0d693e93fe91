// Package rolling implements the trailing-window statistics used by both
// storage backends. Keeping the arithmetic in one place guarantees the
// relational and columnar paths produce identical windowed results.
package rolling

import "math"

// Averages computes the trailing simple moving average of values over a
// window of the given size, inclusive of the current element. For the
// first window-1 elements the average expands over however many elements
// are available, so out[0] == values[0] and out[k] for k < window-1 is the
// mean of values[0..k].
//
// The returned slice has the same length as the input. window must be
// positive; callers validate before reaching this package.
func Averages(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		n := i + 1
		if n > window {
			sum -= values[i-window]
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}

// Returns computes percentage returns between consecutive closes:
// ret[i] = (closes[i+1] - closes[i]) / closes[i]. The result has one fewer
// element than the input; the first bar of a series has no return.
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	rets := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		rets[i-1] = (closes[i] - closes[i-1]) / closes[i-1]
	}
	return rets
}

// StdDevs computes the trailing sample standard deviation over a window of
// exactly `window` consecutive values. Entries are invalid (ok[i] == false)
// until window values are available ending at i. Sample variance divides
// by n-1.
func StdDevs(values []float64, window int) (out []float64, ok []bool) {
	out = make([]float64, len(values))
	ok = make([]bool, len(values))
	if window < 2 {
		// A single-value window has no sample deviation.
		return out, ok
	}

	for i := window - 1; i < len(values); i++ {
		w := values[i-window+1 : i+1]

		var sum float64
		for _, v := range w {
			sum += v
		}
		mean := sum / float64(window)

		var ss float64
		for _, v := range w {
			d := v - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(window-1))
		ok[i] = true
	}
	return out, ok
}
