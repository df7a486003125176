package indicator

import "math"

// Rolling-window math over float64 slices. NaN marks "not defined yet"
// (warm-up window not filled) and maps to NULL at the DB boundary.

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// sma computes the simple moving average with window n.
func sma(values []float64, n int) []float64 {
	out := nanSlice(len(values))
	if n <= 0 || len(values) < n {
		return out
	}

	var sum float64
	for i, v := range values {
		sum += v
		if i >= n {
			sum -= values[i-n]
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// ema computes the exponential moving average with span n
// (α = 2/(n+1)), seeded with the first value.
func ema(values []float64, n int) []float64 {
	out := nanSlice(len(values))
	if len(values) == 0 {
		return out
	}

	alpha := 2.0 / (float64(n) + 1.0)
	prev := values[0]
	out[0] = prev
	for i := 1; i < len(values); i++ {
		prev = values[i]*alpha + prev*(1-alpha)
		out[i] = prev
	}
	return out
}

// wilder computes Wilder's smoothing (α = 1/n), seeded with the first
// value. Used by RSI.
func wilder(values []float64, n int) []float64 {
	out := nanSlice(len(values))
	if len(values) == 0 {
		return out
	}

	alpha := 1.0 / float64(n)
	prev := values[0]
	out[0] = prev
	for i := 1; i < len(values); i++ {
		prev = values[i]*alpha + prev*(1-alpha)
		out[i] = prev
	}
	return out
}

// rollingMax computes the highest value over the trailing n window.
func rollingMax(values []float64, n int) []float64 {
	out := nanSlice(len(values))
	for i := n - 1; i < len(values); i++ {
		max := values[i]
		for j := i - n + 1; j < i; j++ {
			if values[j] > max {
				max = values[j]
			}
		}
		out[i] = max
	}
	return out
}

// rollingMin computes the lowest value over the trailing n window.
func rollingMin(values []float64, n int) []float64 {
	out := nanSlice(len(values))
	for i := n - 1; i < len(values); i++ {
		min := values[i]
		for j := i - n + 1; j < i; j++ {
			if values[j] < min {
				min = values[j]
			}
		}
		out[i] = min
	}
	return out
}

// rollingStd computes the population standard deviation (ddof = 0)
// over the trailing n window.
func rollingStd(values []float64, n int) []float64 {
	out := nanSlice(len(values))
	if n <= 0 || len(values) < n {
		return out
	}

	for i := n - 1; i < len(values); i++ {
		var sum float64
		for j := i - n + 1; j <= i; j++ {
			sum += values[j]
		}
		mean := sum / float64(n)

		var sq float64
		for j := i - n + 1; j <= i; j++ {
			d := values[j] - mean
			sq += d * d
		}
		out[i] = math.Sqrt(sq / float64(n))
	}
	return out
}

// round4 rounds to 4 decimal places; NaN passes through.
func round4(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return math.Round(v*10000) / 10000
}
