package rankstats

import "math"

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// PopVariance returns the population variance (divides by n, not n-1).
// Rank stability is described over the full window population, so the
// sample correction is never applied here.
func PopVariance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := Mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs))
}

// PopStdDev returns the population standard deviation.
func PopStdDev(xs []float64) float64 {
	return math.Sqrt(PopVariance(xs))
}

// MinPresence is the default presence threshold for a window:
// an app must appear on at least 60% of the window's days.
func MinPresence(windowDays int) int {
	return int(math.Ceil(0.6 * float64(windowDays)))
}

// Round2 rounds to two decimal places.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}
