package fu

import "math"

func Mse(a, b []float64) float64 {
	var c float64
	for i, x := range a {
		q := x - b[i]
		c += q * q
	}
	return c / float64(len(a))
}

// NanMean averages finite entries only; NaN when none are finite.
func NanMean(a []float64) float64 {
	var c float64
	n := 0
	for _, x := range a {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			c += x
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return c / float64(n)
}

// NanMeanStd returns the mean and population standard deviation of the
// finite entries. Both are NaN when no finite entries exist; the deviation
// is 0 for a single entry.
func NanMeanStd(a []float64) (mean, std float64) {
	mean = NanMean(a)
	if math.IsNaN(mean) {
		return mean, math.NaN()
	}
	var c float64
	n := 0
	for _, x := range a {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			q := x - mean
			c += q * q
			n++
		}
	}
	return mean, math.Sqrt(c / float64(n))
}

func Finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
