// Package formulas provides pure numeric functions shared by the analytical
// engines: descriptive statistics, return series helpers and the
// risk/performance ratios persisted as strategy and portfolio metrics.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the annualization factor for daily-equivalent bars.
const TradingDaysPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the sample variance of a slice of float64 values
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// Correlation calculates the Pearson correlation coefficient between two datasets
func Correlation(x, y []float64) float64 {
	if len(x) == 0 || len(y) == 0 || len(x) != len(y) {
		return 0
	}
	return stat.Correlation(x, y, nil)
}

// CalculateReturns converts a value series to simple percentage returns.
// Returns[i] = (Value[i+1] - Value[i]) / Value[i]
func CalculateReturns(values []float64) []float64 {
	if len(values) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 {
			returns[i-1] = (values[i] - values[i-1]) / values[i-1]
		}
	}

	return returns
}

// RollingMean computes the trailing mean over a fixed window. Entries before
// the window is full are NaN, as are entries whose window spans NaN inputs;
// the mean is recomputed per window so an undefined prefix stops mattering
// once the window has moved past it.
func RollingMean(data []float64, window int) []float64 {
	out := nanSlice(len(data))
	if window <= 0 || len(data) < window {
		return out
	}

	for i := window - 1; i < len(data); i++ {
		out[i] = stat.Mean(data[i-window+1:i+1], nil)
	}
	return out
}

// RollingStdDev computes the trailing sample standard deviation over a fixed
// window. Entries before the window is full are NaN.
func RollingStdDev(data []float64, window int) []float64 {
	out := nanSlice(len(data))
	if window < 2 || len(data) < window {
		return out
	}

	for i := window - 1; i < len(data); i++ {
		out[i] = stat.StdDev(data[i-window+1:i+1], nil)
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
