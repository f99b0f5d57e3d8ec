package formulas

import (
	"math"
)

// SharpeRatio calculates the annualized Sharpe ratio from periodic returns.
//
// Formula: mean(excess returns) / stddev(excess returns) * sqrt(252)
//
// The risk-free rate is given as an annual decimal and converted to a
// per-period rate before computing excess returns. Degenerate input
// (fewer than 2 returns, zero variance) yields 0 rather than NaN so that
// downstream consumers never see undefined metrics.
func SharpeRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	rfPerPeriod := math.Pow(1+riskFreeRate, 1.0/TradingDaysPerYear) - 1

	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - rfPerPeriod
	}

	std := StdDev(excess)
	if std == 0 {
		return 0
	}

	return Mean(excess) / std * math.Sqrt(TradingDaysPerYear)
}

// SortinoRatio calculates the annualized Sortino ratio: like Sharpe, but
// penalizing only downside deviation. With fewer than 2 negative excess
// returns there is no meaningful downside deviation and a large positive
// ratio (100) is returned.
func SortinoRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	rfPerPeriod := math.Pow(1+riskFreeRate, 1.0/TradingDaysPerYear) - 1

	excess := make([]float64, len(returns))
	var negative []float64
	for i, r := range returns {
		excess[i] = r - rfPerPeriod
		if excess[i] < 0 {
			negative = append(negative, excess[i])
		}
	}

	if len(negative) < 2 {
		return 100.0
	}

	downside := StdDev(negative)
	if downside == 0 {
		return 0
	}

	return Mean(excess) / downside * math.Sqrt(TradingDaysPerYear)
}

// CalmarRatio calculates the Calmar ratio: annualized return divided by
// maximum drawdown. Returns 0 when the drawdown is zero.
func CalmarRatio(returns, values []float64) float64 {
	if len(returns) < 2 || len(values) < 2 {
		return 0
	}

	annualizedReturn := Mean(returns) * TradingDaysPerYear
	maxDD := MaxDrawdown(values) / 100

	if maxDD == 0 {
		return 0
	}

	return annualizedReturn / maxDD
}

// MaxDrawdown calculates the maximum peak-to-trough decline of a value
// series as a percentage of the running peak.
func MaxDrawdown(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	runningMax := values[0]
	maxDrawdown := 0.0

	for _, v := range values {
		if v > runningMax {
			runningMax = v
		}
		if runningMax > 0 {
			dd := (runningMax - v) / runningMax
			if dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}

	return maxDrawdown * 100
}

// AnnualizedVolatility calculates annualized volatility from periodic
// returns as a percentage.
func AnnualizedVolatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	return StdDev(returns) * math.Sqrt(TradingDaysPerYear) * 100
}

// CAGR calculates the compound annual growth rate of a value series as a
// percentage. periods is the number of bars the series spans.
func CAGR(values []float64, periods int) float64 {
	if len(values) < 2 || periods <= 0 || values[0] <= 0 {
		return 0
	}

	totalReturn := values[len(values)-1] / values[0]
	years := float64(periods) / TradingDaysPerYear
	if years <= 0 || totalReturn <= 0 {
		return 0
	}

	return (math.Pow(totalReturn, 1/years) - 1) * 100
}
