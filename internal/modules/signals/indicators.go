package signals

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/quantfolio/internal/domain"
	"github.com/aristath/quantfolio/pkg/formulas"
)

// componentWeights is the per-composite view of the weight bundle: either the
// daily or the weekly four-tuple.
type componentWeights struct {
	macd       float64
	rsi        float64
	stoch      float64
	complexity float64
}

func (w Weights) daily() componentWeights {
	return componentWeights{macd: w.MACD, rsi: w.RSI, stoch: w.Stoch, complexity: w.Complexity}
}

func (w Weights) weekly() componentWeights {
	return componentWeights{macd: w.WeeklyMACD, rsi: w.WeeklyRSI, stoch: w.WeeklyStoch, complexity: w.WeeklyComplexity}
}

// macdHistogram computes the MACD histogram: EMA(fast)-EMA(slow) smoothed by
// EMA(signal). Warm-up entries are NaN.
func macdHistogram(closes []float64, fast, slow, signal int) []float64 {
	out := nanSeries(len(closes))
	if len(closes) < slow+signal {
		return out
	}

	_, _, hist := talib.Macd(closes, fast, slow, signal)

	// talib zero-fills its lookback region; mark it undefined instead so the
	// warm-up window never contributes to a composite.
	warmup := slow + signal - 2
	for i := warmup; i < len(hist); i++ {
		out[i] = hist[i]
	}
	return out
}

// rollingRSI computes RSI over a simple rolling window of mean gains and
// mean losses: 100 - 100/(1+RS). Warm-up entries are NaN.
func rollingRSI(closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if period < 1 || len(closes) <= period {
		return out
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	var gainSum, lossSum float64
	for i := 1; i < len(closes); i++ {
		gainSum += gains[i]
		lossSum += losses[i]
		if i > period {
			gainSum -= gains[i-period]
			lossSum -= losses[i-period]
		}
		if i >= period {
			meanGain := gainSum / float64(period)
			meanLoss := lossSum / float64(period)
			if meanLoss == 0 {
				out[i] = 100
			} else {
				rs := meanGain / meanLoss
				out[i] = 100 - 100/(1+rs)
			}
		}
	}
	return out
}

// stochasticD computes the %D line of the fast stochastic oscillator.
// Warm-up entries are NaN.
func stochasticD(highs, lows, closes []float64, kPeriod, dPeriod int) []float64 {
	out := nanSeries(len(closes))
	if len(closes) < kPeriod+dPeriod {
		return out
	}

	_, fastD := talib.StochF(highs, lows, closes, kPeriod, dPeriod, talib.SMA)

	warmup := kPeriod + dPeriod - 2
	for i := warmup; i < len(fastD); i++ {
		out[i] = fastD[i]
	}
	return out
}

// fractalComplexity estimates a Hurst-style scaling exponent over a trailing
// window at multiple lag offsets, returning H-0.5 per bar: positive for
// trending series, negative for mean-reverting ones. Warm-up entries are NaN.
func fractalComplexity(closes []float64, window int, lags []int) []float64 {
	out := nanSeries(len(closes))
	if window < 2 || len(closes) < window || len(lags) == 0 {
		return out
	}

	logLags := make([]float64, 0, len(lags))
	logDisps := make([]float64, 0, len(lags))

	for i := window - 1; i < len(closes); i++ {
		segment := closes[i-window+1 : i+1]

		logLags = logLags[:0]
		logDisps = logDisps[:0]
		for _, lag := range lags {
			if lag <= 0 || lag >= window {
				continue
			}
			// Mean absolute displacement at this lag
			var sum float64
			count := 0
			for t := lag; t < window; t++ {
				sum += math.Abs(segment[t] - segment[t-lag])
				count++
			}
			if count == 0 {
				continue
			}
			disp := sum / float64(count)
			if disp > 0 {
				logLags = append(logLags, math.Log(float64(lag)))
				logDisps = append(logDisps, math.Log(disp))
			}
		}

		if len(logLags) < 2 {
			continue
		}

		// Displacement scales as lag^H; the regression slope estimates H.
		_, slope := stat.LinearRegression(logLags, logDisps, nil, false)
		if !math.IsNaN(slope) && !math.IsInf(slope, 0) {
			out[i] = slope - 0.5
		}
	}
	return out
}

// composite blends the normalized indicator components into a single scalar
// per bar. A bar's composite is NaN until every component is defined.
//
// Normalization keeps components on comparable scales: the MACD histogram is
// divided by the close price, RSI and stochastic are centered at 50 and
// scaled to [-0.5, 0.5], and the complexity measure is already centered at 0.
// Absolute scale is immaterial because the signal bounds are derived from the
// composite's own rolling distribution.
func composite(bars []domain.PriceBar, p Parameters, w componentWeights) []float64 {
	n := len(bars)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, bar := range bars {
		closes[i] = bar.Close
		highs[i] = bar.High
		lows[i] = bar.Low
	}

	hist := macdHistogram(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	rsi := rollingRSI(closes, p.RSIPeriod)
	stoch := stochasticD(highs, lows, closes, p.StochKPeriod, p.StochDPeriod)
	complexity := fractalComplexity(closes, p.FractalWindow, p.FractalLags)

	out := nanSeries(n)
	for i := 0; i < n; i++ {
		if math.IsNaN(hist[i]) || math.IsNaN(rsi[i]) || math.IsNaN(stoch[i]) || math.IsNaN(complexity[i]) {
			continue
		}
		macdNorm := 0.0
		if closes[i] != 0 {
			macdNorm = hist[i] / closes[i]
		}
		rsiNorm := (rsi[i] - 50) / 100
		stochNorm := (stoch[i] - 50) / 100

		out[i] = w.macd*macdNorm + w.rsi*rsiNorm + w.stoch*stochNorm + w.complexity*complexity[i]
	}
	return out
}

// bounds computes the dynamic upper (buy) and lower (sell) thresholds of a
// composite series.
//
// Both bounds follow mean - lim*sigma*reactivity over their own rolling
// windows: BuyUpLim is negative (placing the buy bound above the mean) and
// SellDownLim is positive (placing the sell bound below it).
func bounds(comp []float64, p Parameters) (upper, lower []float64) {
	buyMean := formulas.RollingMean(comp, p.BuyRollingStd)
	buyStd := formulas.RollingStdDev(comp, p.BuyRollingStd)
	sellMean := formulas.RollingMean(comp, p.SellRollingStd)
	sellStd := formulas.RollingStdDev(comp, p.SellRollingStd)

	upper = nanSeries(len(comp))
	lower = nanSeries(len(comp))
	for i := range comp {
		if !math.IsNaN(buyMean[i]) && !math.IsNaN(buyStd[i]) {
			upper[i] = buyMean[i] - p.BuyUpLim*buyStd[i]*p.Reactivity
		}
		if !math.IsNaN(sellMean[i]) && !math.IsNaN(sellStd[i]) {
			lower[i] = sellMean[i] - p.SellDownLim*sellStd[i]*p.Reactivity
		}
	}
	return upper, lower
}

// resample aggregates consecutive groups of `factor` bars into single bars
// (weekly resolution when the base series is daily-equivalent).
func resample(bars []domain.PriceBar, factor int) []domain.PriceBar {
	if factor <= 1 || len(bars) == 0 {
		return bars
	}

	out := make([]domain.PriceBar, 0, (len(bars)+factor-1)/factor)
	for start := 0; start < len(bars); start += factor {
		end := start + factor
		if end > len(bars) {
			end = len(bars)
		}
		group := bars[start:end]

		agg := domain.PriceBar{
			Timestamp: group[0].Timestamp,
			Open:      group[0].Open,
			High:      group[0].High,
			Low:       group[0].Low,
			Close:     group[len(group)-1].Close,
		}
		for _, b := range group {
			if b.High > agg.High {
				agg.High = b.High
			}
			if b.Low < agg.Low {
				agg.Low = b.Low
			}
			agg.Volume += b.Volume
		}
		out = append(out, agg)
	}
	return out
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
