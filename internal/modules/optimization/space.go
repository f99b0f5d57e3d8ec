package optimization

import (
	"math"

	"github.com/aristath/quantfolio/internal/modules/signals"
)

type paramKind int

const (
	kindUniform paramKind = iota
	kindQuantized
	kindChoice
)

// paramDef describes one dimension of the search space. Uniform dimensions
// draw from [low, high], quantized ones additionally snap to multiples of
// step, and choice dimensions store an index into an external option list.
type paramDef struct {
	name    string
	kind    paramKind
	low     float64
	high    float64
	step    float64
	choices int
}

const (
	paramPercentIncreaseBuy  = "percent_increase_buy"
	paramPercentDecreaseSell = "percent_decrease_sell"
	paramSellDownLim         = "sell_down_lim"
	paramSellRollingStd      = "sell_rolling_std"
	paramBuyUpLim            = "buy_up_lim"
	paramBuyRollingStd       = "buy_rolling_std"
	paramMACDFast            = "macd_fast"
	paramMACDSlow            = "macd_slow"
	paramMACDSignal          = "macd_signal"
	paramRSIPeriod           = "rsi_period"
	paramStochasticKPeriod   = "stochastic_k_period"
	paramStochasticDPeriod   = "stochastic_d_period"
	paramFractalWindow       = "fractal_window"
	paramReactivity          = "reactivity"
	paramWeightsIndex        = "weights_index"
)

// searchSpace is the full tunable parameter space. Dimensions whose name
// appears in a request's overrides are excluded before sampling.
func searchSpace() []paramDef {
	return []paramDef{
		{name: paramPercentIncreaseBuy, kind: kindUniform, low: 0.01, high: 0.05},
		{name: paramPercentDecreaseSell, kind: kindUniform, low: 0.01, high: 0.05},
		{name: paramSellDownLim, kind: kindUniform, low: 1.0, high: 3.0},
		{name: paramSellRollingStd, kind: kindQuantized, low: 10, high: 50, step: 5},
		{name: paramBuyUpLim, kind: kindUniform, low: -3.0, high: -1.0},
		{name: paramBuyRollingStd, kind: kindQuantized, low: 10, high: 50, step: 5},
		{name: paramMACDFast, kind: kindQuantized, low: 8, high: 16, step: 1},
		{name: paramMACDSlow, kind: kindQuantized, low: 20, high: 30, step: 1},
		{name: paramMACDSignal, kind: kindQuantized, low: 7, high: 12, step: 1},
		{name: paramRSIPeriod, kind: kindQuantized, low: 10, high: 20, step: 1},
		{name: paramStochasticKPeriod, kind: kindQuantized, low: 10, high: 20, step: 1},
		{name: paramStochasticDPeriod, kind: kindQuantized, low: 2, high: 5, step: 1},
		{name: paramFractalWindow, kind: kindChoice, choices: len(signals.FractalWindowChoices)},
		{name: paramReactivity, kind: kindUniform, low: 0.8, high: 1.2},
		{name: paramWeightsIndex, kind: kindChoice, choices: len(signals.WeightPresets())},
	}
}

// quantize snaps v to the nearest multiple of step within [low, high].
func (d paramDef) quantize(v float64) float64 {
	q := math.Round(v/d.step) * d.step
	return math.Min(d.high, math.Max(d.low, q))
}

// applySample overlays a sampled point onto a base parameter set. Choice
// dimensions are resolved through their option lists, and fractal lags are
// re-derived whenever the window changes.
func applySample(base signals.Parameters, sample map[string]float64) signals.Parameters {
	p := base

	if v, ok := sample[paramPercentIncreaseBuy]; ok {
		p.PercentIncreaseBuy = v
	}
	if v, ok := sample[paramPercentDecreaseSell]; ok {
		p.PercentDecreaseSell = v
	}
	if v, ok := sample[paramSellDownLim]; ok {
		p.SellDownLim = v
	}
	if v, ok := sample[paramSellRollingStd]; ok {
		p.SellRollingStd = int(v)
	}
	if v, ok := sample[paramBuyUpLim]; ok {
		p.BuyUpLim = v
	}
	if v, ok := sample[paramBuyRollingStd]; ok {
		p.BuyRollingStd = int(v)
	}
	if v, ok := sample[paramMACDFast]; ok {
		p.MACDFast = int(v)
	}
	if v, ok := sample[paramMACDSlow]; ok {
		p.MACDSlow = int(v)
	}
	if v, ok := sample[paramMACDSignal]; ok {
		p.MACDSignal = int(v)
	}
	if v, ok := sample[paramRSIPeriod]; ok {
		p.RSIPeriod = int(v)
	}
	if v, ok := sample[paramStochasticKPeriod]; ok {
		p.StochKPeriod = int(v)
	}
	if v, ok := sample[paramStochasticDPeriod]; ok {
		p.StochDPeriod = int(v)
	}
	if v, ok := sample[paramFractalWindow]; ok {
		p.FractalWindow = signals.FractalWindowChoices[int(v)]
		p.FractalLags = signals.FractalLagsFor(p.FractalWindow)
	}
	if v, ok := sample[paramReactivity]; ok {
		p.Reactivity = v
	}
	if v, ok := sample[paramWeightsIndex]; ok {
		p.Weights = signals.WeightPresets()[int(v)]
	}

	return p
}
