// Package signals converts OHLCV series and a parameter set into composite
// oscillator values with dynamic bounds and discrete buy/hold/sell signals.
package signals

import (
	"encoding/json"
	"fmt"
)

// Weights blends the four indicator components into the daily and weekly
// composites. The eight weights always sum to 2.0 (1.0 per composite).
type Weights struct {
	MACD             float64 `json:"macd_weight"`
	RSI              float64 `json:"rsi_weight"`
	Stoch            float64 `json:"stoch_weight"`
	Complexity       float64 `json:"complexity_weight"`
	WeeklyMACD       float64 `json:"weekly_macd_weight"`
	WeeklyRSI        float64 `json:"weekly_rsi_weight"`
	WeeklyStoch      float64 `json:"weekly_stoch_weight"`
	WeeklyComplexity float64 `json:"weekly_complexity_weight"`
}

// Parameters is a strategy's full signal parameter set. It is replaced
// wholesale after each optimization run and is immutable once attached to a
// completed backtest.
type Parameters struct {
	PercentIncreaseBuy  float64 `json:"percent_increase_buy"`
	PercentDecreaseSell float64 `json:"percent_decrease_sell"`
	SellDownLim         float64 `json:"sell_down_lim"`
	SellRollingStd      int     `json:"sell_rolling_std"`
	BuyUpLim            float64 `json:"buy_up_lim"`
	BuyRollingStd       int     `json:"buy_rolling_std"`
	MACDFast            int     `json:"macd_fast"`
	MACDSlow            int     `json:"macd_slow"`
	MACDSignal          int     `json:"macd_signal"`
	RSIPeriod           int     `json:"rsi_period"`
	StochKPeriod        int     `json:"stochastic_k_period"`
	StochDPeriod        int     `json:"stochastic_d_period"`
	FractalWindow       int     `json:"fractal_window"`
	FractalLags         []int   `json:"fractal_lags"`
	Reactivity          float64 `json:"reactivity"`
	Weights             Weights `json:"weights"`
}

// FractalWindowChoices are the allowed values for FractalWindow.
var FractalWindowChoices = []int{50, 100, 150, 200}

// FractalLagsFor returns the lag offsets used by the fractal complexity
// measure for a given window size.
func FractalLagsFor(window int) []int {
	switch {
	case window <= 50:
		return []int{5, 10, 20}
	case window <= 100:
		return []int{10, 20, 40}
	default:
		return []int{15, 30, 60}
	}
}

// Default returns the default parameter set used before any optimization has
// run for a strategy.
func Default() Parameters {
	return Parameters{
		PercentIncreaseBuy:  0.02,
		PercentDecreaseSell: 0.02,
		SellDownLim:         2.0,
		SellRollingStd:      20,
		BuyUpLim:            -2.0,
		BuyRollingStd:       20,
		MACDFast:            12,
		MACDSlow:            26,
		MACDSignal:          9,
		RSIPeriod:           14,
		StochKPeriod:        14,
		StochDPeriod:        3,
		FractalWindow:       100,
		FractalLags:         FractalLagsFor(100),
		Reactivity:          1.0,
		Weights:             WeightPresets()[0],
	}
}

// WeightPresets returns the discrete weight bundles the optimizer chooses
// between. Each bundle keeps the daily and weekly weights summing to 1.0.
func WeightPresets() []Weights {
	return []Weights{
		{
			MACD: 0.4, RSI: 0.3, Stoch: 0.2, Complexity: 0.1,
			WeeklyMACD: 0.25, WeeklyRSI: 0.25, WeeklyStoch: 0.25, WeeklyComplexity: 0.25,
		},
		{
			MACD: 0.3, RSI: 0.4, Stoch: 0.2, Complexity: 0.1,
			WeeklyMACD: 0.2, WeeklyRSI: 0.4, WeeklyStoch: 0.2, WeeklyComplexity: 0.2,
		},
		{
			MACD: 0.2, RSI: 0.3, Stoch: 0.4, Complexity: 0.1,
			WeeklyMACD: 0.3, WeeklyRSI: 0.2, WeeklyStoch: 0.3, WeeklyComplexity: 0.2,
		},
	}
}

// Validate checks structural constraints on the parameter set.
func (p Parameters) Validate() error {
	if p.MACDFast <= 0 || p.MACDSlow <= 0 || p.MACDSignal <= 0 {
		return fmt.Errorf("macd periods must be positive")
	}
	if p.MACDFast >= p.MACDSlow {
		return fmt.Errorf("macd_fast (%d) must be less than macd_slow (%d)", p.MACDFast, p.MACDSlow)
	}
	if p.RSIPeriod <= 1 {
		return fmt.Errorf("rsi_period must be greater than 1")
	}
	if p.StochKPeriod <= 0 || p.StochDPeriod <= 0 {
		return fmt.Errorf("stochastic periods must be positive")
	}
	if p.BuyRollingStd < 2 || p.SellRollingStd < 2 {
		return fmt.Errorf("rolling std windows must be at least 2")
	}
	if p.FractalWindow <= 0 {
		return fmt.Errorf("fractal_window must be positive")
	}
	if p.Reactivity <= 0 {
		return fmt.Errorf("reactivity must be positive")
	}
	return nil
}

// MaxWindow returns the largest rolling window the parameter set requires.
// Bars inside this warm-up window never emit a signal.
func (p Parameters) MaxWindow() int {
	maxWin := p.MACDSlow + p.MACDSignal
	for _, w := range []int{
		p.RSIPeriod + 1,
		p.StochKPeriod + p.StochDPeriod,
		p.FractalWindow,
		p.BuyRollingStd,
		p.SellRollingStd,
	} {
		if w > maxWin {
			maxWin = w
		}
	}
	return maxWin
}

// ParseParameters decodes a JSON-encoded parameter set, deriving fractal lags
// from the window when they are absent.
func ParseParameters(data string) (Parameters, error) {
	if data == "" || data == "{}" {
		return Default(), nil
	}

	var p Parameters
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return Parameters{}, fmt.Errorf("failed to parse strategy parameters: %w", err)
	}
	if len(p.FractalLags) == 0 {
		p.FractalLags = FractalLagsFor(p.FractalWindow)
	}
	return p, nil
}

// Encode serializes the parameter set to JSON for persistence.
func (p Parameters) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode parameters: %w", err)
	}
	return string(data), nil
}
