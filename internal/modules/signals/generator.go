package signals

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quantfolio/internal/domain"
)

// Signal is the discrete trading signal for one bar.
type Signal int

const (
	SignalSell Signal = -1
	SignalHold Signal = 0
	SignalBuy  Signal = 1
)

// weeklyFactor is the resample factor between the base series and the
// coarser "weekly" composite (7 base bars per weekly bar).
const weeklyFactor = 7

// Point carries the composite values, their dynamic bounds and the resulting
// signal for one bar. Points align 1:1 with the input price bars.
type Point struct {
	Timestamp       time.Time `json:"timestamp"`
	DailyComposite  float64   `json:"daily_composite"`
	DailyUpper      float64   `json:"daily_up_lim"`
	DailyLower      float64   `json:"daily_down_lim"`
	WeeklyComposite float64   `json:"weekly_composite"`
	WeeklyUpper     float64   `json:"weekly_up_lim"`
	WeeklyLower     float64   `json:"weekly_down_lim"`
	Signal          Signal    `json:"signal"`
}

// Series is a signal series aligned 1:1 with a price bar sequence. It is
// derived data, recomputed in full on every evaluation.
type Series []Point

// Generator computes signal series from price bars and parameter sets.
type Generator struct {
	log zerolog.Logger
}

// NewGenerator creates a new signal generator.
func NewGenerator(log zerolog.Logger) *Generator {
	return &Generator{
		log: log.With().Str("component", "signals").Logger(),
	}
}

// Generate computes the daily and weekly composites, their dynamic bounds
// and the per-bar signal for the given price series.
//
// The signal rule is a fold over the series with purely local position
// state: emit buy when the daily composite crosses above its buy bound while
// flat, sell when it crosses below its sell bound while long, hold
// otherwise. Bars inside the warm-up window (NaN composite or bounds) never
// emit a signal.
func (g *Generator) Generate(bars []domain.PriceBar, params Parameters) (Series, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return Series{}, nil
	}

	dailyComposite := composite(bars, params, params.Weights.daily())
	dailyUpper, dailyLower := bounds(dailyComposite, params)

	weeklyBars := resample(bars, weeklyFactor)
	weeklyComposite := composite(weeklyBars, params, params.Weights.weekly())
	weeklyUpper, weeklyLower := bounds(weeklyComposite, params)

	series := make(Series, len(bars))
	long := false

	for i := range bars {
		wi := i / weeklyFactor
		if wi >= len(weeklyBars) {
			wi = len(weeklyBars) - 1
		}

		point := Point{
			Timestamp:       bars[i].Timestamp,
			DailyComposite:  dailyComposite[i],
			DailyUpper:      dailyUpper[i],
			DailyLower:      dailyLower[i],
			WeeklyComposite: weeklyComposite[wi],
			WeeklyUpper:     weeklyUpper[wi],
			WeeklyLower:     weeklyLower[wi],
			Signal:          SignalHold,
		}

		if i > 0 && defined(dailyComposite[i], dailyComposite[i-1]) {
			switch {
			case !long && crossedAbove(dailyComposite, dailyUpper, i):
				point.Signal = SignalBuy
				long = true
			case long && crossedBelow(dailyComposite, dailyLower, i):
				point.Signal = SignalSell
				long = false
			}
		}

		series[i] = point
	}

	return series, nil
}

// crossedAbove reports whether the composite crossed above the bound at
// index i: above now, at or below on the previous bar.
func crossedAbove(comp, bound []float64, i int) bool {
	if !defined(bound[i], bound[i-1]) {
		return false
	}
	return comp[i] > bound[i] && comp[i-1] <= bound[i-1]
}

// crossedBelow reports whether the composite crossed below the bound at
// index i.
func crossedBelow(comp, bound []float64, i int) bool {
	if !defined(bound[i], bound[i-1]) {
		return false
	}
	return comp[i] < bound[i] && comp[i-1] >= bound[i-1]
}

func defined(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}
