// Package backtest replays signal series over price data with a
// single-asset, fully-invested-or-flat position model and derives
// performance metrics from the resulting value series.
package backtest

import (
	"github.com/rs/zerolog"

	"github.com/aristath/quantfolio/internal/domain"
	"github.com/aristath/quantfolio/internal/modules/signals"
	"github.com/aristath/quantfolio/pkg/formulas"
)

// InitialCapital is the fixed starting capital of every simulation.
const InitialCapital = 10000.0

// Metrics are the performance metrics of one backtest evaluation.
// Return and drawdown values are percentages.
type Metrics struct {
	SharpeRatio float64 `json:"sharpe_ratio"`
	TotalReturn float64 `json:"total_return"`
	MaxDrawdown float64 `json:"max_drawdown"`
	WinRate     float64 `json:"win_rate"`
}

// TradeRecord is one simulated fill inside a backtest.
type TradeRecord struct {
	Side   domain.TradeSide `json:"side"`
	Price  float64          `json:"price"`
	Shares float64          `json:"shares"`
	Bar    int              `json:"bar"`
}

// Result is the outcome of one backtest evaluation. It is ephemeral: only
// the best trial of an optimization run survives persistence.
type Result struct {
	Metrics     Metrics       `json:"metrics"`
	Trades      []TradeRecord `json:"trades"`
	ValueSeries []float64     `json:"-"`
}

// Engine runs backtest simulations.
type Engine struct {
	generator *signals.Generator
	log       zerolog.Logger
}

// NewEngine creates a new backtest engine.
func NewEngine(generator *signals.Generator, log zerolog.Logger) *Engine {
	return &Engine{
		generator: generator,
		log:       log.With().Str("component", "backtest").Logger(),
	}
}

// Run generates signals for the price series and simulates trading them.
//
// The position model is fully invested or fully in cash: a buy signal while
// flat converts all cash to shares at that bar's close, a sell signal while
// long converts all shares back to cash. No leverage, shorting, slippage or
// fees.
//
// Degenerate input (fewer than 2 bars, zero variance) yields all-zero
// metrics rather than an error, so the optimizer never sees undefined
// losses. The only error path is an invalid parameter set.
func (e *Engine) Run(bars []domain.PriceBar, params signals.Parameters) (Result, error) {
	series, err := e.generator.Generate(bars, params)
	if err != nil {
		return Result{}, err
	}

	cash := InitialCapital
	position := 0.0
	var values []float64
	var trades []TradeRecord

	for i := 1; i < len(series); i++ {
		price := bars[i].Close

		switch {
		case series[i].Signal == signals.SignalBuy && position == 0 && price > 0:
			shares := cash / price
			position = shares
			cash = 0
			trades = append(trades, TradeRecord{Side: domain.TradeSideBuy, Price: price, Shares: shares, Bar: i})

		case series[i].Signal == signals.SignalSell && position > 0:
			cash = position * price
			trades = append(trades, TradeRecord{Side: domain.TradeSideSell, Price: price, Shares: position, Bar: i})
			position = 0
		}

		values = append(values, cash+position*price)
	}

	if len(values) < 2 {
		return Result{ValueSeries: values}, nil
	}

	returns := formulas.CalculateReturns(values)

	metrics := Metrics{
		TotalReturn: (values[len(values)-1]/InitialCapital - 1) * 100,
		SharpeRatio: formulas.SharpeRatio(returns, 0),
		MaxDrawdown: formulas.MaxDrawdown(values),
		WinRate:     winRate(trades),
	}

	return Result{
		Metrics:     metrics,
		Trades:      trades,
		ValueSeries: values,
	}, nil
}

// winRate is the fraction of round-trip buy/sell pairs closed at a profit,
// as a percentage. Pairs are matched in trade order (FIFO with a single
// position); an open position at the end of the series is ignored.
func winRate(trades []TradeRecord) float64 {
	wins := 0
	closed := 0
	var buyPrice float64
	holding := false

	for _, trade := range trades {
		switch trade.Side {
		case domain.TradeSideBuy:
			buyPrice = trade.Price
			holding = true
		case domain.TradeSideSell:
			if holding {
				closed++
				if trade.Price > buyPrice {
					wins++
				}
				holding = false
			}
		}
	}

	if closed == 0 {
		return 0
	}
	return float64(wins) / float64(closed) * 100
}
