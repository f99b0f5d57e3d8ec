// Package yahoo fetches market data from Yahoo Finance.
package yahoo

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/multi"
	"github.com/wnjoon/go-yfinance/pkg/ticker"

	"github.com/aristath/quantfolio/internal/domain"
)

// Client fetches price data through the go-yfinance library.
type Client struct {
	log zerolog.Logger
}

// NewClient creates a new Yahoo Finance client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		log: log.With().Str("client", "yahoo").Logger(),
	}
}

// periodFor maps a day count to the smallest Yahoo history period covering
// it.
func periodFor(days int) string {
	switch {
	case days <= 5:
		return "5d"
	case days <= 30:
		return "1mo"
	case days <= 90:
		return "3mo"
	case days <= 180:
		return "6mo"
	case days <= 365:
		return "1y"
	case days <= 730:
		return "2y"
	default:
		return "max"
	}
}

// DailyBars fetches up to days trailing daily OHLCV bars for a symbol.
func (c *Client) DailyBars(ctx context.Context, symbol string, days int) ([]domain.PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if days <= 0 {
		days = 30
	}

	t, err := ticker.New(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticker for %s: %w", symbol, err)
	}
	defer t.Close()

	bars, err := t.History(models.HistoryParams{
		Period:     periodFor(days),
		Interval:   "1d",
		AutoAdjust: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", symbol, err)
	}

	out := make([]domain.PriceBar, 0, len(bars))
	for _, bar := range bars {
		out = append(out, domain.PriceBar{
			Timestamp: bar.Date,
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			Volume:    float64(bar.Volume),
		})
	}

	// The fetched period rounds up, trim to the requested window.
	if len(out) > days {
		out = out[len(out)-days:]
	}

	c.log.Debug().Str("symbol", symbol).Int("bars", len(out)).Msg("Fetched daily bars")
	return out, nil
}

// CurrentPrices fetches the latest close for each symbol in one batch
// download. Symbols that fail resolve are omitted from the result rather
// than failing the batch.
func (c *Client) CurrentPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	params := models.DefaultDownloadParams()
	params.Symbols = symbols
	params.Period = "5d" // recent window so the last bar is fresh
	params.Interval = "1d"

	result, err := multi.Download(symbols, &params)
	if err != nil {
		return nil, fmt.Errorf("failed to download quotes: %w", err)
	}

	prices := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		if bars, ok := result.Data[symbol]; ok && len(bars) > 0 {
			prices[symbol] = bars[len(bars)-1].Close
			continue
		}
		if err, ok := result.Errors[symbol]; ok {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch quote")
		}
	}
	return prices, nil
}
