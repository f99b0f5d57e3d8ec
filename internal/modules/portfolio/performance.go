package portfolio

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quantfolio/internal/domain"
	"github.com/aristath/quantfolio/pkg/formulas"
)

// performanceWindowDays is the history window used for performance metrics.
const performanceWindowDays = 30

// AssetResolver resolves asset IDs to assets.
type AssetResolver interface {
	GetAsset(ctx context.Context, id int64) (domain.Asset, error)
}

// MarketDataProvider supplies daily price history for a symbol.
type MarketDataProvider interface {
	DailyBars(ctx context.Context, symbol string, days int) ([]domain.PriceBar, error)
}

// PerformanceService computes and records portfolio performance snapshots.
type PerformanceService struct {
	repo   *Repository
	assets AssetResolver
	market MarketDataProvider
	log    zerolog.Logger
}

// NewPerformanceService creates a new performance service.
func NewPerformanceService(repo *Repository, assets AssetResolver, market MarketDataProvider, log zerolog.Logger) *PerformanceService {
	return &PerformanceService{
		repo:   repo,
		assets: assets,
		market: market,
		log:    log.With().Str("service", "performance").Logger(),
	}
}

// Calculate computes a portfolio's performance over the trailing window,
// records the snapshot and returns it. Missing holdings or price history
// degrade to an all-zero snapshot rather than an error; only a missing
// portfolio or a failed write errors.
func (s *PerformanceService) Calculate(ctx context.Context, portfolioID int64) (domain.PerformanceMetric, error) {
	if _, err := s.repo.GetPortfolio(ctx, portfolioID); err != nil {
		return domain.PerformanceMetric{}, fmt.Errorf("failed to load portfolio %d: %w", portfolioID, err)
	}

	holdings, err := s.repo.GetHoldings(ctx, portfolioID)
	if err != nil {
		return domain.PerformanceMetric{}, err
	}
	if len(holdings) == 0 {
		s.log.Warn().Int64("portfolio_id", portfolioID).Msg("No holdings, recording empty metric")
		return s.recordEmpty(ctx, portfolioID)
	}

	values := s.dailyValues(ctx, holdings)
	if len(values) < 2 {
		s.log.Warn().Int64("portfolio_id", portfolioID).Msg("Insufficient value history, recording empty metric")
		return s.recordEmpty(ctx, portfolioID)
	}

	returns := formulas.CalculateReturns(values)
	currentValue := values[len(values)-1]

	since := time.Now().UTC().AddDate(0, 0, -performanceWindowDays)
	trades, err := s.repo.ListTrades(ctx, portfolioID, since)
	if err != nil {
		return domain.PerformanceMetric{}, err
	}

	metric := domain.PerformanceMetric{
		PortfolioID:  portfolioID,
		Timestamp:    time.Now().UTC(),
		TotalReturn:  (currentValue/values[0] - 1) * 100,
		DailyReturn:  returns[len(returns)-1] * 100,
		SharpeRatio:  formulas.SharpeRatio(returns, 0),
		MaxDrawdown:  formulas.MaxDrawdown(values),
		Volatility:   formulas.AnnualizedVolatility(returns),
		WinRate:      tradeWinRate(trades),
		CurrentValue: currentValue,
	}

	if err := s.repo.SetCurrentValue(ctx, portfolioID, currentValue); err != nil {
		return domain.PerformanceMetric{}, err
	}
	return s.repo.AddPerformanceMetric(ctx, metric)
}

// dailyValues builds the portfolio's daily value series by summing
// quantity-weighted closes across holdings. Days where an asset has no bar
// contribute only the assets that do; days with no data at all are dropped.
func (s *PerformanceService) dailyValues(ctx context.Context, holdings []domain.PortfolioAsset) []float64 {
	type series struct {
		quantity float64
		closes   map[string]float64 // keyed by day
	}

	var all []series
	days := make(map[string]struct{})

	for _, h := range holdings {
		asset, err := s.assets.GetAsset(ctx, h.AssetID)
		if err != nil {
			s.log.Warn().Err(err).Int64("asset_id", h.AssetID).Msg("Skipping holding")
			continue
		}
		symbol := asset.YahooSymbol
		if symbol == "" {
			symbol = asset.Symbol
		}

		bars, err := s.market.DailyBars(ctx, symbol, performanceWindowDays)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch price history")
			continue
		}

		closes := make(map[string]float64, len(bars))
		for _, bar := range bars {
			day := bar.Timestamp.UTC().Format("2006-01-02")
			closes[day] = bar.Close
			days[day] = struct{}{}
		}
		all = append(all, series{quantity: h.Quantity, closes: closes})
	}

	sorted := make([]string, 0, len(days))
	for day := range days {
		sorted = append(sorted, day)
	}
	sort.Strings(sorted)

	var values []float64
	for _, day := range sorted {
		total := 0.0
		for _, sr := range all {
			if close, ok := sr.closes[day]; ok {
				total += close * sr.quantity
			}
		}
		if total > 0 {
			values = append(values, total)
		}
	}
	return values
}

func (s *PerformanceService) recordEmpty(ctx context.Context, portfolioID int64) (domain.PerformanceMetric, error) {
	return s.repo.AddPerformanceMetric(ctx, domain.PerformanceMetric{
		PortfolioID: portfolioID,
		Timestamp:   time.Now().UTC(),
	})
}

// tradeWinRate is the percentage of buy/sell round trips closed at a
// profit, pairing each sell with the preceding buy in timestamp order.
func tradeWinRate(trades []domain.Trade) float64 {
	var buyPrice float64
	holding := false
	wins := 0
	closed := 0

	for _, t := range trades {
		switch t.Side {
		case domain.TradeSideBuy:
			buyPrice = t.Price
			holding = true
		case domain.TradeSideSell:
			if holding {
				closed++
				if t.Price > buyPrice {
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
