// Package rebalancing drives portfolio holdings back toward their target
// allocations with a capped, prioritized trade list.
package rebalancing

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quantfolio/internal/domain"
	"github.com/aristath/quantfolio/internal/tasks"
)

const (
	// rebalanceThreshold is the allocation deviation beyond which a
	// portfolio is considered out of balance.
	rebalanceThreshold = 0.05

	// minTradeShares drops dust trades from the plan.
	minTradeShares = 1e-4
)

// PortfolioStore is the portfolio persistence the rebalancer needs.
type PortfolioStore interface {
	GetPortfolio(ctx context.Context, id int64) (domain.Portfolio, error)
	GetHoldings(ctx context.Context, portfolioID int64) ([]domain.PortfolioAsset, error)
	SetHoldingPrice(ctx context.Context, portfolioID, assetID int64, price float64) error
	SetHoldingAllocation(ctx context.Context, portfolioID, assetID int64, allocation float64) error
	SetHoldingQuantity(ctx context.Context, portfolioID, assetID int64, quantity float64, rebalancedAt time.Time) error
	AddTrade(ctx context.Context, t domain.Trade) (int64, error)
	SetTradeStatus(ctx context.Context, id int64, status domain.TradeStatus, orderID string) error
}

// AssetResolver resolves asset IDs to assets.
type AssetResolver interface {
	GetAsset(ctx context.Context, id int64) (domain.Asset, error)
}

// QuoteProvider supplies current market prices for a set of symbols.
type QuoteProvider interface {
	CurrentPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// Broker executes market orders and returns the broker-side order ID.
type Broker interface {
	SubmitOrder(ctx context.Context, symbol string, side domain.TradeSide, quantity, price float64) (string, error)
}

// PerformanceCalculator recomputes a portfolio's performance snapshot.
type PerformanceCalculator interface {
	Calculate(ctx context.Context, portfolioID int64) (domain.PerformanceMetric, error)
}

// Request describes one rebalance run. MaxTrades and TradeLimitPct are
// optional caps: MaxTrades truncates the prioritized trade list and
// TradeLimitPct bounds the cumulative traded value as a percentage of the
// portfolio.
type Request struct {
	PortfolioID   int64   `json:"portfolio_id"`
	MaxTrades     int     `json:"max_trades,omitempty"`
	TradeLimitPct float64 `json:"trade_limit_pct,omitempty"`
	TaskID        string  `json:"-"`
}

// plannedTrade is one trade in the rebalance plan. Shares and Value are
// signed: positive buys, negative sells.
type plannedTrade struct {
	assetID int64
	symbol  string
	price   float64
	shares  float64
	value   float64
}

// ExecutedTrade reports one submitted trade.
type ExecutedTrade struct {
	TradeID  int64              `json:"trade_id"`
	AssetID  int64              `json:"asset_id"`
	Symbol   string             `json:"symbol"`
	Side     domain.TradeSide   `json:"side"`
	Quantity float64            `json:"quantity"`
	Price    float64            `json:"price"`
	Status   domain.TradeStatus `json:"status"`
}

// Result is the outcome of one rebalance run.
type Result struct {
	PortfolioID    int64           `json:"portfolio_id"`
	TradesExecuted int             `json:"trades_executed"`
	TotalValue     float64         `json:"total_value"`
	Trades         []ExecutedTrade `json:"trades"`
	Complete       bool            `json:"rebalance_complete"`
}

// Service rebalances portfolios toward their target allocations.
type Service struct {
	portfolios  PortfolioStore
	assets      AssetResolver
	quotes      QuoteProvider
	broker      Broker
	performance PerformanceCalculator
	tasks       *tasks.Store
	log         zerolog.Logger
}

// NewService creates a new rebalancing service.
func NewService(portfolios PortfolioStore, assets AssetResolver, quotes QuoteProvider, broker Broker, performance PerformanceCalculator, taskStore *tasks.Store, log zerolog.Logger) *Service {
	return &Service{
		portfolios:  portfolios,
		assets:      assets,
		quotes:      quotes,
		broker:      broker,
		performance: performance,
		tasks:       taskStore,
		log:         log.With().Str("service", "rebalancing").Logger(),
	}
}

// NeedsRebalance reports whether any holding's allocation deviates from its
// target by more than the threshold, along with the maximum deviation as a
// percentage. Checking also refreshes the stored current allocations.
// Portfolios without holdings or value never need rebalancing.
func (s *Service) NeedsRebalance(ctx context.Context, portfolioID int64) (bool, float64, error) {
	if _, err := s.portfolios.GetPortfolio(ctx, portfolioID); err != nil {
		return false, 0, fmt.Errorf("failed to load portfolio %d: %w", portfolioID, err)
	}

	holdings, err := s.portfolios.GetHoldings(ctx, portfolioID)
	if err != nil {
		return false, 0, err
	}
	if len(holdings) == 0 {
		return false, 0, nil
	}

	prices, symbols, err := s.fetchPrices(ctx, holdings)
	if err != nil {
		return false, 0, err
	}

	totalValue := 0.0
	values := make(map[int64]float64, len(holdings))
	for _, h := range holdings {
		price, ok := prices[symbols[h.AssetID]]
		if !ok {
			continue
		}
		value := h.Quantity * price
		values[h.AssetID] = value
		totalValue += value
	}
	if totalValue == 0 {
		s.log.Warn().Int64("portfolio_id", portfolioID).Msg("Portfolio has zero value")
		return false, 0, nil
	}

	maxDeviation := 0.0
	for _, h := range holdings {
		value, ok := values[h.AssetID]
		if !ok {
			continue
		}
		current := value / totalValue
		if err := s.portfolios.SetHoldingAllocation(ctx, portfolioID, h.AssetID, current); err != nil {
			return false, 0, err
		}
		deviation := math.Abs(current - h.TargetAllocation)
		if deviation > maxDeviation {
			maxDeviation = deviation
		}
	}

	return maxDeviation > rebalanceThreshold, maxDeviation * 100, nil
}

// Rebalance plans and executes the trades that bring a portfolio back to
// its target allocations. When a task ID is given the run's status is
// mirrored into the task store.
func (s *Service) Rebalance(ctx context.Context, req Request) (Result, error) {
	if req.TaskID != "" {
		s.tasks.SetRunning(req.TaskID)
	}

	result, err := s.rebalance(ctx, req)
	if req.TaskID != "" {
		if err != nil {
			s.tasks.Fail(req.TaskID, err.Error())
		} else {
			s.tasks.Complete(req.TaskID, result)
		}
	}
	return result, err
}

func (s *Service) rebalance(ctx context.Context, req Request) (Result, error) {
	if _, err := s.portfolios.GetPortfolio(ctx, req.PortfolioID); err != nil {
		return Result{}, fmt.Errorf("failed to load portfolio %d: %w", req.PortfolioID, err)
	}

	holdings, err := s.portfolios.GetHoldings(ctx, req.PortfolioID)
	if err != nil {
		return Result{}, err
	}
	if len(holdings) == 0 {
		return Result{}, fmt.Errorf("portfolio %d has no holdings", req.PortfolioID)
	}

	s.progress(req.TaskID, 0.2)

	prices, symbols, err := s.fetchPrices(ctx, holdings)
	if err != nil {
		return Result{}, err
	}

	s.progress(req.TaskID, 0.3)

	totalValue := 0.0
	values := make(map[int64]float64, len(holdings))
	for _, h := range holdings {
		price, ok := prices[symbols[h.AssetID]]
		if !ok {
			continue
		}
		value := h.Quantity * price
		values[h.AssetID] = value
		totalValue += value

		if err := s.portfolios.SetHoldingPrice(ctx, req.PortfolioID, h.AssetID, price); err != nil {
			return Result{}, err
		}
	}
	if totalValue == 0 {
		return Result{}, fmt.Errorf("portfolio %d has zero value", req.PortfolioID)
	}

	s.progress(req.TaskID, 0.4)

	plan := s.planTrades(ctx, req.PortfolioID, holdings, values, prices, symbols, totalValue)
	plan = applyCaps(plan, req.MaxTrades, req.TradeLimitPct, totalValue)

	s.progress(req.TaskID, 0.7)

	executed, err := s.executeTrades(ctx, req.PortfolioID, holdings, plan)
	if err != nil {
		return Result{}, err
	}

	s.progress(req.TaskID, 0.9)

	if _, err := s.performance.Calculate(ctx, req.PortfolioID); err != nil {
		s.log.Warn().Err(err).Int64("portfolio_id", req.PortfolioID).Msg("Failed to refresh performance after rebalance")
	}

	s.log.Info().
		Int64("portfolio_id", req.PortfolioID).
		Int("trades", len(executed)).
		Float64("total_value", totalValue).
		Msg("Rebalance completed")

	return Result{
		PortfolioID:    req.PortfolioID,
		TradesExecuted: len(executed),
		TotalValue:     totalValue,
		Trades:         executed,
		Complete:       true,
	}, nil
}

// planTrades computes the signed dollar gap of every priced holding and
// sorts the resulting trades by absolute value, largest first.
func (s *Service) planTrades(ctx context.Context, portfolioID int64, holdings []domain.PortfolioAsset, values map[int64]float64, prices map[string]float64, symbols map[int64]string, totalValue float64) []plannedTrade {
	var plan []plannedTrade

	for _, h := range holdings {
		value, ok := values[h.AssetID]
		if !ok {
			continue
		}
		current := value / totalValue
		if err := s.portfolios.SetHoldingAllocation(ctx, portfolioID, h.AssetID, current); err != nil {
			s.log.Warn().Err(err).Int64("asset_id", h.AssetID).Msg("Failed to update allocation")
		}

		diff := totalValue*h.TargetAllocation - value
		if diff == 0 {
			continue
		}
		price := prices[symbols[h.AssetID]]
		plan = append(plan, plannedTrade{
			assetID: h.AssetID,
			symbol:  symbols[h.AssetID],
			price:   price,
			shares:  diff / price,
			value:   diff,
		})
	}

	sort.SliceStable(plan, func(i, j int) bool {
		return math.Abs(plan[i].value) > math.Abs(plan[j].value)
	})
	return plan
}

// applyCaps truncates the plan to maxTrades and then bounds cumulative
// traded value to tradeLimitPct of the portfolio. A trade that crosses the
// limit is scaled down proportionally and ends the plan.
func applyCaps(plan []plannedTrade, maxTrades int, tradeLimitPct, totalValue float64) []plannedTrade {
	if maxTrades > 0 && len(plan) > maxTrades {
		plan = plan[:maxTrades]
	}

	if tradeLimitPct <= 0 {
		return plan
	}

	maxValue := totalValue * tradeLimitPct / 100
	var limited []plannedTrade
	cumulative := 0.0

	for _, trade := range plan {
		abs := math.Abs(trade.value)
		if cumulative+abs <= maxValue {
			limited = append(limited, trade)
			cumulative += abs
			continue
		}

		remaining := maxValue - cumulative
		if remaining > 0 {
			ratio := remaining / abs
			trade.shares *= ratio
			trade.value *= ratio
			limited = append(limited, trade)
		}
		break
	}
	return limited
}

// executeTrades records each planned trade, submits it to the broker and
// applies the fill to the holding. Dust trades are skipped; a failed broker
// submission marks the trade failed and leaves the holding untouched.
func (s *Service) executeTrades(ctx context.Context, portfolioID int64, holdings []domain.PortfolioAsset, plan []plannedTrade) ([]ExecutedTrade, error) {
	quantities := make(map[int64]float64, len(holdings))
	for _, h := range holdings {
		quantities[h.AssetID] = h.Quantity
	}

	var executed []ExecutedTrade
	now := time.Now().UTC()

	for _, trade := range plan {
		if math.Abs(trade.shares) < minTradeShares {
			continue
		}

		side := domain.TradeSideBuy
		if trade.shares < 0 {
			side = domain.TradeSideSell
		}

		tradeID, err := s.portfolios.AddTrade(ctx, domain.Trade{
			PortfolioID: portfolioID,
			AssetID:     trade.assetID,
			Timestamp:   now,
			OrderType:   "market",
			Side:        side,
			Quantity:    math.Abs(trade.shares),
			Price:       trade.price,
			Status:      domain.TradeStatusPending,
			Notes:       "Auto-rebalance",
		})
		if err != nil {
			return nil, err
		}

		orderID, err := s.broker.SubmitOrder(ctx, trade.symbol, side, math.Abs(trade.shares), trade.price)
		if err != nil {
			s.log.Error().Err(err).Str("symbol", trade.symbol).Msg("Broker rejected order")
			if err := s.portfolios.SetTradeStatus(ctx, tradeID, domain.TradeStatusFailed, ""); err != nil {
				return nil, err
			}
			executed = append(executed, ExecutedTrade{
				TradeID: tradeID, AssetID: trade.assetID, Symbol: trade.symbol,
				Side: side, Quantity: math.Abs(trade.shares), Price: trade.price,
				Status: domain.TradeStatusFailed,
			})
			continue
		}

		newQuantity := quantities[trade.assetID] + trade.shares
		if newQuantity < 0 {
			newQuantity = 0
		}
		quantities[trade.assetID] = newQuantity

		if err := s.portfolios.SetHoldingQuantity(ctx, portfolioID, trade.assetID, newQuantity, now); err != nil {
			return nil, err
		}
		if err := s.portfolios.SetTradeStatus(ctx, tradeID, domain.TradeStatusFilled, orderID); err != nil {
			return nil, err
		}

		executed = append(executed, ExecutedTrade{
			TradeID: tradeID, AssetID: trade.assetID, Symbol: trade.symbol,
			Side: side, Quantity: math.Abs(trade.shares), Price: trade.price,
			Status: domain.TradeStatusFilled,
		})
	}
	return executed, nil
}

// fetchPrices resolves every holding's symbol and fetches current quotes.
func (s *Service) fetchPrices(ctx context.Context, holdings []domain.PortfolioAsset) (map[string]float64, map[int64]string, error) {
	symbols := make(map[int64]string, len(holdings))
	var list []string

	for _, h := range holdings {
		asset, err := s.assets.GetAsset(ctx, h.AssetID)
		if err != nil {
			s.log.Warn().Err(err).Int64("asset_id", h.AssetID).Msg("Skipping holding with unknown asset")
			continue
		}
		symbol := asset.YahooSymbol
		if symbol == "" {
			symbol = asset.Symbol
		}
		symbols[h.AssetID] = symbol
		list = append(list, symbol)
	}
	if len(list) == 0 {
		return nil, nil, fmt.Errorf("no resolvable symbols in portfolio")
	}

	prices, err := s.quotes.CurrentPrices(ctx, list)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch current prices: %w", err)
	}
	return prices, symbols, nil
}

func (s *Service) progress(taskID string, p float64) {
	if taskID != "" {
		s.tasks.SetProgress(taskID, p)
	}
}
