// Package domain contains the core entity models shared across modules.
// These map 1:1 to the sqlite tables created by internal/database.
package domain

import "time"

// Asset is a tradable instrument tracked by the system.
type Asset struct {
	ID          int64     `json:"id"`
	Symbol      string    `json:"symbol"`
	Name        string    `json:"name"`
	YahooSymbol string    `json:"yahoo_symbol"` // Symbol used with Yahoo Finance, falls back to Symbol
	AssetClass  string    `json:"asset_class"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Strategy is a trading strategy whose signal parameters are tuned by the
// optimizer. Parameters holds the JSON-encoded signal parameter set; it is
// replaced wholesale after each optimization run.
type Strategy struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Parameters  string    `json:"parameters"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Portfolio is a collection of weighted strategies and asset holdings.
type Portfolio struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	InitialCapital float64   `json:"initial_capital"`
	CurrentValue   float64   `json:"current_value"`
	RiskTolerance  float64   `json:"risk_tolerance"` // 0-1 scale
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PortfolioStrategy links a strategy to a portfolio with its allocation weight.
type PortfolioStrategy struct {
	ID          int64   `json:"id"`
	PortfolioID int64   `json:"portfolio_id"`
	StrategyID  int64   `json:"strategy_id"`
	Allocation  float64 `json:"allocation"` // Weight in [0,1]
	IsActive    bool    `json:"is_active"`
}

// PortfolioAsset is an actual holding inside a portfolio.
type PortfolioAsset struct {
	ID                int64      `json:"id"`
	PortfolioID       int64      `json:"portfolio_id"`
	AssetID           int64      `json:"asset_id"`
	Quantity          float64    `json:"quantity"`
	AveragePrice      float64    `json:"average_price"`
	CurrentPrice      float64    `json:"current_price"`
	TargetAllocation  float64    `json:"target_allocation"`
	CurrentAllocation float64    `json:"current_allocation"`
	LastRebalanced    *time.Time `json:"last_rebalanced,omitempty"`
}

// TradeSide is the direction of a trade.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// TradeStatus is the lifecycle state of a trade record.
type TradeStatus string

const (
	TradeStatusPending TradeStatus = "pending"
	TradeStatusFilled  TradeStatus = "filled"
	TradeStatusFailed  TradeStatus = "failed"
)

// Trade is a persisted trade record, created pending and marked filled (or
// failed) after execution. Quantity is always positive; Side carries the
// direction.
type Trade struct {
	ID          int64       `json:"id"`
	PortfolioID int64       `json:"portfolio_id"`
	AssetID     int64       `json:"asset_id"`
	Timestamp   time.Time   `json:"timestamp"`
	OrderType   string      `json:"order_type"`
	Side        TradeSide   `json:"side"`
	Quantity    float64     `json:"quantity"`
	Price       float64     `json:"price"`
	Status      TradeStatus `json:"status"`
	OrderID     string      `json:"order_id,omitempty"`
	Notes       string      `json:"notes,omitempty"`
}

// PerformanceMetric is a point-in-time performance snapshot of a portfolio.
// Return, drawdown and volatility values are percentages.
type PerformanceMetric struct {
	ID           int64     `json:"id"`
	PortfolioID  int64     `json:"portfolio_id"`
	Timestamp    time.Time `json:"timestamp"`
	TotalReturn  float64   `json:"total_return"`
	DailyReturn  float64   `json:"daily_return"`
	SharpeRatio  float64   `json:"sharpe_ratio"`
	MaxDrawdown  float64   `json:"max_drawdown"`
	Volatility   float64   `json:"volatility"`
	WinRate      float64   `json:"win_rate"`
	CurrentValue float64   `json:"current_value"`
}

// StrategyOptimization persists the winning parameter set and its metrics
// from one optimization run. Parameters and Metrics are JSON-encoded.
type StrategyOptimization struct {
	ID         int64     `json:"id"`
	StrategyID int64     `json:"strategy_id"`
	Parameters string    `json:"parameters"`
	Metrics    string    `json:"metrics"`
	CreatedAt  time.Time `json:"created_at"`
}

// PriceBar is one OHLCV bar. Sequences are ordered by strictly increasing
// timestamps; duplicate suppression is the data-fetch boundary's concern.
type PriceBar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}
