// Package portfolio manages portfolios, their holdings and strategy links,
// trade records and performance history.
package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quantfolio/internal/domain"
)

const (
	portfolioColumns = "id, name, description, initial_capital, current_value, risk_tolerance, is_active, created_at, updated_at"
	holdingColumns   = "id, portfolio_id, asset_id, quantity, average_price, current_price, target_allocation, current_allocation, last_rebalanced"
	tradeColumns     = "id, portfolio_id, asset_id, timestamp, order_type, side, quantity, price, status, order_id, notes"
	metricColumns    = "id, portfolio_id, timestamp, total_return, daily_return, sharpe_ratio, max_drawdown, volatility, win_rate, current_value"
)

// Repository handles portfolio database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// Create inserts a new portfolio and returns its ID.
func (r *Repository) Create(ctx context.Context, p domain.Portfolio) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO portfolios (name, description, initial_capital, current_value, risk_tolerance, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Description, p.InitialCapital, p.CurrentValue, p.RiskTolerance, p.IsActive, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert portfolio: %w", err)
	}
	return res.LastInsertId()
}

// GetPortfolio returns a portfolio by ID.
func (r *Repository) GetPortfolio(ctx context.Context, id int64) (domain.Portfolio, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+portfolioColumns+" FROM portfolios WHERE id = ?", id)
	return r.scanPortfolio(row)
}

// List returns all portfolios. When activeOnly is set, inactive portfolios
// are excluded.
func (r *Repository) List(ctx context.Context, activeOnly bool) ([]domain.Portfolio, error) {
	query := "SELECT " + portfolioColumns + " FROM portfolios ORDER BY name"
	if activeOnly {
		query = "SELECT " + portfolioColumns + " FROM portfolios WHERE is_active = 1 ORDER BY name"
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []domain.Portfolio
	for rows.Next() {
		p, err := r.scanPortfolio(rows)
		if err != nil {
			return nil, err
		}
		portfolios = append(portfolios, p)
	}
	return portfolios, rows.Err()
}

// Update rewrites a portfolio's mutable fields.
func (r *Repository) Update(ctx context.Context, p domain.Portfolio) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE portfolios SET name = ?, description = ?, initial_capital = ?, current_value = ?, risk_tolerance = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, p.Description, p.InitialCapital, p.CurrentValue, p.RiskTolerance, p.IsActive,
		time.Now().UTC().Format(time.RFC3339), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update portfolio %d: %w", p.ID, err)
	}
	return requireAffected(res, p.ID)
}

// SetCurrentValue updates only a portfolio's current market value.
func (r *Repository) SetCurrentValue(ctx context.Context, id int64, value float64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE portfolios SET current_value = ?, updated_at = ? WHERE id = ?",
		value, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to update portfolio %d value: %w", id, err)
	}
	return requireAffected(res, id)
}

// UpsertHolding inserts a holding or replaces the row for an existing
// portfolio/asset pair.
func (r *Repository) UpsertHolding(ctx context.Context, h domain.PortfolioAsset) error {
	var lastRebalanced any
	if h.LastRebalanced != nil {
		lastRebalanced = h.LastRebalanced.UTC().Format(time.RFC3339)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO portfolio_assets (portfolio_id, asset_id, quantity, average_price, current_price, target_allocation, current_allocation, last_rebalanced)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(portfolio_id, asset_id) DO UPDATE SET
		     quantity = excluded.quantity,
		     average_price = excluded.average_price,
		     current_price = excluded.current_price,
		     target_allocation = excluded.target_allocation,
		     current_allocation = excluded.current_allocation,
		     last_rebalanced = excluded.last_rebalanced`,
		h.PortfolioID, h.AssetID, h.Quantity, h.AveragePrice, h.CurrentPrice,
		h.TargetAllocation, h.CurrentAllocation, lastRebalanced)
	if err != nil {
		return fmt.Errorf("failed to upsert holding: %w", err)
	}
	return nil
}

// GetHoldings returns all holdings of a portfolio.
func (r *Repository) GetHoldings(ctx context.Context, portfolioID int64) ([]domain.PortfolioAsset, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+holdingColumns+" FROM portfolio_assets WHERE portfolio_id = ? ORDER BY asset_id",
		portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []domain.PortfolioAsset
	for rows.Next() {
		h, err := r.scanHolding(rows)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// SetHoldingPrice updates the cached market price of a holding.
func (r *Repository) SetHoldingPrice(ctx context.Context, portfolioID, assetID int64, price float64) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE portfolio_assets SET current_price = ? WHERE portfolio_id = ? AND asset_id = ?",
		price, portfolioID, assetID)
	if err != nil {
		return fmt.Errorf("failed to update holding price: %w", err)
	}
	return nil
}

// SetHoldingAllocation updates the observed current allocation of a holding.
func (r *Repository) SetHoldingAllocation(ctx context.Context, portfolioID, assetID int64, allocation float64) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE portfolio_assets SET current_allocation = ? WHERE portfolio_id = ? AND asset_id = ?",
		allocation, portfolioID, assetID)
	if err != nil {
		return fmt.Errorf("failed to update holding allocation: %w", err)
	}
	return nil
}

// SetHoldingTarget updates the target allocation of a holding.
func (r *Repository) SetHoldingTarget(ctx context.Context, portfolioID, assetID int64, target float64) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE portfolio_assets SET target_allocation = ? WHERE portfolio_id = ? AND asset_id = ?",
		target, portfolioID, assetID)
	if err != nil {
		return fmt.Errorf("failed to update holding target: %w", err)
	}
	return nil
}

// SetHoldingQuantity updates a holding's quantity and stamps the rebalance
// time. Quantity never goes below zero.
func (r *Repository) SetHoldingQuantity(ctx context.Context, portfolioID, assetID int64, quantity float64, rebalancedAt time.Time) error {
	if quantity < 0 {
		quantity = 0
	}
	_, err := r.db.ExecContext(ctx,
		"UPDATE portfolio_assets SET quantity = ?, last_rebalanced = ? WHERE portfolio_id = ? AND asset_id = ?",
		quantity, rebalancedAt.UTC().Format(time.RFC3339), portfolioID, assetID)
	if err != nil {
		return fmt.Errorf("failed to update holding quantity: %w", err)
	}
	return nil
}

// UpsertStrategyLink attaches a strategy to a portfolio with a weight, or
// updates the weight of an existing link.
func (r *Repository) UpsertStrategyLink(ctx context.Context, link domain.PortfolioStrategy) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO portfolio_strategies (portfolio_id, strategy_id, allocation, is_active)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(portfolio_id, strategy_id) DO UPDATE SET
		     allocation = excluded.allocation,
		     is_active = excluded.is_active`,
		link.PortfolioID, link.StrategyID, link.Allocation, link.IsActive)
	if err != nil {
		return fmt.Errorf("failed to upsert strategy link: %w", err)
	}
	return nil
}

// GetStrategyLinks returns the strategies attached to a portfolio.
func (r *Repository) GetStrategyLinks(ctx context.Context, portfolioID int64) ([]domain.PortfolioStrategy, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, portfolio_id, strategy_id, allocation, is_active
		 FROM portfolio_strategies WHERE portfolio_id = ? ORDER BY strategy_id`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy links: %w", err)
	}
	defer rows.Close()

	var links []domain.PortfolioStrategy
	for rows.Next() {
		var l domain.PortfolioStrategy
		if err := rows.Scan(&l.ID, &l.PortfolioID, &l.StrategyID, &l.Allocation, &l.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan strategy link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// AddTrade inserts a trade record and returns its ID.
func (r *Repository) AddTrade(ctx context.Context, t domain.Trade) (int64, error) {
	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if t.OrderType == "" {
		t.OrderType = "market"
	}
	if t.Status == "" {
		t.Status = domain.TradeStatusPending
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO trades (portfolio_id, asset_id, timestamp, order_type, side, quantity, price, status, order_id, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.PortfolioID, t.AssetID, ts.Format(time.RFC3339), t.OrderType, string(t.Side),
		t.Quantity, t.Price, string(t.Status), t.OrderID, t.Notes)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade: %w", err)
	}
	return res.LastInsertId()
}

// SetTradeStatus updates a trade's status and broker order reference.
func (r *Repository) SetTradeStatus(ctx context.Context, id int64, status domain.TradeStatus, orderID string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE trades SET status = ?, order_id = ? WHERE id = ?",
		string(status), orderID, id)
	if err != nil {
		return fmt.Errorf("failed to update trade %d: %w", id, err)
	}
	return requireAffected(res, id)
}

// ListTrades returns a portfolio's trades at or after since, oldest first.
// A zero since returns the full history.
func (r *Repository) ListTrades(ctx context.Context, portfolioID int64, since time.Time) ([]domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+tradeColumns+" FROM trades WHERE portfolio_id = ? AND timestamp >= ? ORDER BY timestamp, id",
		portfolioID, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		t, err := r.scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// AddPerformanceMetric inserts a performance snapshot and returns it with
// its assigned ID.
func (r *Repository) AddPerformanceMetric(ctx context.Context, m domain.PerformanceMetric) (domain.PerformanceMetric, error) {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	m.Timestamp = ts

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO performance_metrics (portfolio_id, timestamp, total_return, daily_return, sharpe_ratio, max_drawdown, volatility, win_rate, current_value)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.PortfolioID, ts.Format(time.RFC3339), m.TotalReturn, m.DailyReturn,
		m.SharpeRatio, m.MaxDrawdown, m.Volatility, m.WinRate, m.CurrentValue)
	if err != nil {
		return domain.PerformanceMetric{}, fmt.Errorf("failed to insert performance metric: %w", err)
	}

	m.ID, err = res.LastInsertId()
	return m, err
}

// LatestPerformance returns the most recent performance snapshot of a
// portfolio.
func (r *Repository) LatestPerformance(ctx context.Context, portfolioID int64) (domain.PerformanceMetric, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+metricColumns+` FROM performance_metrics
		 WHERE portfolio_id = ? ORDER BY timestamp DESC, id DESC LIMIT 1`, portfolioID)
	return r.scanMetric(row)
}

// ListPerformance returns performance history, most recent first.
func (r *Repository) ListPerformance(ctx context.Context, portfolioID int64, limit int) ([]domain.PerformanceMetric, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+metricColumns+` FROM performance_metrics
		 WHERE portfolio_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query performance metrics: %w", err)
	}
	defer rows.Close()

	var metrics []domain.PerformanceMetric
	for rows.Next() {
		m, err := r.scanMetric(rows)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanPortfolio(row rowScanner) (domain.Portfolio, error) {
	var p domain.Portfolio
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.InitialCapital, &p.CurrentValue,
		&p.RiskTolerance, &p.IsActive, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Portfolio{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("failed to scan portfolio: %w", err)
	}

	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return p, nil
}

func (r *Repository) scanHolding(row rowScanner) (domain.PortfolioAsset, error) {
	var h domain.PortfolioAsset
	var lastRebalanced sql.NullString

	err := row.Scan(&h.ID, &h.PortfolioID, &h.AssetID, &h.Quantity, &h.AveragePrice,
		&h.CurrentPrice, &h.TargetAllocation, &h.CurrentAllocation, &lastRebalanced)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PortfolioAsset{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PortfolioAsset{}, fmt.Errorf("failed to scan holding: %w", err)
	}

	if lastRebalanced.Valid {
		if ts, err := time.Parse(time.RFC3339, lastRebalanced.String); err == nil {
			h.LastRebalanced = &ts
		}
	}
	return h, nil
}

func (r *Repository) scanTrade(row rowScanner) (domain.Trade, error) {
	var t domain.Trade
	var timestamp, side, status string

	err := row.Scan(&t.ID, &t.PortfolioID, &t.AssetID, &timestamp, &t.OrderType,
		&side, &t.Quantity, &t.Price, &status, &t.OrderID, &t.Notes)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Trade{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Trade{}, fmt.Errorf("failed to scan trade: %w", err)
	}

	t.Timestamp, _ = time.Parse(time.RFC3339, timestamp)
	t.Side = domain.TradeSide(side)
	t.Status = domain.TradeStatus(status)
	return t, nil
}

func (r *Repository) scanMetric(row rowScanner) (domain.PerformanceMetric, error) {
	var m domain.PerformanceMetric
	var timestamp string

	err := row.Scan(&m.ID, &m.PortfolioID, &timestamp, &m.TotalReturn, &m.DailyReturn,
		&m.SharpeRatio, &m.MaxDrawdown, &m.Volatility, &m.WinRate, &m.CurrentValue)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PerformanceMetric{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PerformanceMetric{}, fmt.Errorf("failed to scan performance metric: %w", err)
	}

	m.Timestamp, _ = time.Parse(time.RFC3339, timestamp)
	return m, nil
}

// requireAffected converts a zero-row write into ErrNotFound.
func requireAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("record %d: %w", id, domain.ErrNotFound)
	}
	return nil
}
