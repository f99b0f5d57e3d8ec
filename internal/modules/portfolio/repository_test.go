package portfolio

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/quantfolio/internal/database"
	"github.com/aristath/quantfolio/internal/domain"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db.Conn(), zerolog.New(nil).Level(zerolog.Disabled))
}

func TestPortfolioCRUD(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)

	id, err := repo.Create(ctx, domain.Portfolio{
		Name:           "growth",
		InitialCapital: 10000,
		RiskTolerance:  0.7,
		IsActive:       true,
	})
	require.NoError(t, err)

	p, err := repo.GetPortfolio(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "growth", p.Name)
	assert.Equal(t, 0.7, p.RiskTolerance)

	require.NoError(t, repo.SetCurrentValue(ctx, id, 12345.67))
	p, err = repo.GetPortfolio(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 12345.67, p.CurrentValue)

	p.IsActive = false
	require.NoError(t, repo.Update(ctx, p))

	active, err := repo.List(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = repo.GetPortfolio(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHoldings(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)

	pid, err := repo.Create(ctx, domain.Portfolio{Name: "growth", IsActive: true})
	require.NoError(t, err)

	require.NoError(t, repo.UpsertHolding(ctx, domain.PortfolioAsset{
		PortfolioID:      pid,
		AssetID:          1,
		Quantity:         10,
		TargetAllocation: 0.6,
	}))

	// Upsert on the same pair replaces, not duplicates.
	require.NoError(t, repo.UpsertHolding(ctx, domain.PortfolioAsset{
		PortfolioID:      pid,
		AssetID:          1,
		Quantity:         12,
		TargetAllocation: 0.6,
	}))

	holdings, err := repo.GetHoldings(ctx, pid)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, 12.0, holdings[0].Quantity)
	assert.Nil(t, holdings[0].LastRebalanced)

	require.NoError(t, repo.SetHoldingPrice(ctx, pid, 1, 150.5))
	require.NoError(t, repo.SetHoldingAllocation(ctx, pid, 1, 0.55))
	require.NoError(t, repo.SetHoldingTarget(ctx, pid, 1, 0.5))

	now := time.Now().UTC()
	require.NoError(t, repo.SetHoldingQuantity(ctx, pid, 1, -3, now)) // floored at zero

	holdings, err = repo.GetHoldings(ctx, pid)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, 150.5, holdings[0].CurrentPrice)
	assert.Equal(t, 0.55, holdings[0].CurrentAllocation)
	assert.Equal(t, 0.5, holdings[0].TargetAllocation)
	assert.Equal(t, 0.0, holdings[0].Quantity)
	require.NotNil(t, holdings[0].LastRebalanced)
}

func TestStrategyLinks(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)

	pid, err := repo.Create(ctx, domain.Portfolio{Name: "growth", IsActive: true})
	require.NoError(t, err)

	require.NoError(t, repo.UpsertStrategyLink(ctx, domain.PortfolioStrategy{
		PortfolioID: pid, StrategyID: 5, Allocation: 0.4, IsActive: true,
	}))
	require.NoError(t, repo.UpsertStrategyLink(ctx, domain.PortfolioStrategy{
		PortfolioID: pid, StrategyID: 5, Allocation: 0.6, IsActive: true,
	}))

	links, err := repo.GetStrategyLinks(ctx, pid)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, 0.6, links[0].Allocation)
}

func TestTrades(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)

	pid, err := repo.Create(ctx, domain.Portfolio{Name: "growth", IsActive: true})
	require.NoError(t, err)

	id, err := repo.AddTrade(ctx, domain.Trade{
		PortfolioID: pid,
		AssetID:     1,
		Side:        domain.TradeSideBuy,
		Quantity:    5,
		Price:       100,
	})
	require.NoError(t, err)

	trades, err := repo.ListTrades(ctx, pid, time.Time{})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, domain.TradeStatusPending, trades[0].Status) // default status
	assert.Equal(t, "market", trades[0].OrderType)

	require.NoError(t, repo.SetTradeStatus(ctx, id, domain.TradeStatusFilled, "ord-1"))
	trades, err = repo.ListTrades(ctx, pid, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusFilled, trades[0].Status)
	assert.Equal(t, "ord-1", trades[0].OrderID)

	// since filter excludes older trades
	future := time.Now().UTC().Add(time.Hour)
	trades, err = repo.ListTrades(ctx, pid, future)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestPerformanceMetrics(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)

	pid, err := repo.Create(ctx, domain.Portfolio{Name: "growth", IsActive: true})
	require.NoError(t, err)

	_, err = repo.LatestPerformance(ctx, pid)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := repo.AddPerformanceMetric(ctx, domain.PerformanceMetric{
			PortfolioID:  pid,
			Timestamp:    base.AddDate(0, 0, i),
			CurrentValue: float64(10000 + i),
		})
		require.NoError(t, err)
	}

	latest, err := repo.LatestPerformance(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, 10002.0, latest.CurrentValue)

	history, err := repo.ListPerformance(ctx, pid, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 10002.0, history[0].CurrentValue)
	assert.Equal(t, 10001.0, history[1].CurrentValue)
}
