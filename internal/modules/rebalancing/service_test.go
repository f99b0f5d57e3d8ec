package rebalancing

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/quantfolio/internal/domain"
	"github.com/aristath/quantfolio/internal/tasks"
)

type mockPortfolios struct {
	portfolio   domain.Portfolio
	holdings    []domain.PortfolioAsset
	trades      []domain.Trade
	statuses    map[int64]domain.TradeStatus
	orderIDs    map[int64]string
	quantities  map[int64]float64
	allocations map[int64]float64
}

func newMockPortfolios(p domain.Portfolio, holdings []domain.PortfolioAsset) *mockPortfolios {
	return &mockPortfolios{
		portfolio:   p,
		holdings:    holdings,
		statuses:    make(map[int64]domain.TradeStatus),
		orderIDs:    make(map[int64]string),
		quantities:  make(map[int64]float64),
		allocations: make(map[int64]float64),
	}
}

func (m *mockPortfolios) GetPortfolio(_ context.Context, id int64) (domain.Portfolio, error) {
	if m.portfolio.ID != id {
		return domain.Portfolio{}, domain.ErrNotFound
	}
	return m.portfolio, nil
}

func (m *mockPortfolios) GetHoldings(_ context.Context, _ int64) ([]domain.PortfolioAsset, error) {
	return m.holdings, nil
}

func (m *mockPortfolios) SetHoldingPrice(_ context.Context, _, _ int64, _ float64) error {
	return nil
}

func (m *mockPortfolios) SetHoldingAllocation(_ context.Context, _, assetID int64, allocation float64) error {
	m.allocations[assetID] = allocation
	return nil
}

func (m *mockPortfolios) SetHoldingQuantity(_ context.Context, _, assetID int64, quantity float64, _ time.Time) error {
	m.quantities[assetID] = quantity
	return nil
}

func (m *mockPortfolios) AddTrade(_ context.Context, t domain.Trade) (int64, error) {
	t.ID = int64(len(m.trades) + 1)
	m.trades = append(m.trades, t)
	m.statuses[t.ID] = t.Status
	return t.ID, nil
}

func (m *mockPortfolios) SetTradeStatus(_ context.Context, id int64, status domain.TradeStatus, orderID string) error {
	m.statuses[id] = status
	m.orderIDs[id] = orderID
	return nil
}

type mockAssets struct {
	byID map[int64]domain.Asset
}

func (m *mockAssets) GetAsset(_ context.Context, id int64) (domain.Asset, error) {
	asset, ok := m.byID[id]
	if !ok {
		return domain.Asset{}, domain.ErrNotFound
	}
	return asset, nil
}

type mockQuotes struct {
	prices map[string]float64
	err    error
}

func (m *mockQuotes) CurrentPrices(_ context.Context, _ []string) (map[string]float64, error) {
	return m.prices, m.err
}

type mockBroker struct {
	orders []string
	err    error
}

func (m *mockBroker) SubmitOrder(_ context.Context, symbol string, _ domain.TradeSide, _, _ float64) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.orders = append(m.orders, symbol)
	return fmt.Sprintf("ord-%d", len(m.orders)), nil
}

type mockPerformance struct {
	calls int
}

func (m *mockPerformance) Calculate(_ context.Context, _ int64) (domain.PerformanceMetric, error) {
	m.calls++
	return domain.PerformanceMetric{}, nil
}

// Two holdings at 60/40 with 50/50 targets, total value 1000.
func driftedFixture() (*mockPortfolios, *mockAssets, *mockQuotes) {
	portfolios := newMockPortfolios(
		domain.Portfolio{ID: 1, IsActive: true},
		[]domain.PortfolioAsset{
			{PortfolioID: 1, AssetID: 1, Quantity: 6, TargetAllocation: 0.5},
			{PortfolioID: 1, AssetID: 2, Quantity: 8, TargetAllocation: 0.5},
		},
	)
	assets := &mockAssets{byID: map[int64]domain.Asset{
		1: {ID: 1, Symbol: "AAA"},
		2: {ID: 2, Symbol: "BBB"},
	}}
	quotes := &mockQuotes{prices: map[string]float64{"AAA": 100, "BBB": 50}}
	return portfolios, assets, quotes
}

func testService(p *mockPortfolios, a *mockAssets, q *mockQuotes, b *mockBroker, perf *mockPerformance, store *tasks.Store) *Service {
	return NewService(p, a, q, b, perf, store, zerolog.New(nil).Level(zerolog.Disabled))
}

func testStore() *tasks.Store {
	return tasks.NewStore(zerolog.New(nil).Level(zerolog.Disabled))
}

func TestNeedsRebalance(t *testing.T) {
	portfolios, assets, quotes := driftedFixture()
	svc := testService(portfolios, assets, quotes, &mockBroker{}, &mockPerformance{}, testStore())

	needs, deviation, err := svc.NeedsRebalance(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, needs)
	assert.InDelta(t, 10.0, deviation, 1e-9) // 60% vs 50% target

	// Current allocations were refreshed.
	assert.InDelta(t, 0.6, portfolios.allocations[1], 1e-9)
	assert.InDelta(t, 0.4, portfolios.allocations[2], 1e-9)
}

func TestNeedsRebalanceBalanced(t *testing.T) {
	portfolios := newMockPortfolios(
		domain.Portfolio{ID: 1, IsActive: true},
		[]domain.PortfolioAsset{
			{PortfolioID: 1, AssetID: 1, Quantity: 5, TargetAllocation: 0.5},
			{PortfolioID: 1, AssetID: 2, Quantity: 10, TargetAllocation: 0.5},
		},
	)
	assets := &mockAssets{byID: map[int64]domain.Asset{
		1: {ID: 1, Symbol: "AAA"},
		2: {ID: 2, Symbol: "BBB"},
	}}
	quotes := &mockQuotes{prices: map[string]float64{"AAA": 100, "BBB": 50}}
	svc := testService(portfolios, assets, quotes, &mockBroker{}, &mockPerformance{}, testStore())

	needs, deviation, err := svc.NeedsRebalance(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, needs)
	assert.InDelta(t, 0.0, deviation, 1e-9)
}

func TestNeedsRebalanceNoHoldings(t *testing.T) {
	portfolios := newMockPortfolios(domain.Portfolio{ID: 1}, nil)
	svc := testService(portfolios, &mockAssets{}, &mockQuotes{}, &mockBroker{}, &mockPerformance{}, testStore())

	needs, deviation, err := svc.NeedsRebalance(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, needs)
	assert.Zero(t, deviation)
}

func TestRebalance(t *testing.T) {
	portfolios, assets, quotes := driftedFixture()
	broker := &mockBroker{}
	perf := &mockPerformance{}
	store := testStore()
	store.Start("task-1", "rebalance", 1)

	svc := testService(portfolios, assets, quotes, broker, perf, store)
	result, err := svc.Rebalance(context.Background(), Request{PortfolioID: 1, TaskID: "task-1"})
	require.NoError(t, err)

	assert.True(t, result.Complete)
	assert.InDelta(t, 1000.0, result.TotalValue, 1e-9)
	require.Equal(t, 2, result.TradesExecuted)

	// Sell 1 share of AAA (100 over target), buy 2 of BBB.
	bySymbol := map[string]ExecutedTrade{}
	for _, tr := range result.Trades {
		bySymbol[tr.Symbol] = tr
		assert.Equal(t, domain.TradeStatusFilled, tr.Status)
	}
	assert.Equal(t, domain.TradeSideSell, bySymbol["AAA"].Side)
	assert.InDelta(t, 1.0, bySymbol["AAA"].Quantity, 1e-9)
	assert.Equal(t, domain.TradeSideBuy, bySymbol["BBB"].Side)
	assert.InDelta(t, 2.0, bySymbol["BBB"].Quantity, 1e-9)

	// Quantities are updated to the balanced state.
	assert.InDelta(t, 5.0, portfolios.quantities[1], 1e-9)
	assert.InDelta(t, 10.0, portfolios.quantities[2], 1e-9)

	// Performance is recomputed after the trades.
	assert.Equal(t, 1, perf.calls)

	task, ok := store.Get("task-1")
	require.True(t, ok)
	assert.Equal(t, tasks.StatusCompleted, task.Status)
	assert.Equal(t, 1.0, task.Progress)
}

func TestRebalanceMaxTrades(t *testing.T) {
	portfolios, assets, quotes := driftedFixture()
	broker := &mockBroker{}

	svc := testService(portfolios, assets, quotes, broker, &mockPerformance{}, testStore())
	result, err := svc.Rebalance(context.Background(), Request{PortfolioID: 1, MaxTrades: 1})
	require.NoError(t, err)

	// Only the largest-gap trade executes: the sell of the overweight asset.
	require.Equal(t, 1, result.TradesExecuted)
	assert.Equal(t, "AAA", result.Trades[0].Symbol)
	assert.Equal(t, domain.TradeSideSell, result.Trades[0].Side)
}

func TestRebalanceTradeLimit(t *testing.T) {
	portfolios, assets, quotes := driftedFixture()
	broker := &mockBroker{}

	svc := testService(portfolios, assets, quotes, broker, &mockPerformance{}, testStore())

	// 5% of 1000 = 50 tradable; the first 100-value trade is scaled to half.
	result, err := svc.Rebalance(context.Background(), Request{PortfolioID: 1, TradeLimitPct: 5})
	require.NoError(t, err)

	require.Equal(t, 1, result.TradesExecuted)
	assert.InDelta(t, 0.5, result.Trades[0].Quantity, 1e-9)

	traded := 0.0
	for _, tr := range result.Trades {
		traded += tr.Quantity * tr.Price
	}
	assert.LessOrEqual(t, traded, 50.0+1e-9)
}

func TestRebalanceImprovesAllocation(t *testing.T) {
	portfolios, assets, quotes := driftedFixture()
	svc := testService(portfolios, assets, quotes, &mockBroker{}, &mockPerformance{}, testStore())

	_, before, err := svc.NeedsRebalance(context.Background(), 1)
	require.NoError(t, err)

	_, err = svc.Rebalance(context.Background(), Request{PortfolioID: 1})
	require.NoError(t, err)

	// Apply the updated quantities and re-check.
	for i := range portfolios.holdings {
		if q, ok := portfolios.quantities[portfolios.holdings[i].AssetID]; ok {
			portfolios.holdings[i].Quantity = q
		}
	}
	_, after, err := svc.NeedsRebalance(context.Background(), 1)
	require.NoError(t, err)
	assert.Less(t, after, before)
}

func TestRebalanceBrokerFailure(t *testing.T) {
	portfolios, assets, quotes := driftedFixture()
	broker := &mockBroker{err: fmt.Errorf("rejected")}

	svc := testService(portfolios, assets, quotes, broker, &mockPerformance{}, testStore())
	result, err := svc.Rebalance(context.Background(), Request{PortfolioID: 1})
	require.NoError(t, err)

	// Trades are recorded as failed and holdings stay untouched.
	for _, tr := range result.Trades {
		assert.Equal(t, domain.TradeStatusFailed, tr.Status)
	}
	assert.Empty(t, portfolios.quantities)
}

func TestRebalanceSkipsDustTrades(t *testing.T) {
	portfolios := newMockPortfolios(
		domain.Portfolio{ID: 1},
		[]domain.PortfolioAsset{
			// Allocation is within a hair of target: the gap in shares is dust.
			{PortfolioID: 1, AssetID: 1, Quantity: 10, TargetAllocation: 0.5000000001},
			{PortfolioID: 1, AssetID: 2, Quantity: 10, TargetAllocation: 0.4999999999},
		},
	)
	assets := &mockAssets{byID: map[int64]domain.Asset{
		1: {ID: 1, Symbol: "AAA"},
		2: {ID: 2, Symbol: "BBB"},
	}}
	quotes := &mockQuotes{prices: map[string]float64{"AAA": 100, "BBB": 100}}

	svc := testService(portfolios, assets, quotes, &mockBroker{}, &mockPerformance{}, testStore())
	result, err := svc.Rebalance(context.Background(), Request{PortfolioID: 1})
	require.NoError(t, err)
	assert.Zero(t, result.TradesExecuted)
}

func TestRebalanceSellNeverGoesNegative(t *testing.T) {
	portfolios := newMockPortfolios(
		domain.Portfolio{ID: 1},
		[]domain.PortfolioAsset{
			{PortfolioID: 1, AssetID: 1, Quantity: 1, TargetAllocation: 0},
			{PortfolioID: 1, AssetID: 2, Quantity: 1, TargetAllocation: 1},
		},
	)
	assets := &mockAssets{byID: map[int64]domain.Asset{
		1: {ID: 1, Symbol: "AAA"},
		2: {ID: 2, Symbol: "BBB"},
	}}
	quotes := &mockQuotes{prices: map[string]float64{"AAA": 100, "BBB": 100}}

	svc := testService(portfolios, assets, quotes, &mockBroker{}, &mockPerformance{}, testStore())
	_, err := svc.Rebalance(context.Background(), Request{PortfolioID: 1})
	require.NoError(t, err)

	for _, q := range portfolios.quantities {
		assert.False(t, math.Signbit(q))
		assert.GreaterOrEqual(t, q, 0.0)
	}
}

func TestRebalancePortfolioNotFound(t *testing.T) {
	store := testStore()
	store.Start("task-1", "rebalance", 42)
	svc := testService(newMockPortfolios(domain.Portfolio{ID: 1}, nil), &mockAssets{}, &mockQuotes{}, &mockBroker{}, &mockPerformance{}, store)

	_, err := svc.Rebalance(context.Background(), Request{PortfolioID: 42, TaskID: "task-1"})
	require.Error(t, err)

	task, ok := store.Get("task-1")
	require.True(t, ok)
	assert.Equal(t, tasks.StatusFailed, task.Status)
}
