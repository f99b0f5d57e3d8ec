package allocation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/quantfolio/internal/domain"
	"github.com/aristath/quantfolio/internal/modules/backtest"
	"github.com/aristath/quantfolio/internal/tasks"
)

type mockPortfolios struct {
	portfolio domain.Portfolio
	links     []domain.PortfolioStrategy
	upserted  map[int64]float64
}

func (m *mockPortfolios) GetPortfolio(_ context.Context, id int64) (domain.Portfolio, error) {
	if m.portfolio.ID != id {
		return domain.Portfolio{}, domain.ErrNotFound
	}
	return m.portfolio, nil
}

func (m *mockPortfolios) GetStrategyLinks(_ context.Context, _ int64) ([]domain.PortfolioStrategy, error) {
	return m.links, nil
}

func (m *mockPortfolios) UpsertStrategyLink(_ context.Context, link domain.PortfolioStrategy) error {
	if m.upserted == nil {
		m.upserted = make(map[int64]float64)
	}
	m.upserted[link.StrategyID] = link.Allocation
	return nil
}

type mockStrategies struct {
	strategies    map[int64]domain.Strategy
	optimizations map[int64]backtest.Metrics
}

func (m *mockStrategies) GetStrategy(_ context.Context, id int64) (domain.Strategy, error) {
	s, ok := m.strategies[id]
	if !ok {
		return domain.Strategy{}, domain.ErrNotFound
	}
	return s, nil
}

func (m *mockStrategies) LatestOptimization(_ context.Context, strategyID int64) (domain.StrategyOptimization, error) {
	metrics, ok := m.optimizations[strategyID]
	if !ok {
		return domain.StrategyOptimization{}, domain.ErrNotFound
	}
	encoded, _ := json.Marshal(metrics)
	return domain.StrategyOptimization{StrategyID: strategyID, Metrics: string(encoded)}, nil
}

func testStore() *tasks.Store {
	return tasks.NewStore(zerolog.New(nil).Level(zerolog.Disabled))
}

func twoStrategyFixture(riskTolerance float64) (*mockPortfolios, *mockStrategies) {
	portfolios := &mockPortfolios{
		portfolio: domain.Portfolio{ID: 1, RiskTolerance: riskTolerance},
		links: []domain.PortfolioStrategy{
			{ID: 10, PortfolioID: 1, StrategyID: 100, Allocation: 0.5, IsActive: true},
			{ID: 11, PortfolioID: 1, StrategyID: 101, Allocation: 0.5, IsActive: true},
		},
	}
	strategies := &mockStrategies{
		strategies: map[int64]domain.Strategy{
			100: {ID: 100, Name: "momentum"},
			101: {ID: 101, Name: "mean-reversion"},
		},
		optimizations: map[int64]backtest.Metrics{
			100: {SharpeRatio: 2.0, TotalReturn: 20, MaxDrawdown: 10, WinRate: 60},
			101: {SharpeRatio: 0.5, TotalReturn: 5, MaxDrawdown: 2, WinRate: 45},
		},
	}
	return portfolios, strategies
}

func TestOptimizeAllocations(t *testing.T) {
	portfolios, strategies := twoStrategyFixture(0.9)
	store := testStore()
	store.Start("task-1", "allocation", 1)

	svc := NewService(portfolios, strategies, store, zerolog.New(nil).Level(zerolog.Disabled))
	result, err := svc.Optimize(context.Background(), 1, "task-1")
	require.NoError(t, err)

	require.Len(t, result.Allocations, 2)
	assert.Equal(t, "risk_adjusted_blend", result.Method)
	assert.Equal(t, 0.9, result.RiskTolerance)

	sum := 0.0
	for _, a := range result.Allocations {
		assert.GreaterOrEqual(t, a.NewAllocation, 0.0)
		assert.LessOrEqual(t, a.NewAllocation, 1.0)
		sum += a.NewAllocation
		assert.InDelta(t, a.NewAllocation-a.PreviousAllocation, a.Change, 1e-9)
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	// Weights are written back for both strategies.
	assert.Len(t, portfolios.upserted, 2)
	assert.InDelta(t, result.Allocations[0].NewAllocation, portfolios.upserted[100], 1e-9)

	// Every scheme plus the final blend is reported.
	for _, method := range []string{MethodEqualWeight, MethodReturnWeighted, MethodSharpeWeighted, MethodRiskParity, MethodRiskAdjusted, MethodFinal} {
		_, ok := result.Metrics[method]
		assert.Truef(t, ok, "missing metrics for %s", method)
	}

	task, ok := store.Get("task-1")
	require.True(t, ok)
	assert.Equal(t, tasks.StatusCompleted, task.Status)
	assert.Equal(t, 1.0, task.Progress)
}

func TestOptimizeHighRiskFavorsRiskAdjusted(t *testing.T) {
	// Strategy 101 has far lower drawdown, so low risk tolerance should
	// give it more weight than high risk tolerance does.
	log := zerolog.New(nil).Level(zerolog.Disabled)

	lowPortfolios, strategies := twoStrategyFixture(0.1)
	lowSvc := NewService(lowPortfolios, strategies, testStore(), log)
	low, err := lowSvc.Optimize(context.Background(), 1, "")
	require.NoError(t, err)

	highPortfolios, _ := twoStrategyFixture(0.9)
	highSvc := NewService(highPortfolios, strategies, testStore(), log)
	high, err := highSvc.Optimize(context.Background(), 1, "")
	require.NoError(t, err)

	assert.Greater(t, low.Allocations[1].NewAllocation, high.Allocations[1].NewAllocation)
}

func TestOptimizeIdempotent(t *testing.T) {
	portfolios, strategies := twoStrategyFixture(0.5)
	svc := NewService(portfolios, strategies, testStore(), zerolog.New(nil).Level(zerolog.Disabled))

	first, err := svc.Optimize(context.Background(), 1, "")
	require.NoError(t, err)
	second, err := svc.Optimize(context.Background(), 1, "")
	require.NoError(t, err)

	// Same inputs produce the same weights on repeated runs.
	for i := range first.Allocations {
		assert.InDelta(t, first.Allocations[i].NewAllocation, second.Allocations[i].NewAllocation, 1e-12)
	}
}

func TestOptimizeSkipsUnoptimizedStrategies(t *testing.T) {
	portfolios, strategies := twoStrategyFixture(0.5)
	delete(strategies.optimizations, 101)

	svc := NewService(portfolios, strategies, testStore(), zerolog.New(nil).Level(zerolog.Disabled))
	result, err := svc.Optimize(context.Background(), 1, "")
	require.NoError(t, err)

	require.Len(t, result.Allocations, 1)
	assert.Equal(t, int64(100), result.Allocations[0].StrategyID)
	assert.InDelta(t, 1.0, result.Allocations[0].NewAllocation, 1e-9)
}

func TestOptimizeNoStrategies(t *testing.T) {
	portfolios := &mockPortfolios{portfolio: domain.Portfolio{ID: 1}}
	store := testStore()
	store.Start("task-1", "allocation", 1)

	svc := NewService(portfolios, &mockStrategies{}, store, zerolog.New(nil).Level(zerolog.Disabled))
	_, err := svc.Optimize(context.Background(), 1, "task-1")
	assert.ErrorIs(t, err, domain.ErrNoActiveStrategies)

	task, ok := store.Get("task-1")
	require.True(t, ok)
	assert.Equal(t, tasks.StatusFailed, task.Status)
}

func TestOptimizePortfolioNotFound(t *testing.T) {
	svc := NewService(&mockPortfolios{}, &mockStrategies{}, testStore(), zerolog.New(nil).Level(zerolog.Disabled))
	_, err := svc.Optimize(context.Background(), 42, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
