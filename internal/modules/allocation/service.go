// Package allocation rebalances the strategy weights inside a portfolio by
// blending several weighting schemes according to risk tolerance.
package allocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quantfolio/internal/domain"
	"github.com/aristath/quantfolio/internal/modules/backtest"
	"github.com/aristath/quantfolio/internal/tasks"
)

// PortfolioStore is the portfolio persistence the allocator needs.
type PortfolioStore interface {
	GetPortfolio(ctx context.Context, id int64) (domain.Portfolio, error)
	GetStrategyLinks(ctx context.Context, portfolioID int64) ([]domain.PortfolioStrategy, error)
	UpsertStrategyLink(ctx context.Context, link domain.PortfolioStrategy) error
}

// StrategyStore resolves strategies and their optimization history.
type StrategyStore interface {
	GetStrategy(ctx context.Context, id int64) (domain.Strategy, error)
	LatestOptimization(ctx context.Context, strategyID int64) (domain.StrategyOptimization, error)
}

// StrategyAllocation reports the weight change applied to one strategy.
type StrategyAllocation struct {
	StrategyID         int64   `json:"strategy_id"`
	Name               string  `json:"name"`
	PreviousAllocation float64 `json:"previous_allocation"`
	NewAllocation      float64 `json:"new_allocation"`
	Change             float64 `json:"change"`
}

// MethodMetrics summarizes the expected outcome of one weighting scheme.
type MethodMetrics struct {
	ExpectedReturn float64 `json:"expected_return"`
	Risk           float64 `json:"risk"`
	Sharpe         float64 `json:"sharpe"`
}

// Result is the outcome of one allocation optimization.
type Result struct {
	PortfolioID   int64                    `json:"portfolio_id"`
	RiskTolerance float64                  `json:"risk_tolerance"`
	Method        string                   `json:"allocation_method"`
	Allocations   []StrategyAllocation     `json:"strategy_allocations"`
	Metrics       map[string]MethodMetrics `json:"allocation_metrics"`
	Timestamp     time.Time                `json:"timestamp"`
}

// Service optimizes strategy allocations.
type Service struct {
	portfolios PortfolioStore
	strategies StrategyStore
	tasks      *tasks.Store
	log        zerolog.Logger
}

// NewService creates a new allocation service.
func NewService(portfolios PortfolioStore, strategies StrategyStore, taskStore *tasks.Store, log zerolog.Logger) *Service {
	return &Service{
		portfolios: portfolios,
		strategies: strategies,
		tasks:      taskStore,
		log:        log.With().Str("service", "allocation").Logger(),
	}
}

// Optimize recomputes and persists the strategy weights of a portfolio.
// When a task ID is given the run's status is mirrored into the task store.
func (s *Service) Optimize(ctx context.Context, portfolioID int64, taskID string) (Result, error) {
	if taskID != "" {
		s.tasks.SetRunning(taskID)
	}

	result, err := s.optimize(ctx, portfolioID, taskID)
	if taskID != "" {
		if err != nil {
			s.tasks.Fail(taskID, err.Error())
		} else {
			s.tasks.Complete(taskID, result)
		}
	}
	return result, err
}

// candidate is one active strategy with parsed optimization metrics.
type candidate struct {
	link    domain.PortfolioStrategy
	name    string
	metrics backtest.Metrics
}

func (s *Service) optimize(ctx context.Context, portfolioID int64, taskID string) (Result, error) {
	p, err := s.portfolios.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load portfolio %d: %w", portfolioID, err)
	}

	links, err := s.portfolios.GetStrategyLinks(ctx, portfolioID)
	if err != nil {
		return Result{}, err
	}
	if len(links) == 0 {
		return Result{}, fmt.Errorf("portfolio %d: %w", portfolioID, domain.ErrNoActiveStrategies)
	}

	if taskID != "" {
		s.tasks.SetProgress(taskID, 0.2)
	}

	candidates, err := s.collectCandidates(ctx, links)
	if err != nil {
		return Result{}, err
	}
	if len(candidates) == 0 {
		return Result{}, fmt.Errorf("portfolio %d has no optimized strategies: %w", portfolioID, domain.ErrNoActiveStrategies)
	}

	returns := make([]float64, len(candidates))
	sharpes := make([]float64, len(candidates))
	risks := make([]float64, len(candidates))
	for i, c := range candidates {
		returns[i] = c.metrics.TotalReturn
		sharpes[i] = c.metrics.SharpeRatio
		risks[i] = math.Max(c.metrics.MaxDrawdown, minRisk)
	}

	if taskID != "" {
		s.tasks.SetProgress(taskID, 0.5)
	}

	schemes := map[string][]float64{
		MethodEqualWeight:    equalWeights(len(candidates)),
		MethodReturnWeighted: returnWeighted(returns),
		MethodSharpeWeighted: sharpeWeighted(sharpes),
		MethodRiskParity:     riskParity(risks),
		MethodRiskAdjusted:   riskAdjusted(returns, risks),
	}
	final := blend(p.RiskTolerance, schemes)

	if taskID != "" {
		s.tasks.SetProgress(taskID, 0.7)
	}

	allocations := make([]StrategyAllocation, 0, len(candidates))
	for i, c := range candidates {
		link := c.link
		link.Allocation = final[i]
		if err := s.portfolios.UpsertStrategyLink(ctx, link); err != nil {
			return Result{}, fmt.Errorf("failed to update allocation for strategy %d: %w", c.link.StrategyID, err)
		}
		allocations = append(allocations, StrategyAllocation{
			StrategyID:         c.link.StrategyID,
			Name:               c.name,
			PreviousAllocation: c.link.Allocation,
			NewAllocation:      final[i],
			Change:             final[i] - c.link.Allocation,
		})
	}

	metrics := make(map[string]MethodMetrics, len(schemes)+1)
	for method, weights := range schemes {
		metrics[method] = schemeMetrics(weights, returns, risks)
	}
	metrics[MethodFinal] = schemeMetrics(final, returns, risks)

	if taskID != "" {
		s.tasks.SetProgress(taskID, 0.9)
	}

	s.log.Info().
		Int64("portfolio_id", portfolioID).
		Int("strategies", len(candidates)).
		Float64("risk_tolerance", p.RiskTolerance).
		Msg("Allocation optimization completed")

	return Result{
		PortfolioID:   portfolioID,
		RiskTolerance: p.RiskTolerance,
		Method:        "risk_adjusted_blend",
		Allocations:   allocations,
		Metrics:       metrics,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// collectCandidates resolves each active strategy link to its latest
// optimization metrics. Strategies that are inactive, missing, or never
// optimized are skipped.
func (s *Service) collectCandidates(ctx context.Context, links []domain.PortfolioStrategy) ([]candidate, error) {
	var candidates []candidate

	for _, link := range links {
		if !link.IsActive {
			continue
		}

		strategy, err := s.strategies.GetStrategy(ctx, link.StrategyID)
		if errors.Is(err, domain.ErrNotFound) {
			s.log.Warn().Int64("strategy_id", link.StrategyID).Msg("Skipping missing strategy")
			continue
		}
		if err != nil {
			return nil, err
		}

		opt, err := s.strategies.LatestOptimization(ctx, link.StrategyID)
		if errors.Is(err, domain.ErrNotFound) {
			s.log.Warn().Int64("strategy_id", link.StrategyID).Msg("Skipping strategy without optimization metrics")
			continue
		}
		if err != nil {
			return nil, err
		}

		var metrics backtest.Metrics
		if err := json.Unmarshal([]byte(opt.Metrics), &metrics); err != nil {
			s.log.Warn().Err(err).Int64("strategy_id", link.StrategyID).Msg("Skipping strategy with malformed metrics")
			continue
		}

		candidates = append(candidates, candidate{
			link:    link,
			name:    strategy.Name,
			metrics: metrics,
		})
	}
	return candidates, nil
}

// schemeMetrics computes the expected return, a simple quadrature risk, and
// a Sharpe proxy for one weight vector.
func schemeMetrics(weights, returns, risks []float64) MethodMetrics {
	expectedReturn := 0.0
	riskSq := 0.0
	for i := range weights {
		expectedReturn += weights[i] * returns[i]
		riskSq += (weights[i] * risks[i]) * (weights[i] * risks[i])
	}
	risk := math.Sqrt(riskSq)

	sharpe := 0.0
	if risk > 0 {
		sharpe = expectedReturn / risk
	}
	return MethodMetrics{ExpectedReturn: expectedReturn, Risk: risk, Sharpe: sharpe}
}
