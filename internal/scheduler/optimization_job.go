package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quantfolio/internal/domain"
	"github.com/aristath/quantfolio/internal/modules/optimization"
)

// StrategyLister lists the strategies eligible for scheduled optimization.
type StrategyLister interface {
	List(ctx context.Context, activeOnly bool) ([]domain.Strategy, error)
}

// AssetLister lists the assets a scheduled optimization runs against.
type AssetLister interface {
	List(ctx context.Context, activeOnly bool) ([]domain.Asset, error)
}

// StrategyOptimizer runs a parameter optimization for one strategy.
type StrategyOptimizer interface {
	Optimize(ctx context.Context, req optimization.Request) (optimization.Result, error)
}

// OptimizationJob re-optimizes every active strategy against the active
// asset universe. Intended to run nightly after market close.
type OptimizationJob struct {
	strategies StrategyLister
	assets     AssetLister
	optimizer  StrategyOptimizer
	days       int
	timeout    time.Duration
	log        zerolog.Logger
}

// NewOptimizationJob creates a new scheduled optimization job.
func NewOptimizationJob(strategies StrategyLister, assets AssetLister, optimizer StrategyOptimizer, days int, log zerolog.Logger) *OptimizationJob {
	return &OptimizationJob{
		strategies: strategies,
		assets:     assets,
		optimizer:  optimizer,
		days:       days,
		timeout:    2 * time.Hour,
		log:        log.With().Str("job", "optimization").Logger(),
	}
}

// Name returns the job name.
func (j *OptimizationJob) Name() string {
	return "optimization"
}

// Run optimizes each active strategy in turn. A failed strategy is logged
// and skipped so one bad strategy cannot block the rest of the batch.
func (j *OptimizationJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	strategies, err := j.strategies.List(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to list strategies: %w", err)
	}
	if len(strategies) == 0 {
		j.log.Info().Msg("No active strategies to optimize")
		return nil
	}

	assets, err := j.assets.List(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to list assets: %w", err)
	}
	if len(assets) == 0 {
		j.log.Info().Msg("No active assets, skipping optimization")
		return nil
	}

	assetIDs := make([]int64, len(assets))
	for i, a := range assets {
		assetIDs[i] = a.ID
	}

	failed := 0
	for _, strategy := range strategies {
		_, err := j.optimizer.Optimize(ctx, optimization.Request{
			StrategyID: strategy.ID,
			AssetIDs:   assetIDs,
			Objective:  optimization.ObjectiveSharpeRatio,
			Days:       j.days,
		})
		if err != nil {
			j.log.Error().Err(err).Int64("strategy_id", strategy.ID).Msg("Strategy optimization failed")
			failed++
		}
	}

	j.log.Info().
		Int("strategies", len(strategies)).
		Int("failed", failed).
		Msg("Nightly optimization finished")

	if failed == len(strategies) {
		return fmt.Errorf("all %d strategy optimizations failed", failed)
	}
	return nil
}
