package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quantfolio/internal/domain"
	"github.com/aristath/quantfolio/internal/modules/rebalancing"
)

// PortfolioLister lists the portfolios checked for drift.
type PortfolioLister interface {
	List(ctx context.Context, activeOnly bool) ([]domain.Portfolio, error)
}

// PortfolioRebalancer checks a portfolio for drift and rebalances it.
type PortfolioRebalancer interface {
	NeedsRebalance(ctx context.Context, portfolioID int64) (bool, float64, error)
	Rebalance(ctx context.Context, req rebalancing.Request) (rebalancing.Result, error)
}

// RebalanceJob checks every active portfolio for allocation drift and
// rebalances the ones past the threshold.
type RebalanceJob struct {
	portfolios PortfolioLister
	rebalancer PortfolioRebalancer
	timeout    time.Duration
	log        zerolog.Logger
}

// NewRebalanceJob creates a new scheduled rebalance job.
func NewRebalanceJob(portfolios PortfolioLister, rebalancer PortfolioRebalancer, log zerolog.Logger) *RebalanceJob {
	return &RebalanceJob{
		portfolios: portfolios,
		rebalancer: rebalancer,
		timeout:    30 * time.Minute,
		log:        log.With().Str("job", "rebalance_check").Logger(),
	}
}

// Name returns the job name.
func (j *RebalanceJob) Name() string {
	return "rebalance_check"
}

// Run checks each active portfolio and rebalances those that drifted. A
// failing portfolio is logged and skipped.
func (j *RebalanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	portfolios, err := j.portfolios.List(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to list portfolios: %w", err)
	}

	rebalanced := 0
	for _, p := range portfolios {
		needs, deviation, err := j.rebalancer.NeedsRebalance(ctx, p.ID)
		if err != nil {
			j.log.Error().Err(err).Int64("portfolio_id", p.ID).Msg("Drift check failed")
			continue
		}
		if !needs {
			continue
		}

		j.log.Info().
			Int64("portfolio_id", p.ID).
			Float64("max_deviation_pct", deviation).
			Msg("Portfolio drifted past threshold, rebalancing")

		if _, err := j.rebalancer.Rebalance(ctx, rebalancing.Request{PortfolioID: p.ID}); err != nil {
			j.log.Error().Err(err).Int64("portfolio_id", p.ID).Msg("Rebalance failed")
			continue
		}
		rebalanced++
	}

	j.log.Info().
		Int("portfolios", len(portfolios)).
		Int("rebalanced", rebalanced).
		Msg("Rebalance check finished")
	return nil
}
