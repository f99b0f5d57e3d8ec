// Package optimization tunes strategy signal parameters with a
// Tree-structured Parzen Estimator search over backtest results.
package optimization

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quantfolio/internal/domain"
	"github.com/aristath/quantfolio/internal/modules/backtest"
	"github.com/aristath/quantfolio/internal/modules/signals"
	"github.com/aristath/quantfolio/internal/progress"
	"github.com/aristath/quantfolio/internal/tasks"
)

// Objective names accepted by a Request. Anything else falls back to the
// Sharpe ratio.
const (
	ObjectiveSharpeRatio = "sharpe_ratio"
	ObjectiveTotalReturn = "total_return"
	ObjectiveMaxDrawdown = "max_drawdown"
	ObjectiveWinRate     = "win_rate"
)

// StrategyStore is the strategy persistence the optimizer needs.
type StrategyStore interface {
	GetStrategy(ctx context.Context, id int64) (domain.Strategy, error)
	UpdateStrategyParameters(ctx context.Context, id int64, parameters string) error
	CreateOptimization(ctx context.Context, opt domain.StrategyOptimization) (int64, error)
}

// AssetStore resolves asset IDs to assets.
type AssetStore interface {
	GetAsset(ctx context.Context, id int64) (domain.Asset, error)
}

// MarketDataProvider supplies daily price history for a symbol.
type MarketDataProvider interface {
	DailyBars(ctx context.Context, symbol string, days int) ([]domain.PriceBar, error)
}

// Request describes one optimization run. Overrides pin parameter values by
// their JSON name; pinned dimensions are excluded from the search space.
type Request struct {
	StrategyID int64                      `json:"strategy_id"`
	AssetIDs   []int64                    `json:"asset_ids"`
	Objective  string                     `json:"objective"`
	Days       int                        `json:"days"`
	Overrides  map[string]json.RawMessage `json:"parameters,omitempty"`
	TaskID     string                     `json:"-"`
	Progress   progress.Callback          `json:"-"`
}

// Result is the outcome of a completed optimization run. Metrics are those
// of the best trial as evaluated during the search, not recomputed.
type Result struct {
	StrategyID  int64              `json:"strategy_id"`
	Parameters  signals.Parameters `json:"parameters"`
	Metrics     backtest.Metrics   `json:"metrics"`
	Evaluations int                `json:"evaluations"`
}

// Service runs strategy optimizations.
type Service struct {
	strategies StrategyStore
	assets     AssetStore
	market     MarketDataProvider
	engine     *backtest.Engine
	tasks      *tasks.Store
	log        zerolog.Logger
	newRNG     func() *rand.Rand
}

// NewService creates a new optimization service.
func NewService(strategies StrategyStore, assets AssetStore, market MarketDataProvider, engine *backtest.Engine, taskStore *tasks.Store, log zerolog.Logger) *Service {
	return &Service{
		strategies: strategies,
		assets:     assets,
		market:     market,
		engine:     engine,
		tasks:      taskStore,
		log:        log.With().Str("service", "optimization").Logger(),
		newRNG: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}
}

// maxEvaluations scales the search budget with the number of assets.
func maxEvaluations(assetCount int) int {
	evals := 10 * assetCount
	if evals < 20 {
		evals = 20
	}
	if evals > 100 {
		evals = 100
	}
	return evals
}

// Optimize runs the TPE search for a strategy and persists the winning
// parameter set. When the request carries a task ID the run's status and
// progress are mirrored into the task store.
func (s *Service) Optimize(ctx context.Context, req Request) (Result, error) {
	if req.TaskID != "" {
		s.tasks.SetRunning(req.TaskID)
	}

	result, err := s.optimize(ctx, req)
	if req.TaskID != "" {
		if err != nil {
			s.tasks.Fail(req.TaskID, err.Error())
		} else {
			s.tasks.Complete(req.TaskID, result)
		}
	}
	return result, err
}

func (s *Service) optimize(ctx context.Context, req Request) (Result, error) {
	strategy, err := s.strategies.GetStrategy(ctx, req.StrategyID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load strategy %d: %w", req.StrategyID, err)
	}

	var assetList []domain.Asset
	for _, id := range req.AssetIDs {
		asset, err := s.assets.GetAsset(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Int64("asset_id", id).Msg("Skipping asset")
			continue
		}
		assetList = append(assetList, asset)
	}
	if len(assetList) == 0 {
		return Result{}, fmt.Errorf("no valid assets for optimization of strategy %d: %w", req.StrategyID, domain.ErrNotFound)
	}

	days := req.Days
	if days <= 0 {
		days = 30
	}

	var datasets [][]domain.PriceBar
	for _, asset := range assetList {
		symbol := asset.YahooSymbol
		if symbol == "" {
			symbol = asset.Symbol
		}
		bars, err := s.market.DailyBars(ctx, symbol, days)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch market data")
			continue
		}
		if len(bars) == 0 {
			continue
		}
		datasets = append(datasets, bars)
	}
	if len(datasets) == 0 {
		return Result{}, fmt.Errorf("no market data available for optimization of strategy %d: %w", req.StrategyID, domain.ErrNoData)
	}

	base, err := signals.ParseParameters(strategy.Parameters)
	if err != nil {
		return Result{}, err
	}
	base, err = mergeOverrides(base, req.Overrides)
	if err != nil {
		return Result{}, err
	}

	space := searchSpace()
	if len(req.Overrides) > 0 {
		filtered := space[:0]
		for _, d := range space {
			if _, pinned := req.Overrides[d.name]; !pinned {
				filtered = append(filtered, d)
			}
		}
		space = filtered
	}

	maxEvals := maxEvaluations(len(assetList))
	sampler := newTPESampler(space, s.newRNG())
	log := &trialLog{}

	s.log.Info().
		Int64("strategy_id", req.StrategyID).
		Int("assets", len(datasets)).
		Int("max_evals", maxEvals).
		Str("objective", req.Objective).
		Msg("Starting optimization")

	for i := 0; i < maxEvals; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		sample := sampler.suggest(log.all)
		metrics := s.evaluate(datasets, applySample(base, sample))
		log.add(Trial{
			Params:  sample,
			Loss:    lossFor(req.Objective, metrics),
			Metrics: metrics,
		})

		if req.TaskID != "" {
			s.tasks.SetProgress(req.TaskID, float64(i+1)/float64(maxEvals))
		}
		progress.Call(req.Progress, i+1, maxEvals)
	}

	best, _ := log.best()
	bestParams := applySample(base, best.Params)

	encoded, err := bestParams.Encode()
	if err != nil {
		return Result{}, err
	}
	metricsJSON, err := json.Marshal(best.Metrics)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode metrics: %w", err)
	}

	if _, err := s.strategies.CreateOptimization(ctx, domain.StrategyOptimization{
		StrategyID: req.StrategyID,
		Parameters: encoded,
		Metrics:    string(metricsJSON),
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		return Result{}, fmt.Errorf("failed to persist optimization: %w", err)
	}
	if err := s.strategies.UpdateStrategyParameters(ctx, req.StrategyID, encoded); err != nil {
		return Result{}, fmt.Errorf("failed to update strategy parameters: %w", err)
	}

	s.log.Info().
		Int64("strategy_id", req.StrategyID).
		Float64("loss", best.Loss).
		Msg("Optimization completed")

	return Result{
		StrategyID:  req.StrategyID,
		Parameters:  bestParams,
		Metrics:     best.Metrics,
		Evaluations: maxEvals,
	}, nil
}

// evaluate backtests one parameter set across every asset dataset and
// averages the metrics. Assets whose backtest fails are skipped; if every
// asset fails the zero metrics stand, which scores as a neutral trial.
func (s *Service) evaluate(datasets [][]domain.PriceBar, params signals.Parameters) backtest.Metrics {
	var sum backtest.Metrics
	n := 0

	for _, bars := range datasets {
		result, err := s.engine.Run(bars, params)
		if err != nil {
			s.log.Debug().Err(err).Msg("Backtest failed for trial")
			continue
		}
		sum.SharpeRatio += result.Metrics.SharpeRatio
		sum.TotalReturn += result.Metrics.TotalReturn
		sum.MaxDrawdown += result.Metrics.MaxDrawdown
		sum.WinRate += result.Metrics.WinRate
		n++
	}

	if n == 0 {
		return backtest.Metrics{}
	}
	return backtest.Metrics{
		SharpeRatio: sum.SharpeRatio / float64(n),
		TotalReturn: sum.TotalReturn / float64(n),
		MaxDrawdown: sum.MaxDrawdown / float64(n),
		WinRate:     sum.WinRate / float64(n),
	}
}

// lossFor maps the averaged metrics to a minimized loss. Maximized
// objectives are negated; drawdown is minimized directly.
func lossFor(objective string, m backtest.Metrics) float64 {
	switch objective {
	case ObjectiveTotalReturn:
		return -m.TotalReturn
	case ObjectiveMaxDrawdown:
		return m.MaxDrawdown
	case ObjectiveWinRate:
		return -m.WinRate
	default:
		return -m.SharpeRatio
	}
}

// mergeOverrides overlays raw JSON parameter overrides onto a base set,
// re-deriving fractal lags when the window was pinned without them.
func mergeOverrides(base signals.Parameters, overrides map[string]json.RawMessage) (signals.Parameters, error) {
	if len(overrides) == 0 {
		return base, nil
	}

	raw, err := json.Marshal(base)
	if err != nil {
		return base, fmt.Errorf("failed to encode base parameters: %w", err)
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(raw, &merged); err != nil {
		return base, err
	}
	for k, v := range overrides {
		merged[k] = v
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return base, err
	}

	var p signals.Parameters
	if err := json.Unmarshal(out, &p); err != nil {
		return base, fmt.Errorf("invalid parameter overrides: %w", err)
	}
	if _, ok := overrides["fractal_window"]; ok {
		if _, lagsPinned := overrides["fractal_lags"]; !lagsPinned {
			p.FractalLags = signals.FractalLagsFor(p.FractalWindow)
		}
	}
	return p, nil
}
