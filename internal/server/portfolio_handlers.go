package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/quantfolio/internal/domain"
	"github.com/aristath/quantfolio/internal/modules/allocation"
	"github.com/aristath/quantfolio/internal/modules/rebalancing"
	"github.com/aristath/quantfolio/internal/tasks"
)

// PortfolioStore is the portfolio persistence the portfolio handlers need.
type PortfolioStore interface {
	Create(ctx context.Context, p domain.Portfolio) (int64, error)
	GetPortfolio(ctx context.Context, id int64) (domain.Portfolio, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Portfolio, error)
	Update(ctx context.Context, p domain.Portfolio) error
	UpsertHolding(ctx context.Context, h domain.PortfolioAsset) error
	GetHoldings(ctx context.Context, portfolioID int64) ([]domain.PortfolioAsset, error)
	UpsertStrategyLink(ctx context.Context, link domain.PortfolioStrategy) error
	GetStrategyLinks(ctx context.Context, portfolioID int64) ([]domain.PortfolioStrategy, error)
	ListTrades(ctx context.Context, portfolioID int64, since time.Time) ([]domain.Trade, error)
	LatestPerformance(ctx context.Context, portfolioID int64) (domain.PerformanceMetric, error)
	ListPerformance(ctx context.Context, portfolioID int64, limit int) ([]domain.PerformanceMetric, error)
}

// Allocator recomputes strategy weights for a portfolio.
type Allocator interface {
	Optimize(ctx context.Context, portfolioID int64, taskID string) (allocation.Result, error)
}

// Rebalancer checks portfolio drift and executes rebalance trades.
type Rebalancer interface {
	NeedsRebalance(ctx context.Context, portfolioID int64) (bool, float64, error)
	Rebalance(ctx context.Context, req rebalancing.Request) (rebalancing.Result, error)
}

// PerformanceCalculator computes and persists a performance snapshot.
type PerformanceCalculator interface {
	Calculate(ctx context.Context, portfolioID int64) (domain.PerformanceMetric, error)
}

// PortfolioHandlers serves the portfolio endpoints.
type PortfolioHandlers struct {
	portfolios  PortfolioStore
	allocator   Allocator
	rebalancer  Rebalancer
	performance PerformanceCalculator
	tasks       *tasks.Store
	taskTimeout time.Duration
	log         zerolog.Logger
}

// NewPortfolioHandlers creates a new portfolio handlers instance.
func NewPortfolioHandlers(portfolios PortfolioStore, allocator Allocator, rebalancer Rebalancer, performance PerformanceCalculator, taskStore *tasks.Store, log zerolog.Logger) *PortfolioHandlers {
	return &PortfolioHandlers{
		portfolios:  portfolios,
		allocator:   allocator,
		rebalancer:  rebalancer,
		performance: performance,
		tasks:       taskStore,
		taskTimeout: 10 * time.Minute,
		log:         log.With().Str("component", "portfolio_handlers").Logger(),
	}
}

// RegisterRoutes mounts the portfolio routes.
func (h *PortfolioHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/portfolios", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Put("/{id}", h.handleUpdate)

		r.Get("/{id}/holdings", h.handleGetHoldings)
		r.Put("/{id}/holdings", h.handleUpsertHolding)
		r.Get("/{id}/strategies", h.handleGetStrategyLinks)
		r.Put("/{id}/strategies", h.handleUpsertStrategyLink)

		r.Post("/{id}/allocation/optimize", h.handleOptimizeAllocation)
		r.Get("/{id}/rebalance/check", h.handleRebalanceCheck)
		r.Post("/{id}/rebalance", h.handleRebalance)

		r.Get("/{id}/performance", h.handleLatestPerformance)
		r.Get("/{id}/performance/history", h.handlePerformanceHistory)
		r.Post("/{id}/performance/calculate", h.handleCalculatePerformance)
		r.Get("/{id}/trades", h.handleListTrades)
	})
}

func (h *PortfolioHandlers) handleList(w http.ResponseWriter, r *http.Request) {
	portfolios, err := h.portfolios.List(r.Context(), queryBool(r, "active", false))
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, portfolios)
}

func (h *PortfolioHandlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	var p domain.Portfolio
	if err := decodeJSON(r, &p); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if p.Name == "" {
		writeError(h.log, w, http.StatusBadRequest, "name is required")
		return
	}
	if p.RiskTolerance < 0 || p.RiskTolerance > 1 {
		writeError(h.log, w, http.StatusBadRequest, "risk_tolerance must be between 0 and 1")
		return
	}

	id, err := h.portfolios.Create(r.Context(), p)
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}

	created, err := h.portfolios.GetPortfolio(r.Context(), id)
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusCreated, created)
}

func (h *PortfolioHandlers) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid portfolio id")
		return
	}

	p, err := h.portfolios.GetPortfolio(r.Context(), id)
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, p)
}

func (h *PortfolioHandlers) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid portfolio id")
		return
	}

	var p domain.Portfolio
	if err := decodeJSON(r, &p); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if p.RiskTolerance < 0 || p.RiskTolerance > 1 {
		writeError(h.log, w, http.StatusBadRequest, "risk_tolerance must be between 0 and 1")
		return
	}
	p.ID = id

	if err := h.portfolios.Update(r.Context(), p); err != nil {
		writeServiceError(h.log, w, err)
		return
	}

	updated, err := h.portfolios.GetPortfolio(r.Context(), id)
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, updated)
}

func (h *PortfolioHandlers) handleGetHoldings(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid portfolio id")
		return
	}

	holdings, err := h.portfolios.GetHoldings(r.Context(), id)
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, holdings)
}

func (h *PortfolioHandlers) handleUpsertHolding(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid portfolio id")
		return
	}

	var holding domain.PortfolioAsset
	if err := decodeJSON(r, &holding); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if holding.AssetID == 0 {
		writeError(h.log, w, http.StatusBadRequest, "asset_id is required")
		return
	}
	holding.PortfolioID = id

	if err := h.portfolios.UpsertHolding(r.Context(), holding); err != nil {
		writeServiceError(h.log, w, err)
		return
	}

	holdings, err := h.portfolios.GetHoldings(r.Context(), id)
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, holdings)
}

func (h *PortfolioHandlers) handleGetStrategyLinks(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid portfolio id")
		return
	}

	links, err := h.portfolios.GetStrategyLinks(r.Context(), id)
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, links)
}

func (h *PortfolioHandlers) handleUpsertStrategyLink(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid portfolio id")
		return
	}

	var link domain.PortfolioStrategy
	if err := decodeJSON(r, &link); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if link.StrategyID == 0 {
		writeError(h.log, w, http.StatusBadRequest, "strategy_id is required")
		return
	}
	if link.Allocation < 0 || link.Allocation > 1 {
		writeError(h.log, w, http.StatusBadRequest, "allocation must be between 0 and 1")
		return
	}
	link.PortfolioID = id

	if err := h.portfolios.UpsertStrategyLink(r.Context(), link); err != nil {
		writeServiceError(h.log, w, err)
		return
	}

	links, err := h.portfolios.GetStrategyLinks(r.Context(), id)
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, links)
}

// handleOptimizeAllocation starts a strategy weight optimization in the
// background and returns the task ID for polling.
func (h *PortfolioHandlers) handleOptimizeAllocation(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid portfolio id")
		return
	}

	if _, err := h.portfolios.GetPortfolio(r.Context(), id); err != nil {
		writeServiceError(h.log, w, err)
		return
	}

	taskID := uuid.NewString()
	h.tasks.Start(taskID, "allocation", id)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.taskTimeout)
		defer cancel()

		if _, err := h.allocator.Optimize(ctx, id, taskID); err != nil {
			h.log.Error().Err(err).Int64("portfolio_id", id).Str("task_id", taskID).Msg("Allocation optimization failed")
		}
	}()

	writeJSON(h.log, w, http.StatusAccepted, map[string]string{
		"task_id": taskID,
		"status":  string(tasks.StatusStarted),
	})
}

func (h *PortfolioHandlers) handleRebalanceCheck(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid portfolio id")
		return
	}

	needs, deviation, err := h.rebalancer.NeedsRebalance(r.Context(), id)
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, map[string]any{
		"portfolio_id":      id,
		"needs_rebalance":   needs,
		"max_deviation_pct": deviation,
	})
}

type rebalanceRequest struct {
	MaxTrades     int     `json:"max_trades"`
	TradeLimitPct float64 `json:"trade_limit_pct"`
}

// handleRebalance starts a rebalance run in the background and returns the
// task ID for polling.
func (h *PortfolioHandlers) handleRebalance(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid portfolio id")
		return
	}

	if _, err := h.portfolios.GetPortfolio(r.Context(), id); err != nil {
		writeServiceError(h.log, w, err)
		return
	}

	var body rebalanceRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &body); err != nil {
			writeError(h.log, w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	if body.MaxTrades < 0 {
		writeError(h.log, w, http.StatusBadRequest, "max_trades must not be negative")
		return
	}
	if body.TradeLimitPct < 0 || body.TradeLimitPct > 100 {
		writeError(h.log, w, http.StatusBadRequest, "trade_limit_pct must be between 0 and 100")
		return
	}

	taskID := uuid.NewString()
	h.tasks.Start(taskID, "rebalance", id)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.taskTimeout)
		defer cancel()

		_, err := h.rebalancer.Rebalance(ctx, rebalancing.Request{
			PortfolioID:   id,
			MaxTrades:     body.MaxTrades,
			TradeLimitPct: body.TradeLimitPct,
			TaskID:        taskID,
		})
		if err != nil {
			h.log.Error().Err(err).Int64("portfolio_id", id).Str("task_id", taskID).Msg("Rebalance failed")
		}
	}()

	writeJSON(h.log, w, http.StatusAccepted, map[string]string{
		"task_id": taskID,
		"status":  string(tasks.StatusStarted),
	})
}

func (h *PortfolioHandlers) handleLatestPerformance(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid portfolio id")
		return
	}

	metric, err := h.portfolios.LatestPerformance(r.Context(), id)
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, metric)
}

func (h *PortfolioHandlers) handlePerformanceHistory(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid portfolio id")
		return
	}

	history, err := h.portfolios.ListPerformance(r.Context(), id, queryInt(r, "limit", 100))
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, history)
}

func (h *PortfolioHandlers) handleCalculatePerformance(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid portfolio id")
		return
	}

	metric, err := h.performance.Calculate(r.Context(), id)
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, metric)
}

func (h *PortfolioHandlers) handleListTrades(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid portfolio id")
		return
	}

	days := queryInt(r, "days", 30)
	since := time.Now().UTC().AddDate(0, 0, -days)

	trades, err := h.portfolios.ListTrades(r.Context(), id, since)
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, trades)
}
