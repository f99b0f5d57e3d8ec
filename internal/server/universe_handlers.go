package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/quantfolio/internal/domain"
	"github.com/aristath/quantfolio/internal/modules/optimization"
	"github.com/aristath/quantfolio/internal/tasks"
)

// AssetStore is the asset persistence the universe handlers need.
type AssetStore interface {
	Create(ctx context.Context, asset domain.Asset) (int64, error)
	GetAsset(ctx context.Context, id int64) (domain.Asset, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Asset, error)
	Update(ctx context.Context, asset domain.Asset) error
	Delete(ctx context.Context, id int64) error
}

// StrategyStore is the strategy persistence the universe handlers need.
type StrategyStore interface {
	Create(ctx context.Context, s domain.Strategy) (int64, error)
	GetStrategy(ctx context.Context, id int64) (domain.Strategy, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Strategy, error)
	Update(ctx context.Context, s domain.Strategy) error
	Delete(ctx context.Context, id int64) error
	ListOptimizations(ctx context.Context, strategyID int64, limit int) ([]domain.StrategyOptimization, error)
}

// Optimizer runs strategy parameter optimizations.
type Optimizer interface {
	Optimize(ctx context.Context, req optimization.Request) (optimization.Result, error)
}

// UniverseHandlers serves the asset and strategy endpoints.
type UniverseHandlers struct {
	assets     AssetStore
	strategies StrategyStore
	optimizer  Optimizer
	tasks      *tasks.Store
	// optimizeTimeout bounds a background optimization run.
	optimizeTimeout time.Duration
	log             zerolog.Logger
}

// NewUniverseHandlers creates a new universe handlers instance.
func NewUniverseHandlers(assets AssetStore, strategies StrategyStore, optimizer Optimizer, taskStore *tasks.Store, log zerolog.Logger) *UniverseHandlers {
	return &UniverseHandlers{
		assets:          assets,
		strategies:      strategies,
		optimizer:       optimizer,
		tasks:           taskStore,
		optimizeTimeout: 30 * time.Minute,
		log:             log.With().Str("component", "universe_handlers").Logger(),
	}
}

// RegisterRoutes mounts the asset and strategy routes.
func (h *UniverseHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/assets", func(r chi.Router) {
		r.Get("/", h.handleListAssets)
		r.Post("/", h.handleCreateAsset)
		r.Get("/{id}", h.handleGetAsset)
		r.Put("/{id}", h.handleUpdateAsset)
		r.Delete("/{id}", h.handleDeleteAsset)
	})

	r.Route("/strategies", func(r chi.Router) {
		r.Get("/", h.handleListStrategies)
		r.Post("/", h.handleCreateStrategy)
		r.Get("/{id}", h.handleGetStrategy)
		r.Put("/{id}", h.handleUpdateStrategy)
		r.Delete("/{id}", h.handleDeleteStrategy)
		r.Post("/{id}/optimize", h.handleOptimizeStrategy)
		r.Get("/{id}/optimizations", h.handleListOptimizations)
	})
}

func (h *UniverseHandlers) handleListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.assets.List(r.Context(), queryBool(r, "active", false))
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, assets)
}

func (h *UniverseHandlers) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	var asset domain.Asset
	if err := decodeJSON(r, &asset); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if asset.Symbol == "" {
		writeError(h.log, w, http.StatusBadRequest, "symbol is required")
		return
	}

	id, err := h.assets.Create(r.Context(), asset)
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}

	created, err := h.assets.GetAsset(r.Context(), id)
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusCreated, created)
}

func (h *UniverseHandlers) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid asset id")
		return
	}

	asset, err := h.assets.GetAsset(r.Context(), id)
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, asset)
}

func (h *UniverseHandlers) handleUpdateAsset(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid asset id")
		return
	}

	var asset domain.Asset
	if err := decodeJSON(r, &asset); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	asset.ID = id

	if err := h.assets.Update(r.Context(), asset); err != nil {
		writeServiceError(h.log, w, err)
		return
	}

	updated, err := h.assets.GetAsset(r.Context(), id)
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, updated)
}

func (h *UniverseHandlers) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid asset id")
		return
	}

	if err := h.assets.Delete(r.Context(), id); err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UniverseHandlers) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	strategies, err := h.strategies.List(r.Context(), queryBool(r, "active", false))
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, strategies)
}

func (h *UniverseHandlers) handleCreateStrategy(w http.ResponseWriter, r *http.Request) {
	var strategy domain.Strategy
	if err := decodeJSON(r, &strategy); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strategy.Name == "" {
		writeError(h.log, w, http.StatusBadRequest, "name is required")
		return
	}

	id, err := h.strategies.Create(r.Context(), strategy)
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}

	created, err := h.strategies.GetStrategy(r.Context(), id)
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusCreated, created)
}

func (h *UniverseHandlers) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid strategy id")
		return
	}

	strategy, err := h.strategies.GetStrategy(r.Context(), id)
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, strategy)
}

func (h *UniverseHandlers) handleUpdateStrategy(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid strategy id")
		return
	}

	var strategy domain.Strategy
	if err := decodeJSON(r, &strategy); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	strategy.ID = id

	if err := h.strategies.Update(r.Context(), strategy); err != nil {
		writeServiceError(h.log, w, err)
		return
	}

	updated, err := h.strategies.GetStrategy(r.Context(), id)
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, updated)
}

func (h *UniverseHandlers) handleDeleteStrategy(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid strategy id")
		return
	}

	if err := h.strategies.Delete(r.Context(), id); err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type optimizeStrategyRequest struct {
	AssetIDs  []int64                    `json:"asset_ids"`
	Objective string                     `json:"objective"`
	Days      int                        `json:"days"`
	Overrides map[string]json.RawMessage `json:"parameters"`
}

// handleOptimizeStrategy starts an optimization run in the background and
// returns the task ID for polling.
func (h *UniverseHandlers) handleOptimizeStrategy(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid strategy id")
		return
	}

	// Fail fast on unknown strategies so the caller gets a 404 instead of
	// a failed task.
	if _, err := h.strategies.GetStrategy(r.Context(), id); err != nil {
		writeServiceError(h.log, w, err)
		return
	}

	var body optimizeStrategyRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &body); err != nil {
			writeError(h.log, w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	if len(body.AssetIDs) == 0 {
		assets, err := h.assets.List(r.Context(), true)
		if err != nil {
			writeServiceError(h.log, w, err)
			return
		}
		for _, a := range assets {
			body.AssetIDs = append(body.AssetIDs, a.ID)
		}
	}
	if len(body.AssetIDs) == 0 {
		writeError(h.log, w, http.StatusUnprocessableEntity, "no active assets to optimize against")
		return
	}

	taskID := uuid.NewString()
	h.tasks.Start(taskID, "optimization", id)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.optimizeTimeout)
		defer cancel()

		_, err := h.optimizer.Optimize(ctx, optimization.Request{
			StrategyID: id,
			AssetIDs:   body.AssetIDs,
			Objective:  body.Objective,
			Days:       body.Days,
			Overrides:  body.Overrides,
			TaskID:     taskID,
		})
		if err != nil {
			h.log.Error().Err(err).Int64("strategy_id", id).Str("task_id", taskID).Msg("Optimization failed")
		}
	}()

	writeJSON(h.log, w, http.StatusAccepted, map[string]string{
		"task_id": taskID,
		"status":  string(tasks.StatusStarted),
	})
}

func (h *UniverseHandlers) handleListOptimizations(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid strategy id")
		return
	}

	history, err := h.strategies.ListOptimizations(r.Context(), id, queryInt(r, "limit", 50))
	if err != nil {
		writeServiceError(h.log, w, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, history)
}
