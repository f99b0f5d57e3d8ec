package universe

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
	strategyColumns     = "id, name, description, parameters, is_active, created_at, updated_at"
	optimizationColumns = "id, strategy_id, parameters, metrics, created_at"
)

// StrategyRepository handles strategy and optimization-record database
// operations.
type StrategyRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStrategyRepository creates a new strategy repository.
func NewStrategyRepository(db *sql.DB, log zerolog.Logger) *StrategyRepository {
	return &StrategyRepository{
		db:  db,
		log: log.With().Str("repo", "strategy").Logger(),
	}
}

// Create inserts a new strategy and returns its ID. An empty parameter set
// is stored as the empty JSON object.
func (r *StrategyRepository) Create(ctx context.Context, s domain.Strategy) (int64, error) {
	if s.Parameters == "" {
		s.Parameters = "{}"
	}
	now := time.Now().UTC().Format(time.RFC3339)

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO strategies (name, description, parameters, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.Name, s.Description, s.Parameters, s.IsActive, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert strategy: %w", err)
	}
	return res.LastInsertId()
}

// GetStrategy returns a strategy by ID.
func (r *StrategyRepository) GetStrategy(ctx context.Context, id int64) (domain.Strategy, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+strategyColumns+" FROM strategies WHERE id = ?", id)
	return r.scanStrategy(row)
}

// List returns all strategies. When activeOnly is set, inactive strategies
// are excluded.
func (r *StrategyRepository) List(ctx context.Context, activeOnly bool) ([]domain.Strategy, error) {
	query := "SELECT " + strategyColumns + " FROM strategies ORDER BY name"
	if activeOnly {
		query = "SELECT " + strategyColumns + " FROM strategies WHERE is_active = 1 ORDER BY name"
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies: %w", err)
	}
	defer rows.Close()

	var strategies []domain.Strategy
	for rows.Next() {
		s, err := r.scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}
	return strategies, rows.Err()
}

// Update rewrites a strategy's mutable fields.
func (r *StrategyRepository) Update(ctx context.Context, s domain.Strategy) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE strategies SET name = ?, description = ?, parameters = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		s.Name, s.Description, s.Parameters, s.IsActive,
		time.Now().UTC().Format(time.RFC3339), s.ID)
	if err != nil {
		return fmt.Errorf("failed to update strategy %d: %w", s.ID, err)
	}
	return requireAffected(res, s.ID)
}

// UpdateStrategyParameters replaces only the parameter set of a strategy.
// The optimizer calls this after every successful run.
func (r *StrategyRepository) UpdateStrategyParameters(ctx context.Context, id int64, parameters string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE strategies SET parameters = ?, updated_at = ? WHERE id = ?",
		parameters, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to update strategy %d parameters: %w", id, err)
	}
	return requireAffected(res, id)
}

// Delete removes a strategy and its optimization history.
func (r *StrategyRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM strategy_optimizations WHERE strategy_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete optimizations for strategy %d: %w", id, err)
	}
	res, err := r.db.ExecContext(ctx, "DELETE FROM strategies WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete strategy %d: %w", id, err)
	}
	return requireAffected(res, id)
}

// CreateOptimization persists the result of one optimization run.
func (r *StrategyRepository) CreateOptimization(ctx context.Context, opt domain.StrategyOptimization) (int64, error) {
	createdAt := opt.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO strategy_optimizations (strategy_id, parameters, metrics, created_at)
		 VALUES (?, ?, ?, ?)`,
		opt.StrategyID, opt.Parameters, opt.Metrics, createdAt.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to insert optimization: %w", err)
	}
	return res.LastInsertId()
}

// LatestOptimization returns the most recent optimization record for a
// strategy.
func (r *StrategyRepository) LatestOptimization(ctx context.Context, strategyID int64) (domain.StrategyOptimization, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+optimizationColumns+` FROM strategy_optimizations
		 WHERE strategy_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, strategyID)
	return r.scanOptimization(row)
}

// ListOptimizations returns a strategy's optimization history, most recent
// first.
func (r *StrategyRepository) ListOptimizations(ctx context.Context, strategyID int64, limit int) ([]domain.StrategyOptimization, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+optimizationColumns+` FROM strategy_optimizations
		 WHERE strategy_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, strategyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query optimizations: %w", err)
	}
	defer rows.Close()

	var opts []domain.StrategyOptimization
	for rows.Next() {
		opt, err := r.scanOptimization(rows)
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}
	return opts, rows.Err()
}

func (r *StrategyRepository) scanStrategy(row rowScanner) (domain.Strategy, error) {
	var s domain.Strategy
	var createdAt, updatedAt string

	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.Parameters, &s.IsActive,
		&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Strategy{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Strategy{}, fmt.Errorf("failed to scan strategy: %w", err)
	}

	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return s, nil
}

func (r *StrategyRepository) scanOptimization(row rowScanner) (domain.StrategyOptimization, error) {
	var opt domain.StrategyOptimization
	var createdAt string

	err := row.Scan(&opt.ID, &opt.StrategyID, &opt.Parameters, &opt.Metrics, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StrategyOptimization{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.StrategyOptimization{}, fmt.Errorf("failed to scan optimization: %w", err)
	}

	opt.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return opt, nil
}
