// Package universe manages the tradable assets and the strategies that trade
// them, backed by sqlite.
package universe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quantfolio/internal/domain"
)

const assetColumns = "id, symbol, name, yahoo_symbol, asset_class, is_active, created_at, updated_at"

// AssetRepository handles asset database operations.
type AssetRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewAssetRepository creates a new asset repository.
func NewAssetRepository(db *sql.DB, log zerolog.Logger) *AssetRepository {
	return &AssetRepository{
		db:  db,
		log: log.With().Str("repo", "asset").Logger(),
	}
}

// Create inserts a new asset and returns its ID. Symbols are stored
// uppercased.
func (r *AssetRepository) Create(ctx context.Context, asset domain.Asset) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO assets (symbol, name, yahoo_symbol, asset_class, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		strings.ToUpper(strings.TrimSpace(asset.Symbol)), asset.Name, asset.YahooSymbol,
		asset.AssetClass, asset.IsActive, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert asset: %w", err)
	}
	return res.LastInsertId()
}

// GetAsset returns an asset by ID.
func (r *AssetRepository) GetAsset(ctx context.Context, id int64) (domain.Asset, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+assetColumns+" FROM assets WHERE id = ?", id)
	return r.scanAsset(row)
}

// GetBySymbol returns an asset by symbol.
func (r *AssetRepository) GetBySymbol(ctx context.Context, symbol string) (domain.Asset, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+assetColumns+" FROM assets WHERE symbol = ?",
		strings.ToUpper(strings.TrimSpace(symbol)))
	return r.scanAsset(row)
}

// List returns all assets. When activeOnly is set, inactive assets are
// excluded.
func (r *AssetRepository) List(ctx context.Context, activeOnly bool) ([]domain.Asset, error) {
	query := "SELECT " + assetColumns + " FROM assets ORDER BY symbol"
	if activeOnly {
		query = "SELECT " + assetColumns + " FROM assets WHERE is_active = 1 ORDER BY symbol"
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		asset, err := r.scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// Update rewrites an asset's mutable fields.
func (r *AssetRepository) Update(ctx context.Context, asset domain.Asset) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE assets SET name = ?, yahoo_symbol = ?, asset_class = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		asset.Name, asset.YahooSymbol, asset.AssetClass, asset.IsActive,
		time.Now().UTC().Format(time.RFC3339), asset.ID)
	if err != nil {
		return fmt.Errorf("failed to update asset %d: %w", asset.ID, err)
	}
	return requireAffected(res, asset.ID)
}

// Delete removes an asset.
func (r *AssetRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM assets WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete asset %d: %w", id, err)
	}
	return requireAffected(res, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *AssetRepository) scanAsset(row rowScanner) (domain.Asset, error) {
	var a domain.Asset
	var createdAt, updatedAt string

	err := row.Scan(&a.ID, &a.Symbol, &a.Name, &a.YahooSymbol, &a.AssetClass,
		&a.IsActive, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Asset{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Asset{}, fmt.Errorf("failed to scan asset: %w", err)
	}

	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return a, nil
}

// requireAffected converts a zero-row write into ErrNotFound.
func requireAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("record %d: %w", id, domain.ErrNotFound)
	}
	return nil
}
