package assets

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "lookback/internal/domain/entity/assets"
	"lookback/internal/infrastructure/assets/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrAssetNotFound = errors.New("asset not found")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

func (r *Repository) CreateAsset(ctx context.Context, asset *domain.Asset) error {
	if asset == nil {
		return errors.New("asset is nil")
	}
	if asset.UID == uuid.Nil {
		asset.UID = uuid.New()
	}
	now := time.Now().UTC()
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = now
	}
	asset.UpdatedAt = now

	const query = `
		INSERT INTO assets (uid, symbol, name, figi, created_at, updated_at, deleted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name,
			figi = EXCLUDED.figi,
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL
		RETURNING uid, symbol, name, figi, created_at, updated_at, deleted_at`

	record := models.FromDomain(*asset)
	row := r.pool.QueryRow(ctx, query,
		record.UID,
		record.Symbol,
		record.Name,
		record.Figi,
		record.CreatedAt,
		record.UpdatedAt,
		record.DeletedAt,
	)
	saved, err := scanAsset(row)
	if err != nil {
		return err
	}
	*asset = saved.ToDomain()
	return nil
}

func (r *Repository) GetAsset(ctx context.Context, uid uuid.UUID) (*domain.Asset, error) {
	const query = `
		SELECT uid, symbol, name, figi, created_at, updated_at, deleted_at
		FROM assets
		WHERE uid = $1 AND deleted_at IS NULL`

	return r.queryAsset(ctx, query, uid)
}

func (r *Repository) GetAssetBySymbol(ctx context.Context, symbol string) (*domain.Asset, error) {
	const query = `
		SELECT uid, symbol, name, figi, created_at, updated_at, deleted_at
		FROM assets
		WHERE symbol = $1 AND deleted_at IS NULL`

	return r.queryAsset(ctx, query, symbol)
}

func (r *Repository) queryAsset(ctx context.Context, query string, arg any) (*domain.Asset, error) {
	record, err := scanAsset(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssetNotFound
		}
		return nil, err
	}
	asset := record.ToDomain()
	return &asset, nil
}

func (r *Repository) ListAssets(ctx context.Context) ([]domain.Asset, error) {
	const query = `
		SELECT uid, symbol, name, figi, created_at, updated_at, deleted_at
		FROM assets
		WHERE deleted_at IS NULL
		ORDER BY symbol ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.Asset
	for rows.Next() {
		record, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, record.ToDomain())
	}
	return list, rows.Err()
}

// DeleteAsset soft-deletes so historical bars keep a resolvable owner.
func (r *Repository) DeleteAsset(ctx context.Context, uid uuid.UUID) error {
	const query = `
		UPDATE assets
		SET deleted_at = $2
		WHERE uid = $1 AND deleted_at IS NULL`

	cmdTag, err := r.pool.Exec(ctx, query, uid, time.Now().UTC())
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrAssetNotFound
	}
	return nil
}

func scanAsset(row pgx.Row) (models.AssetModel, error) {
	var record models.AssetModel
	if err := row.Scan(
		&record.UID,
		&record.Symbol,
		&record.Name,
		&record.Figi,
		&record.CreatedAt,
		&record.UpdatedAt,
		&record.DeletedAt,
	); err != nil {
		return models.AssetModel{}, err
	}
	return record, nil
}
