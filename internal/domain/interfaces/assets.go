package interfaces

import (
	"context"

	assets "lookback/internal/domain/entity/assets"

	"github.com/google/uuid"
)

type AssetsRepository interface {
	CreateAsset(ctx context.Context, asset *assets.Asset) error
	GetAsset(ctx context.Context, uid uuid.UUID) (*assets.Asset, error)
	GetAssetBySymbol(ctx context.Context, symbol string) (*assets.Asset, error)
	ListAssets(ctx context.Context) ([]assets.Asset, error)
	DeleteAsset(ctx context.Context, uid uuid.UUID) error
	Close()
}
