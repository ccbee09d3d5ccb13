package assets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "lookback/internal/domain/entity/assets"
	interfaces "lookback/internal/domain/interfaces"

	"github.com/google/uuid"
)

var ErrNilAsset = errors.New("asset is nil")

type Service struct {
	repo interfaces.AssetsRepository
}

func NewService(repo interfaces.AssetsRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreateAsset(ctx context.Context, asset *domain.Asset) error {
	if asset == nil {
		return ErrNilAsset
	}
	if asset.Symbol == "" {
		return errors.New("asset symbol is required")
	}
	return s.repo.CreateAsset(ctx, asset)
}

func (s *Service) GetAsset(ctx context.Context, uid uuid.UUID) (*domain.Asset, error) {
	return s.repo.GetAsset(ctx, uid)
}

func (s *Service) GetAssetBySymbol(ctx context.Context, symbol string) (*domain.Asset, error) {
	return s.repo.GetAssetBySymbol(ctx, symbol)
}

func (s *Service) ListAssets(ctx context.Context) ([]domain.Asset, error) {
	return s.repo.ListAssets(ctx)
}

// ResolveSymbols maps a comma-separated symbol list onto stored assets,
// preserving request order.
func (s *Service) ResolveSymbols(ctx context.Context, symbolList string) ([]domain.Asset, error) {
	var resolved []domain.Asset
	for _, raw := range strings.Split(symbolList, ",") {
		symbol := strings.TrimSpace(raw)
		if symbol == "" {
			continue
		}
		asset, err := s.repo.GetAssetBySymbol(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("resolve symbol %q: %w", symbol, err)
		}
		resolved = append(resolved, *asset)
	}
	return resolved, nil
}

func (s *Service) DeleteAsset(ctx context.Context, uid uuid.UUID) error {
	return s.repo.DeleteAsset(ctx, uid)
}

func (s *Service) Close() {
	s.repo.Close()
}
