package models

import (
	"testing"
	"time"

	domain "lookback/internal/domain/entity/assets"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAssetModelRoundTrip(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)
	asset := domain.Asset{
		UID:       uuid.New(),
		Symbol:    "XYZ",
		Name:      "XYZ Corp",
		Figi:      "BBG000XYZ000",
		CreatedAt: created,
		UpdatedAt: updated,
	}

	record := FromDomain(asset)
	require.False(t, record.DeletedAt.Valid)
	assert.Equal(t, asset, record.ToDomain())
}

func TestAssetModelCarriesSoftDelete(t *testing.T) {
	deleted := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	asset := domain.Asset{
		UID:       uuid.New(),
		Symbol:    "GONE",
		DeletedAt: &deleted,
	}

	record := FromDomain(asset)
	require.True(t, record.DeletedAt.Valid)
	assert.Equal(t, deleted, record.DeletedAt.Time)

	back := record.ToDomain()
	require.NotNil(t, back.DeletedAt)
	assert.Equal(t, deleted, *back.DeletedAt)
}

func TestAssetModelToDomainWithoutDeletion(t *testing.T) {
	record := AssetModel{
		UID:       uuid.New(),
		Symbol:    "LIVE",
		DeletedAt: gorm.DeletedAt{},
	}
	assert.Nil(t, record.ToDomain().DeletedAt)
}
