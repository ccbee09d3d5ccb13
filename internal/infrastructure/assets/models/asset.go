package models

import (
	"time"

	domain "lookback/internal/domain/entity/assets"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AssetModel mirrors the assets table. The gorm tags document the schema for
// migration tooling; runtime access goes through pgx.
type AssetModel struct {
	UID       uuid.UUID      `gorm:"primaryKey;column:uid;type:uuid;not null"`
	Symbol    string         `gorm:"column:symbol;type:varchar(50);not null;uniqueIndex"`
	Name      string         `gorm:"column:name;type:varchar(255)"`
	Figi      string         `gorm:"column:figi;type:varchar(255);index"`
	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:CURRENT_TIMESTAMP"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;type:timestamp;index"`
}

func (AssetModel) TableName() string {
	return "assets"
}

func (m AssetModel) ToDomain() domain.Asset {
	asset := domain.Asset{
		UID:       m.UID,
		Symbol:    m.Symbol,
		Name:      m.Name,
		Figi:      m.Figi,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.DeletedAt.Valid {
		t := m.DeletedAt.Time
		asset.DeletedAt = &t
	}
	return asset
}

func FromDomain(asset domain.Asset) AssetModel {
	m := AssetModel{
		UID:       asset.UID,
		Symbol:    asset.Symbol,
		Name:      asset.Name,
		Figi:      asset.Figi,
		CreatedAt: asset.CreatedAt,
		UpdatedAt: asset.UpdatedAt,
	}
	if asset.DeletedAt != nil {
		m.DeletedAt = gorm.DeletedAt{Time: *asset.DeletedAt, Valid: true}
	}
	return m
}
