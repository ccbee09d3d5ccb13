package interfaces

import (
	"context"
	"time"

	history "lookback/internal/domain/entity/history"

	"github.com/google/uuid"
)

// BarRepository is the raw bar store behind the backfill path. It owns the
// full minute-resolution history; the engine only ever reads suffix windows
// of it and appends what the live stream delivers.
type BarRepository interface {
	AddMinuteBar(ctx context.Context, assetUID uuid.UUID, bar history.Bar) error
	AddMinuteBars(ctx context.Context, assetUID uuid.UUID, bars []history.Bar) error

	// MinuteBarsBefore returns up to limit minute bars with timestamps
	// strictly before the given instant, in ascending order.
	MinuteBarsBefore(ctx context.Context, assetUID uuid.UUID, before time.Time, limit int) ([]history.Bar, error)

	// MinuteBarsBetween returns minute bars with from <= timestamp <= to,
	// in ascending order.
	MinuteBarsBetween(ctx context.Context, assetUID uuid.UUID, from, to time.Time) ([]history.Bar, error)

	// DailyBarsBefore returns up to limit session-level bars for sessions
	// strictly before the given day, in ascending order.
	DailyBarsBefore(ctx context.Context, assetUID uuid.UUID, before time.Time, limit int) ([]history.Bar, error)

	Close()
}
