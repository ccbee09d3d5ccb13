package interfaces

import (
	"context"

	history "lookback/internal/domain/entity/history"

	"github.com/google/uuid"
)

// WindowSnapshot is the persisted form of one rolling buffer.
type WindowSnapshot struct {
	AssetUID  uuid.UUID
	Frequency history.Frequency
	Bars      []history.Bar
}

// WindowCheckpoint persists rolling buffer contents so a long-running process
// can resume without re-backfilling. Checkpointing is optional; the engine
// works without it.
type WindowCheckpoint interface {
	SaveWindows(ctx context.Context, snapshots []WindowSnapshot) error
	LoadWindows(ctx context.Context) ([]WindowSnapshot, error)
}
