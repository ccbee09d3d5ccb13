package interfaces

import (
	"context"
	"time"

	history "lookback/internal/domain/entity/history"
)

// TradingCalendar resolves session boundaries. It is an injected dependency
// so alternate market calendars can be substituted without touching the
// history engine.
type TradingCalendar interface {
	// SessionsBefore returns up to n sessions in ascending order, ending
	// with the latest session whose open is not after the given instant.
	// Fewer than n sessions may be returned when the calendar range runs
	// out.
	SessionsBefore(ctx context.Context, at time.Time, n int) ([]history.Session, error)

	// IsHalfDay reports whether the session on the given day closes early.
	IsHalfDay(ctx context.Context, date time.Time) (bool, error)
}
