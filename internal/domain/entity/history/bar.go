package history

import (
	"math"
	"time"
)

// Frequency identifies the native granularity of a bar sequence.
type Frequency string

const (
	FrequencyMinute Frequency = "minute"
	FrequencyDay    Frequency = "day"
)

// FillPolicy controls how grid points without an observed bar are resolved
// when a sequence is reindexed onto a calendar grid.
type FillPolicy string

const (
	// FillCarryForward substitutes the most recent prior observed value.
	FillCarryForward FillPolicy = "carry_forward"
	// FillPreserveGaps keeps the missing-value sentinel, making data
	// outages visible to the caller.
	FillPreserveGaps FillPolicy = "preserve_gaps"
)

// Missing returns the missing-value sentinel.
func Missing() float64 {
	return math.NaN()
}

// IsMissing reports whether v is the missing-value sentinel.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Bar is a single OHLCV observation. Minute bars are stamped with the end of
// their trading minute; session-level bars carry the session date at midnight
// UTC. A bar is immutable once recorded.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}
