package history

import (
	"time"

	domain "lookback/internal/domain/entity/history"
)

// FillSeries reindexes a bar sequence onto a calendar grid and extracts one
// field per grid point. Bars and grid must both be in ascending timestamp
// order. Grid points with an observed bar take that bar's value. For the
// rest:
//
//   - FillCarryForward substitutes the most recent prior observed value,
//     including observations that precede the grid itself; with no prior
//     observation anywhere the missing sentinel remains.
//   - FillPreserveGaps substitutes the missing sentinel.
//
// The grid is already clamped to the current clock by the caller, so no
// filled value can derive from a timestamp later than the clock.
func FillSeries(bars []domain.Bar, grid []time.Time, field FieldFunc, policy domain.FillPolicy) []float64 {
	out := make([]float64, len(grid))
	carry := domain.Missing()
	j := 0
	for i, ts := range grid {
		for j < len(bars) && bars[j].Timestamp.Before(ts) {
			carry = field(bars[j])
			j++
		}
		if j < len(bars) && bars[j].Timestamp.Equal(ts) {
			v := field(bars[j])
			out[i] = v
			carry = v
			j++
			continue
		}
		if policy == domain.FillCarryForward {
			out[i] = carry
		} else {
			out[i] = domain.Missing()
		}
	}
	return out
}
