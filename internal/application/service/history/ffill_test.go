package history

import (
	"testing"
	"time"

	domain "lookback/internal/domain/entity/history"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gridOf(start time.Time, n int, step time.Duration) []time.Time {
	grid := make([]time.Time, n)
	for i := range grid {
		grid[i] = start.Add(time.Duration(i) * step)
	}
	return grid
}

func TestFillSeriesExactMatches(t *testing.T) {
	start := time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC)
	grid := gridOf(start, 3, time.Minute)
	bars := []domain.Bar{
		minuteBar(grid[0], 10, 1),
		minuteBar(grid[1], 11, 1),
		minuteBar(grid[2], 12, 1),
	}

	close, err := NewFieldSet().Lookup(FieldClose)
	require.NoError(t, err)

	got := FillSeries(bars, grid, close, domain.FillPreserveGaps)
	assert.Equal(t, []float64{10, 11, 12}, got)
}

func TestFillSeriesCarryForward(t *testing.T) {
	start := time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC)
	grid := gridOf(start, 4, time.Minute)
	bars := []domain.Bar{
		minuteBar(grid[0], 10, 1),
		minuteBar(grid[2], 12, 1),
	}

	close, err := NewFieldSet().Lookup(FieldClose)
	require.NoError(t, err)

	got := FillSeries(bars, grid, close, domain.FillCarryForward)
	assert.Equal(t, []float64{10, 10, 12, 12}, got)
}

func TestFillSeriesPreserveGaps(t *testing.T) {
	start := time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC)
	grid := gridOf(start, 4, time.Minute)
	bars := []domain.Bar{
		minuteBar(grid[0], 10, 1),
		minuteBar(grid[2], 12, 1),
	}

	close, err := NewFieldSet().Lookup(FieldClose)
	require.NoError(t, err)

	got := FillSeries(bars, grid, close, domain.FillPreserveGaps)
	assert.Equal(t, 10.0, got[0])
	assert.True(t, domain.IsMissing(got[1]))
	assert.Equal(t, 12.0, got[2])
	assert.True(t, domain.IsMissing(got[3]))
}

func TestFillSeriesCarriesObservationBeforeGrid(t *testing.T) {
	start := time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC)
	grid := gridOf(start, 2, time.Minute)
	bars := []domain.Bar{
		minuteBar(start.Add(-time.Minute), 9, 1),
	}

	close, err := NewFieldSet().Lookup(FieldClose)
	require.NoError(t, err)

	carried := FillSeries(bars, grid, close, domain.FillCarryForward)
	assert.Equal(t, []float64{9, 9}, carried)

	gapped := FillSeries(bars, grid, close, domain.FillPreserveGaps)
	assert.True(t, domain.IsMissing(gapped[0]))
	assert.True(t, domain.IsMissing(gapped[1]))
}

func TestFillSeriesNoObservationsAtAll(t *testing.T) {
	start := time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC)
	grid := gridOf(start, 3, time.Minute)

	close, err := NewFieldSet().Lookup(FieldClose)
	require.NoError(t, err)

	for _, policy := range []domain.FillPolicy{domain.FillCarryForward, domain.FillPreserveGaps} {
		got := FillSeries(nil, grid, close, policy)
		require.Len(t, got, 3)
		for _, v := range got {
			assert.True(t, domain.IsMissing(v))
		}
	}
}
