package history

import (
	"testing"
	"time"

	domain "lookback/internal/domain/entity/history"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minuteBar(ts time.Time, close, volume float64) domain.Bar {
	return domain.Bar{Timestamp: ts, Open: close, High: close, Low: close, Close: close, Volume: volume}
}

func TestRollUp(t *testing.T) {
	date := time.Date(2013, 9, 6, 0, 0, 0, 0, time.UTC)
	open := time.Date(2013, 9, 6, 14, 30, 0, 0, time.UTC)
	minutes := []domain.Bar{
		{Timestamp: open.Add(1 * time.Minute), Open: 10, High: 12, Low: 9, Close: 11, Volume: 100},
		{Timestamp: open.Add(2 * time.Minute), Open: 11, High: 15, Low: 11, Close: 14, Volume: 50},
		{Timestamp: open.Add(3 * time.Minute), Open: 14, High: 14, Low: 8, Close: 9, Volume: 25},
	}

	bar, ok := RollUp(date, minutes)
	require.True(t, ok)
	assert.Equal(t, date, bar.Timestamp)
	assert.Equal(t, 10.0, bar.Open)
	assert.Equal(t, 15.0, bar.High)
	assert.Equal(t, 8.0, bar.Low)
	assert.Equal(t, 9.0, bar.Close)
	assert.Equal(t, 175.0, bar.Volume)
}

func TestRollUpEmptySessionIsGap(t *testing.T) {
	_, ok := RollUp(time.Date(2013, 9, 6, 0, 0, 0, 0, time.UTC), nil)
	assert.False(t, ok)
}

func TestPartialSessionTracksLatestMinuteClose(t *testing.T) {
	sess := domain.Session{
		Date:  time.Date(2013, 9, 6, 0, 0, 0, 0, time.UTC),
		Open:  time.Date(2013, 9, 6, 14, 30, 0, 0, time.UTC),
		Close: time.Date(2013, 9, 6, 21, 0, 0, 0, time.UTC),
	}
	p := newPartialSession(sess)

	_, ok := p.aggregate()
	assert.False(t, ok, "no aggregate before the first minute")

	p.apply(minuteBar(sess.Open.Add(1*time.Minute), 20.0, 100))
	bar, ok := p.aggregate()
	require.True(t, ok)
	assert.Equal(t, 20.0, bar.Close)
	assert.Equal(t, sess.Date, bar.Timestamp)

	p.apply(minuteBar(sess.Open.Add(2*time.Minute), 18.0, 40))
	bar, ok = p.aggregate()
	require.True(t, ok)
	assert.Equal(t, 20.0, bar.Open)
	assert.Equal(t, 20.0, bar.High)
	assert.Equal(t, 18.0, bar.Low)
	assert.Equal(t, 18.0, bar.Close)
	assert.Equal(t, 140.0, bar.Volume)
	assert.Equal(t, 2, p.count)
}

func TestPartialSessionMatchesRollUp(t *testing.T) {
	sess := domain.Session{
		Date:  time.Date(2013, 9, 6, 0, 0, 0, 0, time.UTC),
		Open:  time.Date(2013, 9, 6, 14, 30, 0, 0, time.UTC),
		Close: time.Date(2013, 9, 6, 21, 0, 0, 0, time.UTC),
	}
	minutes := []domain.Bar{
		{Timestamp: sess.Open.Add(1 * time.Minute), Open: 10, High: 12, Low: 9, Close: 11, Volume: 100},
		{Timestamp: sess.Open.Add(2 * time.Minute), Open: 11, High: 15, Low: 11, Close: 14, Volume: 50},
		{Timestamp: sess.Open.Add(3 * time.Minute), Open: 14, High: 14, Low: 8, Close: 9, Volume: 25},
	}

	p := newPartialSession(sess)
	for _, m := range minutes {
		p.apply(m)
	}
	incremental, ok := p.aggregate()
	require.True(t, ok)

	batch, ok := RollUp(sess.Date, minutes)
	require.True(t, ok)
	assert.Equal(t, batch, incremental)
}
