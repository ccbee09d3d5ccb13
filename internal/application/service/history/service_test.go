package history

import (
	"context"
	"errors"
	"io"
	"sort"
	"testing"
	"time"

	assets "lookback/internal/domain/entity/assets"
	domain "lookback/internal/domain/entity/history"
	interfaces "lookback/internal/domain/interfaces"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCalendar struct {
	sessions []domain.Session // ascending by date
	err      error
}

func (c *fakeCalendar) SessionsBefore(_ context.Context, at time.Time, n int) ([]domain.Session, error) {
	if c.err != nil {
		return nil, c.err
	}
	var eligible []domain.Session
	for _, sess := range c.sessions {
		if !sess.Open.After(at) {
			eligible = append(eligible, sess)
		}
	}
	if len(eligible) > n {
		eligible = eligible[len(eligible)-n:]
	}
	return eligible, nil
}

func (c *fakeCalendar) IsHalfDay(_ context.Context, date time.Time) (bool, error) {
	for _, sess := range c.sessions {
		if sess.Date.Equal(date) {
			return sess.HalfDay, nil
		}
	}
	return false, nil
}

type fakeBarRepo struct {
	minutes map[uuid.UUID][]domain.Bar
	daily   map[uuid.UUID][]domain.Bar

	minuteFetches int
	dailyFetches  int
}

func newFakeBarRepo() *fakeBarRepo {
	return &fakeBarRepo{
		minutes: make(map[uuid.UUID][]domain.Bar),
		daily:   make(map[uuid.UUID][]domain.Bar),
	}
}

func (r *fakeBarRepo) AddMinuteBar(_ context.Context, assetUID uuid.UUID, bar domain.Bar) error {
	r.minutes[assetUID] = append(r.minutes[assetUID], bar)
	sort.Slice(r.minutes[assetUID], func(i, j int) bool {
		return r.minutes[assetUID][i].Timestamp.Before(r.minutes[assetUID][j].Timestamp)
	})
	return nil
}

func (r *fakeBarRepo) AddMinuteBars(ctx context.Context, assetUID uuid.UUID, bars []domain.Bar) error {
	for _, bar := range bars {
		if err := r.AddMinuteBar(ctx, assetUID, bar); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeBarRepo) MinuteBarsBefore(_ context.Context, assetUID uuid.UUID, before time.Time, limit int) ([]domain.Bar, error) {
	r.minuteFetches++
	var out []domain.Bar
	for _, bar := range r.minutes[assetUID] {
		if bar.Timestamp.Before(before) {
			out = append(out, bar)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *fakeBarRepo) MinuteBarsBetween(_ context.Context, assetUID uuid.UUID, from, to time.Time) ([]domain.Bar, error) {
	var out []domain.Bar
	for _, bar := range r.minutes[assetUID] {
		if !bar.Timestamp.Before(from) && !bar.Timestamp.After(to) {
			out = append(out, bar)
		}
	}
	return out, nil
}

func (r *fakeBarRepo) DailyBarsBefore(_ context.Context, assetUID uuid.UUID, before time.Time, limit int) ([]domain.Bar, error) {
	r.dailyFetches++
	var out []domain.Bar
	for _, bar := range r.daily[assetUID] {
		if bar.Timestamp.Before(before) {
			out = append(out, bar)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *fakeBarRepo) Close() {}

type fakeCheckpoint struct {
	saved []interfaces.WindowSnapshot
}

func (c *fakeCheckpoint) SaveWindows(_ context.Context, snapshots []interfaces.WindowSnapshot) error {
	c.saved = snapshots
	return nil
}

func (c *fakeCheckpoint) LoadWindows(_ context.Context) ([]interfaces.WindowSnapshot, error) {
	return c.saved, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// Sessions around the first week of September 2013. Monday the 2nd is a
// holiday, so the session sequence runs Aug 29, Aug 30, Sep 3, Sep 4, Sep 5,
// Sep 6. Regular hours are 14:30-21:00 UTC.
func septemberSessions() []domain.Session {
	days := []int{29, 30}
	var sessions []domain.Session
	for _, d := range days {
		sessions = append(sessions, regularSession(2013, time.August, d))
	}
	for d := 3; d <= 6; d++ {
		sessions = append(sessions, regularSession(2013, time.September, d))
	}
	return sessions
}

func regularSession(year int, month time.Month, day int) domain.Session {
	return domain.Session{
		Date:  time.Date(year, month, day, 0, 0, 0, 0, time.UTC),
		Open:  time.Date(year, month, day, 14, 30, 0, 0, time.UTC),
		Close: time.Date(year, month, day, 21, 0, 0, 0, time.UTC),
	}
}

func halfSession(year int, month time.Month, day int) domain.Session {
	return domain.Session{
		Date:    time.Date(year, month, day, 0, 0, 0, 0, time.UTC),
		Open:    time.Date(year, month, day, 14, 30, 0, 0, time.UTC),
		Close:   time.Date(year, month, day, 18, 0, 0, 0, time.UTC),
		HalfDay: true,
	}
}

func dailyBar(date time.Time, close float64) domain.Bar {
	return domain.Bar{Timestamp: date, Open: close, High: close, Low: close, Close: close, Volume: 1000}
}

func testAsset(symbol string) assets.Asset {
	return assets.Asset{UID: uuid.New(), Symbol: symbol}
}

func column(t *testing.T, table *domain.Table, symbol string) []float64 {
	t.Helper()
	col, ok := table.Column(symbol)
	require.True(t, ok)
	return col
}

func TestDaysBackfillAtStart(t *testing.T) {
	ctx := context.Background()
	xyz := testAsset("XYZ")
	repo := newFakeBarRepo()
	for _, d := range []struct {
		date  time.Time
		close float64
	}{
		{time.Date(2013, 8, 30, 0, 0, 0, 0, time.UTC), 17.0},
		{time.Date(2013, 9, 3, 0, 0, 0, 0, time.UTC), 17.5},
		{time.Date(2013, 9, 4, 0, 0, 0, 0, time.UTC), 18.5},
		{time.Date(2013, 9, 5, 0, 0, 0, 0, time.UTC), 19.0},
	} {
		repo.daily[xyz.UID] = append(repo.daily[xyz.UID], dailyBar(d.date, d.close))
	}
	require.NoError(t, repo.AddMinuteBar(ctx, xyz.UID,
		minuteBar(time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC), 20.0, 10)))

	clock := NewSimClock(time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC))
	svc := NewService(&fakeCalendar{sessions: septemberSessions()}, repo, clock, nil, quietLogger())

	// First call on the first tick: the window is populated by backfill, not
	// by waiting for live ticks to accumulate.
	table, err := svc.Days(ctx, []assets.Asset{xyz}, "5d", FieldPrice, false)
	require.NoError(t, err)
	require.Equal(t, 5, table.Len())

	col := column(t, table, "XYZ")
	assert.Equal(t, []float64{17.0, 17.5, 18.5, 19.0, 20.0}, col)
	for _, v := range col {
		assert.False(t, domain.IsMissing(v))
	}
}

func TestDaysLiteralScenario(t *testing.T) {
	ctx := context.Background()
	xyz := testAsset("XYZ")
	repo := newFakeBarRepo()
	repo.daily[xyz.UID] = []domain.Bar{dailyBar(time.Date(2013, 9, 5, 0, 0, 0, 0, time.UTC), 19.0)}
	require.NoError(t, repo.AddMinuteBar(ctx, xyz.UID,
		minuteBar(time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC), 20.0, 10)))

	clock := NewSimClock(time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC))
	svc := NewService(&fakeCalendar{sessions: septemberSessions()}, repo, clock, nil, quietLogger())

	table, err := svc.Days(ctx, []assets.Asset{xyz}, "2d", FieldPrice, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{19.0, 20.0}, column(t, table, "XYZ"))

	clock.Advance(time.Minute)
	require.NoError(t, svc.OnBar(ctx, xyz.UID,
		minuteBar(time.Date(2013, 9, 6, 14, 32, 0, 0, time.UTC), 18.0, 5)))

	table, err = svc.Days(ctx, []assets.Asset{xyz}, "2d", FieldPrice, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{19.0, 18.0}, column(t, table, "XYZ"))
}

func TestDaysIdempotentAtSameTick(t *testing.T) {
	ctx := context.Background()
	xyz := testAsset("XYZ")
	repo := newFakeBarRepo()
	repo.daily[xyz.UID] = []domain.Bar{dailyBar(time.Date(2013, 9, 5, 0, 0, 0, 0, time.UTC), 19.0)}
	require.NoError(t, repo.AddMinuteBar(ctx, xyz.UID,
		minuteBar(time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC), 20.0, 10)))

	clock := NewSimClock(time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC))
	svc := NewService(&fakeCalendar{sessions: septemberSessions()}, repo, clock, nil, quietLogger())

	first, err := svc.Days(ctx, []assets.Asset{xyz}, "2d", FieldPrice, true)
	require.NoError(t, err)
	second, err := svc.Days(ctx, []assets.Asset{xyz}, "2d", FieldPrice, true)
	require.NoError(t, err)

	assert.Equal(t, first.Index(), second.Index())
	assert.Equal(t, column(t, first, "XYZ"), column(t, second, "XYZ"))
	assert.Equal(t, 1, repo.dailyFetches, "second call at the same tick must not re-backfill")
}

func TestDaysForwardFillEmptySession(t *testing.T) {
	ctx := context.Background()
	xyz := testAsset("XYZ")
	repo := newFakeBarRepo()
	// Sep 5 has no bar at all: the asset did not trade that session.
	repo.daily[xyz.UID] = []domain.Bar{
		dailyBar(time.Date(2013, 9, 3, 0, 0, 0, 0, time.UTC), 17.5),
		dailyBar(time.Date(2013, 9, 4, 0, 0, 0, 0, time.UTC), 18.5),
	}
	require.NoError(t, repo.AddMinuteBar(ctx, xyz.UID,
		minuteBar(time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC), 20.0, 10)))

	clock := NewSimClock(time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC))

	svc := NewService(&fakeCalendar{sessions: septemberSessions()}, repo, clock, nil, quietLogger())
	filled, err := svc.Days(ctx, []assets.Asset{xyz}, "4d", FieldPrice, true)
	require.NoError(t, err)
	assert.Equal(t, []float64{17.5, 18.5, 18.5, 20.0}, column(t, filled, "XYZ"))

	svc = NewService(&fakeCalendar{sessions: septemberSessions()}, repo, clock, nil, quietLogger())
	gapped, err := svc.Days(ctx, []assets.Asset{xyz}, "4d", FieldPrice, false)
	require.NoError(t, err)
	col := column(t, gapped, "XYZ")
	assert.Equal(t, 17.5, col[0])
	assert.Equal(t, 18.5, col[1])
	assert.True(t, domain.IsMissing(col[2]))
	assert.Equal(t, 20.0, col[3])
}

func TestDaysWindowGrowth(t *testing.T) {
	ctx := context.Background()
	xyz := testAsset("XYZ")
	repo := newFakeBarRepo()
	closes := []float64{16.0, 17.0, 17.5, 18.5, 19.0}
	dates := []time.Time{
		time.Date(2013, 8, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2013, 8, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2013, 9, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2013, 9, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2013, 9, 5, 0, 0, 0, 0, time.UTC),
	}
	for i, date := range dates {
		repo.daily[xyz.UID] = append(repo.daily[xyz.UID], dailyBar(date, closes[i]))
	}
	require.NoError(t, repo.AddMinuteBar(ctx, xyz.UID,
		minuteBar(time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC), 20.0, 10)))

	clock := NewSimClock(time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC))
	svc := NewService(&fakeCalendar{sessions: septemberSessions()}, repo, clock, nil, quietLogger())

	narrow, err := svc.Days(ctx, []assets.Asset{xyz}, "2d", FieldPrice, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{19.0, 20.0}, column(t, narrow, "XYZ"))

	// A wider spec at the same tick grows the buffer in place and backfills
	// only the missing depth.
	wide, err := svc.Days(ctx, []assets.Asset{xyz}, "5d", FieldPrice, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{17.0, 17.5, 18.5, 19.0, 20.0}, column(t, wide, "XYZ"))

	// Narrowing back never shrinks the buffer and never re-fetches.
	fetches := repo.dailyFetches
	narrow, err = svc.Days(ctx, []assets.Asset{xyz}, "2d", FieldPrice, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{19.0, 20.0}, column(t, narrow, "XYZ"))
	assert.Equal(t, fetches, repo.dailyFetches)
}

func TestDaysSessionRollFreezesPartial(t *testing.T) {
	ctx := context.Background()
	xyz := testAsset("XYZ")
	repo := newFakeBarRepo()
	repo.daily[xyz.UID] = []domain.Bar{dailyBar(time.Date(2013, 9, 4, 0, 0, 0, 0, time.UTC), 18.5)}
	require.NoError(t, repo.AddMinuteBar(ctx, xyz.UID,
		minuteBar(time.Date(2013, 9, 5, 14, 31, 0, 0, time.UTC), 19.5, 10)))

	clock := NewSimClock(time.Date(2013, 9, 5, 14, 31, 0, 0, time.UTC))
	svc := NewService(&fakeCalendar{sessions: septemberSessions()}, repo, clock, nil, quietLogger())

	table, err := svc.Days(ctx, []assets.Asset{xyz}, "2d", FieldPrice, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{18.5, 19.5}, column(t, table, "XYZ"))

	// Last trade of Sep 5, then the first trade of Sep 6 rolls the session.
	clock.Set(time.Date(2013, 9, 5, 21, 0, 0, 0, time.UTC))
	require.NoError(t, svc.OnBar(ctx, xyz.UID,
		minuteBar(time.Date(2013, 9, 5, 21, 0, 0, 0, time.UTC), 19.0, 10)))
	clock.Set(time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC))
	require.NoError(t, svc.OnBar(ctx, xyz.UID,
		minuteBar(time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC), 20.0, 10)))

	table, err = svc.Days(ctx, []assets.Asset{xyz}, "2d", FieldPrice, false)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		time.Date(2013, 9, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2013, 9, 6, 0, 0, 0, 0, time.UTC),
	}, table.Index())
	assert.Equal(t, []float64{19.0, 20.0}, column(t, table, "XYZ"))
}

func TestDaysRejectsMinuteSpec(t *testing.T) {
	svc := NewService(&fakeCalendar{sessions: septemberSessions()}, newFakeBarRepo(),
		NewSimClock(time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC)), nil, quietLogger())
	_, err := svc.Days(context.Background(), nil, "390m", FieldPrice, false)
	assert.ErrorIs(t, err, ErrInvalidWindowSpec)
}

func TestDaysUnknownField(t *testing.T) {
	svc := NewService(&fakeCalendar{sessions: septemberSessions()}, newFakeBarRepo(),
		NewSimClock(time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC)), nil, quietLogger())
	_, err := svc.Days(context.Background(), nil, "2d", "vwap", false)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestDaysBackfillUnavailable(t *testing.T) {
	xyz := testAsset("XYZ")
	svc := NewService(&fakeCalendar{sessions: septemberSessions()}, newFakeBarRepo(),
		NewSimClock(time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC)), nil, quietLogger())
	_, err := svc.Days(context.Background(), []assets.Asset{xyz}, "2d", FieldPrice, false)
	assert.ErrorIs(t, err, ErrBackfillUnavailable)
}

func TestDaysCalendarTooShort(t *testing.T) {
	xyz := testAsset("XYZ")
	svc := NewService(&fakeCalendar{sessions: septemberSessions()}, newFakeBarRepo(),
		NewSimClock(time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC)), nil, quietLogger())
	_, err := svc.Days(context.Background(), []assets.Asset{xyz}, "30d", FieldPrice, false)
	assert.ErrorIs(t, err, ErrCalendarResolution)
}

func TestMinutesRollingWindow(t *testing.T) {
	ctx := context.Background()
	xyz := testAsset("XYZ")
	repo := newFakeBarRepo()
	open := time.Date(2013, 9, 6, 14, 30, 0, 0, time.UTC)
	for i := 1; i <= 10; i++ {
		require.NoError(t, repo.AddMinuteBar(ctx, xyz.UID,
			minuteBar(open.Add(time.Duration(i)*time.Minute), 20.0+float64(i), 1)))
	}

	clock := NewSimClock(open.Add(10 * time.Minute))
	svc := NewService(&fakeCalendar{sessions: septemberSessions()}, repo, clock, nil, quietLogger())

	table, err := svc.Minutes(ctx, []assets.Asset{xyz}, "5m", FieldPrice, false)
	require.NoError(t, err)
	require.Equal(t, 5, table.Len())
	assert.Equal(t, []float64{26, 27, 28, 29, 30}, column(t, table, "XYZ"))

	idx := table.Index()
	assert.Equal(t, open.Add(6*time.Minute), idx[0])
	assert.Equal(t, open.Add(10*time.Minute), idx[4])
}

func TestMinutesNoLookahead(t *testing.T) {
	ctx := context.Background()
	xyz := testAsset("XYZ")
	repo := newFakeBarRepo()
	open := time.Date(2013, 9, 6, 14, 30, 0, 0, time.UTC)
	// Storage holds the whole session; the clock sits mid-session.
	for i := 1; i <= 30; i++ {
		require.NoError(t, repo.AddMinuteBar(ctx, xyz.UID,
			minuteBar(open.Add(time.Duration(i)*time.Minute), 20.0+float64(i), 1)))
	}

	now := open.Add(5 * time.Minute)
	svc := NewService(&fakeCalendar{sessions: septemberSessions()}, repo, NewSimClock(now), nil, quietLogger())

	table, err := svc.Minutes(ctx, []assets.Asset{xyz}, "5m", FieldPrice, false)
	require.NoError(t, err)
	idx := table.Index()
	require.Equal(t, 5, table.Len())
	assert.Equal(t, now, idx[len(idx)-1])
	assert.Equal(t, []float64{21, 22, 23, 24, 25}, column(t, table, "XYZ"))
}

func TestMinutesLiveTickExtendsWithoutRefetch(t *testing.T) {
	ctx := context.Background()
	xyz := testAsset("XYZ")
	repo := newFakeBarRepo()
	open := time.Date(2013, 9, 6, 14, 30, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		require.NoError(t, repo.AddMinuteBar(ctx, xyz.UID,
			minuteBar(open.Add(time.Duration(i)*time.Minute), 20.0+float64(i), 1)))
	}

	clock := NewSimClock(open.Add(5 * time.Minute))
	svc := NewService(&fakeCalendar{sessions: septemberSessions()}, repo, clock, nil, quietLogger())

	_, err := svc.Minutes(ctx, []assets.Asset{xyz}, "5m", FieldPrice, false)
	require.NoError(t, err)
	fetches := repo.minuteFetches

	clock.Advance(time.Minute)
	require.NoError(t, svc.OnBar(ctx, xyz.UID, minuteBar(open.Add(6*time.Minute), 26, 1)))

	table, err := svc.Minutes(ctx, []assets.Asset{xyz}, "5m", FieldPrice, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{22, 23, 24, 25, 26}, column(t, table, "XYZ"))
	assert.Equal(t, fetches, repo.minuteFetches, "live tick kept the window full, no refetch")
}

func TestMinutesHalfDayWindowSpansThreeDates(t *testing.T) {
	// Sep 5 is a half-day closing at 18:00 (210 trading minutes). A 391-minute
	// window taken 5 minutes into Sep 6 must reach back across the half-day
	// into Sep 4: 5 + 210 + 176 minutes over three calendar dates.
	sessions := []domain.Session{
		regularSession(2013, time.September, 3),
		regularSession(2013, time.September, 4),
		halfSession(2013, time.September, 5),
		regularSession(2013, time.September, 6),
	}
	clock := NewSimClock(time.Date(2013, 9, 6, 14, 35, 0, 0, time.UTC))
	svc := NewService(&fakeCalendar{sessions: sessions}, newFakeBarRepo(), clock, nil, quietLogger())

	table, err := svc.Minutes(context.Background(), nil, "391m", FieldPrice, false)
	require.NoError(t, err)
	require.Equal(t, 391, table.Len())

	idx := table.Index()
	assert.Equal(t, time.Date(2013, 9, 4, 18, 5, 0, 0, time.UTC), idx[0])
	assert.Equal(t, time.Date(2013, 9, 6, 14, 35, 0, 0, time.UTC), idx[390])

	dates := map[string]struct{}{}
	for _, ts := range idx {
		dates[ts.Format("2006-01-02")] = struct{}{}
	}
	assert.Len(t, dates, 3)

	// No label falls inside the half-day's closed afternoon.
	for _, ts := range idx {
		if ts.Format("2006-01-02") == "2013-09-05" {
			assert.False(t, ts.After(time.Date(2013, 9, 5, 18, 0, 0, 0, time.UTC)))
		}
	}
}

func TestMinutesDayAlignedSpec(t *testing.T) {
	ctx := context.Background()
	xyz := testAsset("XYZ")
	repo := newFakeBarRepo()
	// Short synthetic sessions keep the dataset small: 10 trading minutes each.
	sessions := []domain.Session{
		{
			Date:  time.Date(2013, 9, 5, 0, 0, 0, 0, time.UTC),
			Open:  time.Date(2013, 9, 5, 14, 30, 0, 0, time.UTC),
			Close: time.Date(2013, 9, 5, 14, 40, 0, 0, time.UTC),
		},
		{
			Date:  time.Date(2013, 9, 6, 0, 0, 0, 0, time.UTC),
			Open:  time.Date(2013, 9, 6, 14, 30, 0, 0, time.UTC),
			Close: time.Date(2013, 9, 6, 14, 40, 0, 0, time.UTC),
		},
	}
	price := 10.0
	for _, sess := range sessions {
		for _, label := range sess.Minutes() {
			if label.After(time.Date(2013, 9, 6, 14, 33, 0, 0, time.UTC)) {
				break
			}
			require.NoError(t, repo.AddMinuteBar(ctx, xyz.UID, minuteBar(label, price, 1)))
			price++
		}
	}

	clock := NewSimClock(time.Date(2013, 9, 6, 14, 33, 0, 0, time.UTC))
	svc := NewService(&fakeCalendar{sessions: sessions}, repo, clock, nil, quietLogger())

	// "2d" at minute granularity: the full previous session plus the current
	// session so far.
	table, err := svc.Minutes(ctx, []assets.Asset{xyz}, "2d", FieldPrice, false)
	require.NoError(t, err)
	require.Equal(t, 13, table.Len())

	idx := table.Index()
	assert.Equal(t, sessions[0].Open.Add(time.Minute), idx[0])
	assert.Equal(t, clock.Now(), idx[len(idx)-1])

	col := column(t, table, "XYZ")
	assert.Equal(t, 10.0, col[0])
	assert.Equal(t, 22.0, col[len(col)-1])
}

func TestMinutesResampleMatchesDays(t *testing.T) {
	ctx := context.Background()
	xyz := testAsset("XYZ")
	repo := newFakeBarRepo()
	sessions := []domain.Session{
		{
			Date:  time.Date(2013, 9, 4, 0, 0, 0, 0, time.UTC),
			Open:  time.Date(2013, 9, 4, 14, 30, 0, 0, time.UTC),
			Close: time.Date(2013, 9, 4, 14, 40, 0, 0, time.UTC),
		},
		{
			Date:  time.Date(2013, 9, 5, 0, 0, 0, 0, time.UTC),
			Open:  time.Date(2013, 9, 5, 14, 30, 0, 0, time.UTC),
			Close: time.Date(2013, 9, 5, 14, 40, 0, 0, time.UTC),
		},
		{
			Date:  time.Date(2013, 9, 6, 0, 0, 0, 0, time.UTC),
			Open:  time.Date(2013, 9, 6, 14, 30, 0, 0, time.UTC),
			Close: time.Date(2013, 9, 6, 14, 40, 0, 0, time.UTC),
		},
	}
	now := time.Date(2013, 9, 6, 14, 35, 0, 0, time.UTC)
	price := 10.0
	for _, sess := range sessions {
		for _, label := range sess.Minutes() {
			if label.After(now) {
				break
			}
			require.NoError(t, repo.AddMinuteBar(ctx, xyz.UID, minuteBar(label, price, 1)))
			price++
		}
	}
	// Daily bars derived from the same minutes, for the daily backfill path.
	for _, sess := range sessions[:2] {
		minutes, err := repo.MinuteBarsBetween(ctx, xyz.UID, sess.Open, sess.Close)
		require.NoError(t, err)
		bar, ok := RollUp(sess.Date, minutes)
		require.True(t, ok)
		repo.daily[xyz.UID] = append(repo.daily[xyz.UID], bar)
	}

	calendar := &fakeCalendar{sessions: sessions}
	svc := NewService(calendar, repo, NewSimClock(now), nil, quietLogger())

	days, err := svc.Days(ctx, []assets.Asset{xyz}, "3d", FieldPrice, false)
	require.NoError(t, err)
	minutes, err := svc.Minutes(ctx, []assets.Asset{xyz}, "3d", FieldPrice, false)
	require.NoError(t, err)

	// Last observed minute value per session equals the daily row.
	minuteCol := column(t, minutes, "XYZ")
	minuteIdx := minutes.Index()
	for i, sess := range sessions {
		var last float64
		found := false
		for j, label := range minuteIdx {
			if sess.Contains(label) && !domain.IsMissing(minuteCol[j]) {
				last = minuteCol[j]
				found = true
			}
		}
		require.True(t, found)
		dayVal, ok := days.Value(i, "XYZ")
		require.True(t, ok)
		assert.Equal(t, dayVal, last, "session %s", sess.Date.Format("2006-01-02"))
	}
}

func TestMinutesBackfillUnavailable(t *testing.T) {
	xyz := testAsset("XYZ")
	svc := NewService(&fakeCalendar{sessions: septemberSessions()}, newFakeBarRepo(),
		NewSimClock(time.Date(2013, 9, 6, 14, 35, 0, 0, time.UTC)), nil, quietLogger())
	_, err := svc.Minutes(context.Background(), []assets.Asset{xyz}, "5m", FieldPrice, false)
	assert.ErrorIs(t, err, ErrBackfillUnavailable)
}

func TestOnBarDropsFutureBar(t *testing.T) {
	ctx := context.Background()
	xyz := testAsset("XYZ")
	repo := newFakeBarRepo()
	open := time.Date(2013, 9, 6, 14, 30, 0, 0, time.UTC)
	require.NoError(t, repo.AddMinuteBar(ctx, xyz.UID, minuteBar(open.Add(time.Minute), 20, 1)))

	clock := NewSimClock(open.Add(time.Minute))
	svc := NewService(&fakeCalendar{sessions: septemberSessions()}, repo, clock, nil, quietLogger())

	before, err := svc.Minutes(ctx, []assets.Asset{xyz}, "1m", FieldPrice, false)
	require.NoError(t, err)

	// A bar stamped after the clock must not leak into query results.
	require.NoError(t, svc.OnBar(ctx, xyz.UID, minuteBar(open.Add(2*time.Minute), 99, 1)))

	after, err := svc.Minutes(ctx, []assets.Asset{xyz}, "1m", FieldPrice, false)
	require.NoError(t, err)
	assert.Equal(t, column(t, before, "XYZ"), column(t, after, "XYZ"))
}

func TestOnBarKeepsCalendarFailureCause(t *testing.T) {
	ctx := context.Background()
	xyz := testAsset("XYZ")
	repo := newFakeBarRepo()
	repo.daily[xyz.UID] = []domain.Bar{dailyBar(time.Date(2013, 9, 5, 0, 0, 0, 0, time.UTC), 19.0)}
	require.NoError(t, repo.AddMinuteBar(ctx, xyz.UID,
		minuteBar(time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC), 20.0, 10)))

	clock := NewSimClock(time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC))
	cal := &fakeCalendar{sessions: septemberSessions()}
	svc := NewService(cal, repo, clock, nil, quietLogger())

	_, err := svc.Days(ctx, []assets.Asset{xyz}, "2d", FieldPrice, false)
	require.NoError(t, err)

	cal.err = errors.New("sessions table unreachable")
	clock.Advance(time.Minute)
	err = svc.OnBar(ctx, xyz.UID,
		minuteBar(time.Date(2013, 9, 6, 14, 32, 0, 0, time.UTC), 18.0, 5))
	require.ErrorIs(t, err, ErrCalendarResolution)
	assert.Contains(t, err.Error(), "sessions table unreachable")
}

func TestCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	xyz := testAsset("XYZ")
	repo := newFakeBarRepo()
	repo.daily[xyz.UID] = []domain.Bar{
		dailyBar(time.Date(2013, 9, 4, 0, 0, 0, 0, time.UTC), 18.5),
		dailyBar(time.Date(2013, 9, 5, 0, 0, 0, 0, time.UTC), 19.0),
	}
	require.NoError(t, repo.AddMinuteBar(ctx, xyz.UID,
		minuteBar(time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC), 20.0, 10)))

	clock := NewSimClock(time.Date(2013, 9, 6, 14, 31, 0, 0, time.UTC))
	store := &fakeCheckpoint{}
	svc := NewService(&fakeCalendar{sessions: septemberSessions()}, repo, clock, store, quietLogger())

	_, err := svc.Days(ctx, []assets.Asset{xyz}, "3d", FieldPrice, false)
	require.NoError(t, err)
	require.NoError(t, svc.Checkpoint(ctx))
	require.NotEmpty(t, store.saved)

	// A fresh process restores completed bars from the checkpoint and rebuilds
	// only the live partial from storage.
	restored := NewService(&fakeCalendar{sessions: septemberSessions()}, repo, clock, store, quietLogger())
	require.NoError(t, restored.Restore(ctx))

	table, err := restored.Days(ctx, []assets.Asset{xyz}, "3d", FieldPrice, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{18.5, 19.0, 20.0}, column(t, table, "XYZ"))
	assert.Equal(t, 1, repo.dailyFetches, "restore must not trigger a second daily backfill")
}
