package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	assets "lookback/internal/domain/entity/assets"
	domain "lookback/internal/domain/entity/history"
	interfaces "lookback/internal/domain/interfaces"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// halfDayMinutes is the shortest session the engine plans for when deciding
// how many sessions a minute window may span.
const halfDayMinutes = 210

type bufferKey struct {
	asset uuid.UUID
	freq  domain.Frequency
}

type windowState int

const (
	stateUninitialized windowState = iota
	stateBackfilling
	stateLive
)

// assetWindow owns one (asset, frequency) rolling buffer. Exactly one writer
// mutates it per tick; queries read copy-out snapshots, so concurrent readers
// between ticks always see a consistent window.
type assetWindow struct {
	mu      sync.RWMutex
	state   windowState
	buf     *RollingBuffer
	partial *partialSession // daily windows only
}

// Service answers lookback queries over per-asset bar streams. Daily windows
// are served from session-aggregated buffers maintained incrementally from
// minute ticks; full minute history is never materialized to answer a daily
// query. Buffers are populated by synchronous backfill on first reference
// and extended in place afterwards.
type Service struct {
	calendar   interfaces.TradingCalendar
	bars       interfaces.BarRepository
	clock      interfaces.Clock
	checkpoint interfaces.WindowCheckpoint
	fields     *FieldSet
	logger     *logrus.Logger

	mu      sync.RWMutex
	windows map[bufferKey]*assetWindow
}

// NewService wires the engine's collaborators. checkpoint may be nil; the
// engine then runs without persisted state.
func NewService(calendar interfaces.TradingCalendar, bars interfaces.BarRepository, clock interfaces.Clock, checkpoint interfaces.WindowCheckpoint, logger *logrus.Logger) *Service {
	return &Service{
		calendar:   calendar,
		bars:       bars,
		clock:      clock,
		checkpoint: checkpoint,
		fields:     NewFieldSet(),
		logger:     logger,
		windows:    make(map[bufferKey]*assetWindow),
	}
}

// Fields exposes the field registry so integrations can register external
// fields.
func (s *Service) Fields() *FieldSet {
	return s.fields
}

// Days answers a day-granularity lookback query: one row per session, the
// last row tracking the in-progress session's partial aggregate.
func (s *Service) Days(ctx context.Context, assetList []assets.Asset, specText, field string, ffill bool) (*domain.Table, error) {
	spec, err := ParseWindowSpec(specText)
	if err != nil {
		return nil, err
	}
	if spec.Granularity != domain.FrequencyDay {
		return nil, fmt.Errorf("%w: day-granularity queries take a d-suffixed spec, got %q", ErrInvalidWindowSpec, specText)
	}
	extract, err := s.fields.Lookup(field)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	sessions, err := s.sessionWindow(ctx, now, spec.Length)
	if err != nil {
		return nil, err
	}
	grid := make([]time.Time, len(sessions))
	for i, sess := range sessions {
		grid[i] = sess.Date
	}

	policy := fillPolicy(ffill)
	columns := make(map[string][]float64, len(assetList))
	for _, asset := range assetList {
		snapshot, err := s.ensureDaily(ctx, asset.UID, sessions, now)
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", asset.Symbol, err)
		}
		columns[asset.Symbol] = FillSeries(snapshot, grid, extract, policy)
	}
	return domain.NewTable(grid, columns), nil
}

// Minutes answers a minute-granularity lookback query. An m-suffixed spec is
// an absolute bar count ending at the current minute; a d-suffixed spec is
// session-aligned, covering the current session so far plus the N-1
// preceding full sessions.
func (s *Service) Minutes(ctx context.Context, assetList []assets.Asset, specText, field string, ffill bool) (*domain.Table, error) {
	spec, err := ParseWindowSpec(specText)
	if err != nil {
		return nil, err
	}
	extract, err := s.fields.Lookup(field)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var grid []time.Time
	switch spec.Granularity {
	case domain.FrequencyDay:
		spec.DayAligned = true
		sessions, err := s.sessionWindow(ctx, now, spec.Length)
		if err != nil {
			return nil, err
		}
		for i, sess := range sessions {
			if i == len(sessions)-1 {
				grid = append(grid, sess.MinutesUntil(now)...)
			} else {
				grid = append(grid, sess.Minutes()...)
			}
		}
	default:
		grid, err = s.minuteGrid(ctx, now, spec.Length)
		if err != nil {
			return nil, err
		}
	}

	policy := fillPolicy(ffill)
	columns := make(map[string][]float64, len(assetList))
	for _, asset := range assetList {
		if len(grid) == 0 {
			columns[asset.Symbol] = nil
			continue
		}
		snapshot, err := s.ensureMinutes(ctx, asset.UID, len(grid), now)
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", asset.Symbol, err)
		}
		columns[asset.Symbol] = FillSeries(snapshot, grid, extract, policy)
	}
	return domain.NewTable(grid, columns), nil
}

// OnBar feeds one live minute bar into every tracked window of the asset:
// append for the minute window, update-in-place of the current session's
// partial aggregate for the daily window. The ingestion pipeline guarantees
// a single caller per asset per tick.
func (s *Service) OnBar(ctx context.Context, assetUID uuid.UUID, bar domain.Bar) error {
	now := s.clock.Now()
	if bar.Timestamp.After(now) {
		s.logger.WithFields(logrus.Fields{
			"asset":  assetUID,
			"bar_ts": bar.Timestamp,
			"clock":  now,
		}).Warn("dropping bar stamped after the clock")
		return nil
	}

	if w := s.lookup(bufferKey{assetUID, domain.FrequencyMinute}); w != nil {
		w.mu.Lock()
		if w.buf != nil {
			w.buf.Append(bar)
		}
		w.mu.Unlock()
	}

	w := s.lookup(bufferKey{assetUID, domain.FrequencyDay})
	if w == nil {
		return nil
	}
	sessions, err := s.calendar.SessionsBefore(ctx, bar.Timestamp, 1)
	if err != nil {
		return fmt.Errorf("%w: resolve session for bar at %s: %v",
			ErrCalendarResolution, bar.Timestamp.Format(time.RFC3339), err)
	}
	if len(sessions) == 0 {
		return fmt.Errorf("%w: no session for bar at %s", ErrCalendarResolution, bar.Timestamp.Format(time.RFC3339))
	}
	current := sessions[0]

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.partial != nil && w.partial.session.Date.Before(current.Date) {
		if done, ok := w.partial.aggregate(); ok && w.buf != nil {
			w.buf.Append(done)
		}
		w.partial = nil
	}
	if w.partial == nil {
		w.partial = newPartialSession(current)
	}
	w.partial.apply(bar)
	return nil
}

// Checkpoint persists every non-empty buffer through the checkpoint store.
func (s *Service) Checkpoint(ctx context.Context) error {
	if s.checkpoint == nil {
		return nil
	}
	type entry struct {
		key bufferKey
		w   *assetWindow
	}
	s.mu.RLock()
	entries := make([]entry, 0, len(s.windows))
	for key, w := range s.windows {
		entries = append(entries, entry{key: key, w: w})
	}
	s.mu.RUnlock()

	snapshots := make([]interfaces.WindowSnapshot, 0, len(entries))
	for _, e := range entries {
		e.w.mu.RLock()
		if e.w.buf != nil && e.w.buf.Len() > 0 {
			snapshots = append(snapshots, interfaces.WindowSnapshot{
				AssetUID:  e.key.asset,
				Frequency: e.key.freq,
				Bars:      e.w.buf.Snapshot(),
			})
		}
		e.w.mu.RUnlock()
	}
	if len(snapshots) == 0 {
		return nil
	}
	if err := s.checkpoint.SaveWindows(ctx, snapshots); err != nil {
		return fmt.Errorf("save window checkpoint: %w", err)
	}
	s.logger.WithField("windows", len(snapshots)).Info("window checkpoint saved")
	return nil
}

// Restore primes buffers from a previous checkpoint. Windows that already
// exist are left alone.
func (s *Service) Restore(ctx context.Context) error {
	if s.checkpoint == nil {
		return nil
	}
	snapshots, err := s.checkpoint.LoadWindows(ctx)
	if err != nil {
		return fmt.Errorf("load window checkpoint: %w", err)
	}
	restored := 0
	for _, snap := range snapshots {
		if len(snap.Bars) == 0 {
			continue
		}
		w := s.window(bufferKey{snap.AssetUID, snap.Frequency})
		w.mu.Lock()
		if w.buf == nil {
			buf := NewRollingBuffer(len(snap.Bars))
			for _, bar := range snap.Bars {
				buf.Append(bar)
			}
			w.buf = buf
			w.state = stateLive
			restored++
		}
		w.mu.Unlock()
	}
	if restored > 0 {
		s.logger.WithField("windows", restored).Info("window checkpoint restored")
	}
	return nil
}

// ensureDaily brings the asset's daily window up to the requested session
// span and returns a consistent snapshot: completed session bars plus the
// in-progress session's partial aggregate.
func (s *Service) ensureDaily(ctx context.Context, assetUID uuid.UUID, sessions []domain.Session, now time.Time) ([]domain.Bar, error) {
	w := s.window(bufferKey{assetUID, domain.FrequencyDay})
	w.mu.Lock()
	defer w.mu.Unlock()

	length := len(sessions)
	current := sessions[length-1]

	if w.buf == nil {
		w.buf = NewRollingBuffer(length)
	} else if w.buf.Cap() < length {
		w.buf.Grow(length)
	}

	// A partial left over from an earlier session freezes and joins the
	// completed bars before anything else happens.
	if w.partial != nil && w.partial.session.Date.Before(current.Date) {
		if done, ok := w.partial.aggregate(); ok {
			w.buf.Append(done)
		}
		w.partial = nil
	}

	deficit := (length - 1) - w.buf.Len()
	fetched := 0
	if deficit > 0 {
		before := current.Date
		if first, ok := w.buf.First(); ok {
			before = first.Timestamp
		}
		w.state = stateBackfilling
		older, err := s.bars.DailyBarsBefore(ctx, assetUID, before, deficit)
		if err != nil {
			w.state = w.settledState()
			return nil, fmt.Errorf("daily backfill: %w", err)
		}
		if err := w.buf.Prepend(older); err != nil {
			w.state = w.settledState()
			return nil, fmt.Errorf("daily backfill: %w", err)
		}
		fetched = len(older)
	}

	// Prime the live session's partial from stored minutes on first touch;
	// afterwards OnBar maintains it tick by tick.
	if w.partial == nil {
		p := newPartialSession(current)
		if !now.Before(current.Open) {
			replayed, err := s.bars.MinuteBarsBetween(ctx, assetUID, current.Open, now)
			if err != nil {
				w.state = w.settledState()
				return nil, fmt.Errorf("replay session minutes: %w", err)
			}
			for _, m := range replayed {
				p.apply(m)
			}
		}
		w.partial = p
	}

	if deficit > 0 && fetched == 0 && w.buf.Len() == 0 && w.partial.count == 0 {
		w.state = stateUninitialized
		return nil, fmt.Errorf("%w: no history before session %s", ErrBackfillUnavailable, current.Date.Format("2006-01-02"))
	}
	w.state = stateLive

	snapshot := w.buf.Snapshot()
	if bar, ok := w.partial.aggregate(); ok {
		snapshot = append(snapshot, bar)
	}
	return snapshot, nil
}

// ensureMinutes brings the asset's minute window up to length bars ending at
// the clock and returns a consistent snapshot.
func (s *Service) ensureMinutes(ctx context.Context, assetUID uuid.UUID, length int, now time.Time) ([]domain.Bar, error) {
	w := s.window(bufferKey{assetUID, domain.FrequencyMinute})
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf == nil {
		w.buf = NewRollingBuffer(length)
	} else if w.buf.Cap() < length {
		w.buf.Grow(length)
	}

	deficit := length - w.buf.Len()
	if deficit > 0 {
		before := now.Add(time.Minute)
		if first, ok := w.buf.First(); ok {
			before = first.Timestamp
		}
		w.state = stateBackfilling
		older, err := s.bars.MinuteBarsBefore(ctx, assetUID, before, deficit)
		if err != nil {
			w.state = w.settledState()
			return nil, fmt.Errorf("minute backfill: %w", err)
		}
		older = trimAfter(older, now)
		if len(older) == 0 && w.buf.Len() == 0 {
			w.state = stateUninitialized
			return nil, fmt.Errorf("%w: no minute history at or before %s", ErrBackfillUnavailable, now.Format(time.RFC3339))
		}
		if err := w.buf.Prepend(older); err != nil {
			w.state = w.settledState()
			return nil, fmt.Errorf("minute backfill: %w", err)
		}
	}
	w.state = stateLive
	return trimAfter(w.buf.Snapshot(), now), nil
}

// sessionWindow resolves exactly n sessions ending at the clock.
func (s *Service) sessionWindow(ctx context.Context, at time.Time, n int) ([]domain.Session, error) {
	sessions, err := s.calendar.SessionsBefore(ctx, at, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalendarResolution, err)
	}
	if len(sessions) < n {
		return nil, fmt.Errorf("%w: wanted %d sessions at %s, calendar resolved %d",
			ErrCalendarResolution, n, at.Format(time.RFC3339), len(sessions))
	}
	return sessions, nil
}

// minuteGrid resolves the last n trading minute labels at or before now,
// walking back across sessions. Half-days contribute their shortened minute
// ranges, so a large count may span more calendar dates than n/390 suggests.
func (s *Service) minuteGrid(ctx context.Context, now time.Time, n int) ([]time.Time, error) {
	span := n/halfDayMinutes + 2
	sessions, err := s.calendar.SessionsBefore(ctx, now, span)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalendarResolution, err)
	}
	var minutes []time.Time
	for i := len(sessions) - 1; i >= 0 && len(minutes) < n; i-- {
		var part []time.Time
		if i == len(sessions)-1 {
			part = sessions[i].MinutesUntil(now)
		} else {
			part = sessions[i].Minutes()
		}
		minutes = append(part, minutes...)
	}
	if len(minutes) < n {
		return nil, fmt.Errorf("%w: wanted %d trading minutes at %s, calendar resolved %d",
			ErrCalendarResolution, n, now.Format(time.RFC3339), len(minutes))
	}
	return minutes[len(minutes)-n:], nil
}

func (s *Service) window(key bufferKey) *assetWindow {
	s.mu.RLock()
	w := s.windows[key]
	s.mu.RUnlock()
	if w != nil {
		return w
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if w = s.windows[key]; w == nil {
		w = &assetWindow{}
		s.windows[key] = w
	}
	return w
}

func (s *Service) lookup(key bufferKey) *assetWindow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.windows[key]
}

// settledState is the state a window falls back to after a failed extension:
// the buffer itself was left untouched.
func (w *assetWindow) settledState() windowState {
	if w.buf == nil || w.buf.Len() == 0 {
		return stateUninitialized
	}
	return stateLive
}

func fillPolicy(ffill bool) domain.FillPolicy {
	if ffill {
		return domain.FillCarryForward
	}
	return domain.FillPreserveGaps
}

// trimAfter drops bars stamped after t, enforcing the no-lookahead bound.
func trimAfter(bars []domain.Bar, t time.Time) []domain.Bar {
	for i := len(bars) - 1; i >= 0; i-- {
		if !bars[i].Timestamp.After(t) {
			return bars[:i+1]
		}
	}
	return nil
}
