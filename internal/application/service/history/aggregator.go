package history

import (
	"time"

	domain "lookback/internal/domain/entity/history"
)

// RollUp aggregates a session's minute bars into one session-level bar:
// open of the first minute, max high, min low, close of the last minute,
// summed volume. The result carries the session date as its timestamp.
// A session with zero observed minute bars yields ok=false — it is a gap for
// the fill policy to resolve, never a zero-filled bar.
func RollUp(sessionDate time.Time, minutes []domain.Bar) (domain.Bar, bool) {
	if len(minutes) == 0 {
		return domain.Bar{}, false
	}
	agg := domain.Bar{
		Timestamp: sessionDate,
		Open:      minutes[0].Open,
		High:      minutes[0].High,
		Low:       minutes[0].Low,
		Close:     minutes[len(minutes)-1].Close,
	}
	for _, m := range minutes {
		if m.High > agg.High {
			agg.High = m.High
		}
		if m.Low < agg.Low {
			agg.Low = m.Low
		}
		agg.Volume += m.Volume
	}
	return agg, true
}

// partialSession tracks the in-progress session's aggregate incrementally,
// one minute bar at a time. Its close changes tick by tick and freezes when
// the session rolls over; its volume is monotonically increasing.
type partialSession struct {
	session domain.Session
	bar     domain.Bar
	count   int
}

func newPartialSession(session domain.Session) *partialSession {
	return &partialSession{session: session}
}

func (p *partialSession) apply(minute domain.Bar) {
	if p.count == 0 {
		p.bar = domain.Bar{
			Timestamp: p.session.Date,
			Open:      minute.Open,
			High:      minute.High,
			Low:       minute.Low,
			Close:     minute.Close,
			Volume:    minute.Volume,
		}
		p.count = 1
		return
	}
	if minute.High > p.bar.High {
		p.bar.High = minute.High
	}
	if minute.Low < p.bar.Low {
		p.bar.Low = minute.Low
	}
	p.bar.Close = minute.Close
	p.bar.Volume += minute.Volume
	p.count++
}

// aggregate returns the session bar so far; ok=false while no minute bar has
// been observed.
func (p *partialSession) aggregate() (domain.Bar, bool) {
	if p == nil || p.count == 0 {
		return domain.Bar{}, false
	}
	return p.bar, true
}
