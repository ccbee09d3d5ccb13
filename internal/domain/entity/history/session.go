package history

import "time"

// Session is one trading calendar day. Non-trading days are simply absent
// from any session sequence; a half-day counts as one full session unit.
type Session struct {
	Date    time.Time // session day at midnight UTC
	Open    time.Time // first trade of the session
	Close   time.Time // last trade of the session
	HalfDay bool
}

// Minutes returns the session's minute labels in ascending order. Each
// trading minute is labelled with its end, so a 09:30-16:00 session yields
// 390 labels from 09:31 through 16:00 and a half-day yields 210.
func (s Session) Minutes() []time.Time {
	n := int(s.Close.Sub(s.Open) / time.Minute)
	if n <= 0 {
		return nil
	}
	minutes := make([]time.Time, 0, n)
	for i := 1; i <= n; i++ {
		minutes = append(minutes, s.Open.Add(time.Duration(i)*time.Minute))
	}
	return minutes
}

// MinutesUntil returns the session's minute labels with label not after t.
func (s Session) MinutesUntil(t time.Time) []time.Time {
	minutes := s.Minutes()
	for i, label := range minutes {
		if label.After(t) {
			return minutes[:i]
		}
	}
	return minutes
}

// Contains reports whether t falls inside the session's trading hours.
func (s Session) Contains(t time.Time) bool {
	return !t.Before(s.Open) && !t.After(s.Close)
}
