package history

import "errors"

var (
	// ErrInvalidWindowSpec is returned for a malformed window spec string.
	ErrInvalidWindowSpec = errors.New("invalid window spec")
	// ErrUnknownField is returned for an unrecognized field name.
	ErrUnknownField = errors.New("unknown field")
	// ErrBackfillUnavailable is returned when the bar store cannot supply
	// the requested historical depth. Callers may recover by degrading the
	// requested window length.
	ErrBackfillUnavailable = errors.New("backfill unavailable")
	// ErrCalendarResolution is returned when the trading calendar cannot
	// resolve session boundaries for the requested range.
	ErrCalendarResolution = errors.New("calendar resolution failed")
)
