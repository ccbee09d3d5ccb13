package history

import (
	"fmt"
	"strconv"
	"strings"

	domain "lookback/internal/domain/entity/history"
)

// WindowSpec is the parsed form of a lookback request such as "5d" or "390m".
// DayAligned is set when a minute-granularity query used a d-suffixed spec:
// the window then always starts at a session's opening minute rather than at
// a mid-session rolling offset.
type WindowSpec struct {
	Granularity domain.Frequency
	Length      int
	DayAligned  bool
}

// ParseWindowSpec parses one or more digits followed by a single unit
// character, "d" for sessions or "m" for minute bars.
func ParseWindowSpec(text string) (WindowSpec, error) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 2 {
		return WindowSpec{}, fmt.Errorf("%w: %q", ErrInvalidWindowSpec, text)
	}

	digits := trimmed[:len(trimmed)-1]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return WindowSpec{}, fmt.Errorf("%w: %q has a non-numeric length", ErrInvalidWindowSpec, text)
		}
	}
	length, err := strconv.Atoi(digits)
	if err != nil {
		return WindowSpec{}, fmt.Errorf("%w: %q: %v", ErrInvalidWindowSpec, text, err)
	}
	if length <= 0 {
		return WindowSpec{}, fmt.Errorf("%w: %q must have a positive length", ErrInvalidWindowSpec, text)
	}

	switch trimmed[len(trimmed)-1] {
	case 'd':
		return WindowSpec{Granularity: domain.FrequencyDay, Length: length}, nil
	case 'm':
		return WindowSpec{Granularity: domain.FrequencyMinute, Length: length}, nil
	default:
		return WindowSpec{}, fmt.Errorf("%w: %q has an unrecognized unit", ErrInvalidWindowSpec, text)
	}
}
