package interfaces

import "time"

// Clock supplies the current simulated or wall-clock time. Every read path of
// the history engine is bounded by it: no bar stamped after Now() is ever
// returned.
type Clock interface {
	Now() time.Time
}
