package history

import (
	"fmt"

	domain "lookback/internal/domain/entity/history"
)

// RollingBuffer is a bounded, index-addressed circular sequence of bars in
// strictly ascending timestamp order. The arena is a plain slice with head
// and size counters; an append beyond capacity overwrites the oldest slot.
// Capacity is monotonically non-decreasing: it changes only through Grow or
// Prepend, which never evict.
type RollingBuffer struct {
	bars []domain.Bar
	head int
	size int
}

func NewRollingBuffer(capacity int) *RollingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RollingBuffer{bars: make([]domain.Bar, capacity)}
}

func (b *RollingBuffer) Len() int {
	return b.size
}

func (b *RollingBuffer) Cap() int {
	return len(b.bars)
}

func (b *RollingBuffer) at(i int) domain.Bar {
	return b.bars[(b.head+i)%len(b.bars)]
}

// First returns the oldest buffered bar.
func (b *RollingBuffer) First() (domain.Bar, bool) {
	if b.size == 0 {
		return domain.Bar{}, false
	}
	return b.at(0), true
}

// Last returns the newest buffered bar.
func (b *RollingBuffer) Last() (domain.Bar, bool) {
	if b.size == 0 {
		return domain.Bar{}, false
	}
	return b.at(b.size - 1), true
}

// Append adds a bar at the newest end. A bar stamped equal to the newest
// entry replaces it in place (live partial updates); a bar stamped earlier is
// a stale tick and is dropped, keeping the ordering invariant. When the
// buffer is full the oldest entry is overwritten.
func (b *RollingBuffer) Append(bar domain.Bar) {
	if b.size > 0 {
		last := b.at(b.size - 1)
		if bar.Timestamp.Equal(last.Timestamp) {
			b.bars[(b.head+b.size-1)%len(b.bars)] = bar
			return
		}
		if bar.Timestamp.Before(last.Timestamp) {
			return
		}
	}
	if b.size == len(b.bars) {
		b.bars[b.head] = bar
		b.head = (b.head + 1) % len(b.bars)
		return
	}
	b.bars[(b.head+b.size)%len(b.bars)] = bar
	b.size++
}

// Grow raises the capacity without evicting anything. Shrinking is not
// supported; a smaller capacity is a no-op.
func (b *RollingBuffer) Grow(capacity int) {
	if capacity <= len(b.bars) {
		return
	}
	arena := make([]domain.Bar, capacity)
	for i := 0; i < b.size; i++ {
		arena[i] = b.at(i)
	}
	b.bars = arena
	b.head = 0
}

// Prepend inserts older entries before the current contents, growing
// capacity as needed so nothing is evicted. The entries must be in ascending
// order and strictly predate the buffer's first bar; the buffer is left
// untouched on error (all-or-nothing extension).
func (b *RollingBuffer) Prepend(older []domain.Bar) error {
	if len(older) == 0 {
		return nil
	}
	for i := 1; i < len(older); i++ {
		if !older[i].Timestamp.After(older[i-1].Timestamp) {
			return fmt.Errorf("prepended bars are not strictly ascending at index %d", i)
		}
	}
	if first, ok := b.First(); ok {
		newest := older[len(older)-1]
		if !newest.Timestamp.Before(first.Timestamp) {
			return fmt.Errorf("prepended bar %s does not predate buffered bar %s",
				newest.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
				first.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
		}
	}

	capacity := b.size + len(older)
	if capacity < len(b.bars) {
		capacity = len(b.bars)
	}
	arena := make([]domain.Bar, capacity)
	copy(arena, older)
	for i := 0; i < b.size; i++ {
		arena[len(older)+i] = b.at(i)
	}
	b.bars = arena
	b.head = 0
	b.size += len(older)
	return nil
}

// Snapshot returns an ordered copy of the buffered bars. The copy never
// aliases the arena, so readers cannot observe a partially-applied tick.
func (b *RollingBuffer) Snapshot() []domain.Bar {
	out := make([]domain.Bar, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.at(i)
	}
	return out
}
