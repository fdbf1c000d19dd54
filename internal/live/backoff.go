package live

import "time"

const (
	DefaultBackoffFloor   = 500 * time.Millisecond
	DefaultBackoffCeiling = 15 * time.Second
)

// Backoff yields exponentially growing reconnect delays. It is not safe
// for concurrent use; the Manager guards it with its own lock.
type Backoff struct {
	floor   time.Duration
	ceiling time.Duration
	next    time.Duration
}

// NewBackoff creates a Backoff starting at floor and capped at ceiling.
// Non-positive values fall back to the defaults.
func NewBackoff(floor, ceiling time.Duration) *Backoff {
	if floor <= 0 {
		floor = DefaultBackoffFloor
	}
	if ceiling <= 0 {
		ceiling = DefaultBackoffCeiling
	}
	if ceiling < floor {
		ceiling = floor
	}
	return &Backoff{floor: floor, ceiling: ceiling, next: floor}
}

// Next returns the delay for the current failure and doubles the delay
// for the one after, up to the ceiling.
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next = min(d*2, b.ceiling)
	return d
}

// Reset returns the next delay to the floor.
func (b *Backoff) Reset() {
	b.next = b.floor
}
