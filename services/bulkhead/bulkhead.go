package bulkhead

import (
	"sync/atomic"
)

// Bulkhead is a per-backend bounded admission gate on in-flight requests.
// TryAcquire never blocks: callers that cannot get a slot move on to the next
// candidate instead of queuing. Safe for concurrent use.
type Bulkhead struct {
	limit    int64
	inFlight atomic.Int64
}

// New creates a Bulkhead with the given concurrency limit.
func New(limit int) *Bulkhead {
	if limit <= 0 {
		limit = 1
	}
	return &Bulkhead{limit: int64(limit)}
}

// TryAcquire atomically reserves one slot, or reports capacity exceeded
// immediately without blocking.
func (b *Bulkhead) TryAcquire() bool {
	for {
		cur := b.inFlight.Load()
		if cur >= b.limit {
			return false
		}
		if b.inFlight.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Release returns a slot. Must be called exactly once per successful
// TryAcquire, on every completion path including errors and cancellation.
func (b *Bulkhead) Release() {
	if b.inFlight.Add(-1) < 0 {
		panic("bulkhead: release without acquire")
	}
}

// Available reports whether a slot could currently be acquired.
func (b *Bulkhead) Available() bool {
	return b.inFlight.Load() < b.limit
}

// InFlight returns the current number of reserved slots.
func (b *Bulkhead) InFlight() int {
	return int(b.inFlight.Load())
}

// Limit returns the configured concurrency limit.
func (b *Bulkhead) Limit() int {
	return int(b.limit)
}
