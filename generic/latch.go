package generic

import "sync/atomic"

// =============================================================================
// LATCH - At-most-one in-flight submission
// =============================================================================

// Latch guards a single operation instance (one shift finalize, one receipt
// confirm) so that only one submission is outstanding at a time. Contention
// across instances is the persistence layer's problem.
type Latch struct {
	busy atomic.Bool
}

// Acquire claims the latch or returns ErrInFlight.
func (l *Latch) Acquire() error {
	if !l.busy.CompareAndSwap(false, true) {
		return ErrInFlight
	}
	return nil
}

// Release frees the latch. Releasing a free latch is a no-op.
func (l *Latch) Release() {
	l.busy.Store(false)
}

// InFlight reports whether a submission is outstanding.
func (l *Latch) InFlight() bool {
	return l.busy.Load()
}
