// Package broadcast implements the dirty-signal coalescing and debounced
// fan-out described in spec.md §4.4: any number of markDirty calls between
// broadcasts collapses to exactly one snapshot.
package broadcast

// Signal is a binary coalescing signal. Mark is non-blocking and safe to
// call while holding an external lock (e.g. the State Store's mutex).
type Signal struct {
	ch chan struct{}
}

func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Mark raises the signal. Multiple calls before the next receive coalesce
// into one pending wakeup.
func (s *Signal) Mark() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// C returns the channel the broadcaster waits on.
func (s *Signal) C() <-chan struct{} {
	return s.ch
}
