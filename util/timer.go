package util

import "time"

// Timer wraps time.Timer and remembers whether its channel was consumed, so
// Reset never blocks on an already drained channel.
type Timer struct {
	impl    *time.Timer
	drained bool
}

func NewTimer(d time.Duration) *Timer {
	impl := time.NewTimer(d)
	return &Timer{impl, false}
}

// Wait returns true if done is closed before the timer fires.
func (t *Timer) Wait(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	case <-t.impl.C:
		t.drained = true
		return false
	}
}

func (t *Timer) Stop() {
	if !t.impl.Stop() && !t.drained {
		select {
		case <-t.impl.C:
		default:
		}
	}
	t.drained = true
}

func (t *Timer) Reset(d time.Duration) {
	if !t.drained && !t.impl.Stop() {
		<-t.impl.C
	}
	t.impl.Reset(d)
	t.drained = false
}
