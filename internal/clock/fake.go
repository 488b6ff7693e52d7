package clock

import (
	"sync"
	"time"
)

// Fake implements Clock with a controllable time value. Timers fire only
// when Advance or Set moves the clock past their deadline.
type Fake struct {
	mu      sync.Mutex
	current time.Time
	timers  []*fakeTimer
}

// NewFake creates a fake clock initialized to t. If t is zero, the clock
// starts at the current wall time.
func NewFake(t time.Time) *Fake {
	if t.IsZero() {
		t = time.Now()
	}
	return &Fake{current: t}
}

// Now returns the current time according to this clock.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// NewTimer creates a timer that fires when the clock reaches now+d.
func (f *Fake) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTimer{
		clock:    f,
		deadline: f.current.Add(d),
		ch:       make(chan time.Time, 1),
	}
	if d <= 0 {
		t.fired = true
		t.ch <- f.current
		return t
	}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the clock forward by d and fires every timer whose
// deadline has been reached.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.current = f.current.Add(d)
	f.fireLocked()
	f.mu.Unlock()
}

// Set moves the clock to t and fires due timers.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.current = t
	f.fireLocked()
	f.mu.Unlock()
}

// Timers returns the number of armed timers that have not fired or been
// stopped. Tests use it to wait until a goroutine has armed its deadline.
func (f *Fake) Timers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *Fake) fireLocked() {
	remaining := f.timers[:0]
	for _, t := range f.timers {
		if !t.deadline.After(f.current) {
			t.fired = true
			t.ch <- f.current
			continue
		}
		remaining = append(remaining, t)
	}
	f.timers = remaining
}

func (f *Fake) stop(t *fakeTimer) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	for i, armed := range f.timers {
		if armed == t {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			break
		}
	}
	return true
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	ch       chan time.Time
	fired    bool
	stopped  bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }
func (t *fakeTimer) Stop() bool          { return t.clock.stop(t) }
