package clock

import (
	"sync"
	"time"
)

// Fake is a manually driven Clock. Timers only fire inside Advance, on the
// caller's goroutine, in due order.
type Fake struct {
	mu     sync.Mutex
	now    Timestamp
	seq    int
	timers map[int]*fakeTimer
}

type fakeTimer struct {
	f      *Fake
	id     int
	due    Timestamp
	period time.Duration
	fn     func()
}

// NewFake returns a Fake clock reading start.
func NewFake(start Timestamp) *Fake {
	return &Fake{now: start, timers: make(map[int]*fakeTimer)}
}

// Now returns the current fake time.
func (f *Fake) Now() Timestamp {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock without firing timers. Useful for simulating clock skew.
func (f *Fake) Set(ts Timestamp) {
	f.mu.Lock()
	f.now = ts
	f.mu.Unlock()
}

// AfterFunc schedules fn once after d.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Stopper {
	return f.schedule(d, 0, fn)
}

// Every schedules fn every d.
func (f *Fake) Every(d time.Duration, fn func()) Stopper {
	if d <= 0 {
		panic("clock: non-positive interval")
	}
	return f.schedule(d, d, fn)
}

func (f *Fake) schedule(d, period time.Duration, fn func()) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{f: f, id: f.seq, due: f.now.Add(d), period: period, fn: fn}
	f.timers[t.id] = t
	return t
}

// Stop cancels the timer.
func (t *fakeTimer) Stop() {
	t.f.mu.Lock()
	delete(t.f.timers, t.id)
	t.f.mu.Unlock()
}

// Advance moves time forward by d, firing every timer that falls due.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		var next *fakeTimer
		for _, t := range f.timers {
			if t.due > target {
				continue
			}
			if next == nil || t.due < next.due || (t.due == next.due && t.id < next.id) {
				next = t
			}
		}
		if next == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = next.due
		if next.period > 0 {
			next.due = next.due.Add(next.period)
		} else {
			delete(f.timers, next.id)
		}
		fn := next.fn
		f.mu.Unlock()

		fn()
	}
}

// Pending returns how many timers are still scheduled.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}
