// Package clock provides the logical timestamp every duration is computed with
// and the timers the trackers schedule on.
package clock

import (
	"sync"
	"time"
)

// DefaultTimezone is used when no timezone is configured.
const DefaultTimezone = "Asia/Kolkata"

// Stopper cancels a scheduled timer. Stop is safe to call more than once.
type Stopper interface {
	Stop()
}

// Clock supplies logical time and timers.
type Clock interface {
	Now() Timestamp
	AfterFunc(d time.Duration, fn func()) Stopper
	Every(d time.Duration, fn func()) Stopper
}

// Real is the production Clock. Now reads the wall clock in a fixed location so
// that clients in different timezones agree on timestamps.
type Real struct {
	loc *time.Location
}

// NewClock returns a Clock pinned to loc.
func NewClock(loc *time.Location) *Real {
	if loc == nil {
		loc = time.UTC
	}
	return &Real{loc: loc}
}

// LoadClock resolves a timezone name and returns a Clock for it.
func LoadClock(name string) (*Real, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	return NewClock(loc), nil
}

// Now returns the wall-clock reading in the fixed location.
func (r *Real) Now() Timestamp {
	return FromWallClock(time.Now(), r.loc)
}

// AfterFunc runs fn once after d.
func (r *Real) AfterFunc(d time.Duration, fn func()) Stopper {
	return &realTimer{t: time.AfterFunc(d, fn)}
}

// Every runs fn every d until stopped. Ticks are not queued: a slow fn delays
// the next one rather than piling up calls.
func (r *Real) Every(d time.Duration, fn func()) Stopper {
	t := &realTicker{ticker: time.NewTicker(d), done: make(chan struct{})}
	go func() {
		for {
			select {
			case <-t.done:
				return
			case <-t.ticker.C:
				fn()
			}
		}
	}()
	return t
}

type realTimer struct {
	t *time.Timer
}

func (r *realTimer) Stop() { r.t.Stop() }

type realTicker struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (r *realTicker) Stop() {
	r.once.Do(func() {
		r.ticker.Stop()
		close(r.done)
	})
}
