// Package scheduler implements the per-monitor adaptive polling clock.
//
// A Scheduler answers one question, ShouldPoll, from the time of the last
// poll and the current interval. The interval is set from the interpreter's
// "minutes until something interesting" hint, clamped into [Min, Max] so
// the data source is never polled faster than Min and data is never staler
// than Max. A nil hint resets the interval to Default.
//
// Scheduler never sleeps; callers idle when ShouldPoll is false.
package scheduler

import (
	"math"
	"sync"
	"time"
)

// Default polling bounds.
const (
	DefaultInterval = 60 * time.Second
	DefaultMin      = 10 * time.Second
	DefaultMax      = 300 * time.Second
)

// Bounds configures a Scheduler.
type Bounds struct {
	Default time.Duration
	Min     time.Duration
	Max     time.Duration
}

// DefaultBounds returns the 60s/10s/300s policy.
func DefaultBounds() Bounds {
	return Bounds{Default: DefaultInterval, Min: DefaultMin, Max: DefaultMax}
}

// clamp returns d limited to [b.Min, b.Max].
func (b Bounds) clamp(d time.Duration) time.Duration {
	if d < b.Min {
		return b.Min
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// clampMinutes converts a minutes hint to whole seconds limited to
// [b.Min, b.Max]. The comparison happens before the conversion so huge or
// infinite hints cannot overflow into a negative Duration. NaN gives Min.
func (b Bounds) clampMinutes(minutes float64) time.Duration {
	d := minutes * 60 * float64(time.Second)
	switch {
	case math.IsNaN(d) || d < float64(b.Min):
		return b.Min
	case d > float64(b.Max):
		return b.Max
	}
	return b.clamp(time.Duration(d).Truncate(time.Second))
}

// Scheduler is safe for concurrent use.
type Scheduler struct {
	mu       sync.Mutex
	bounds   Bounds
	lastPoll time.Time // zero until the first MarkPolled
	next     time.Duration
	now      func() time.Time // injectable for deterministic tests
}

// New returns a Scheduler that will poll immediately.
func New(b Bounds) *Scheduler {
	return &Scheduler{
		bounds: b,
		next:   b.clamp(b.Default),
		now:    time.Now,
	}
}

// NewWithClock is New with an explicit time source.
func NewWithClock(b Bounds, now func() time.Time) *Scheduler {
	s := New(b)
	if now != nil {
		s.now = now
	}
	return s
}

// ShouldPoll reports whether a poll is due: never polled, or at least the
// current interval has elapsed since the last poll.
func (s *Scheduler) ShouldPoll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastPoll.IsZero() {
		return true
	}
	return s.now().Sub(s.lastPoll) >= s.next
}

// MarkPolled records the current time as the last poll.
func (s *Scheduler) MarkPolled() {
	s.mu.Lock()
	s.lastPoll = s.now()
	s.mu.Unlock()
}

// SetNextInterval converts a minutes hint into the next interval, clamped
// into bounds. A nil hint reverts to the default interval.
func (s *Scheduler) SetNextInterval(hintMinutes *float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hintMinutes == nil {
		s.next = s.bounds.clamp(s.bounds.Default)
		return
	}
	s.next = s.bounds.clampMinutes(*hintMinutes)
}

// NextInterval returns the interval currently in effect.
func (s *Scheduler) NextInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Until returns the time left before the next poll is due (0 if due now).
func (s *Scheduler) Until() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastPoll.IsZero() {
		return 0
	}
	remaining := s.next - s.now().Sub(s.lastPoll)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SetBounds replaces the bounds. The new bounds apply from the next
// SetNextInterval call.
func (s *Scheduler) SetBounds(b Bounds) {
	s.mu.Lock()
	s.bounds = b
	s.mu.Unlock()
}
