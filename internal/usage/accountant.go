// Package usage implements the session time accounting state machine.
//
// A session is Paused when StartedAt is zero and Running otherwise. While
// running, the effective balance at now is RemainingSecs minus the time
// elapsed since StartedAt, floored at zero. Every calculation saturates.
package usage

import "github.com/goodtune/accesstime/internal/storage"

// Transition describes what a Start or Pause call did.
type Transition int

const (
	// Unchanged means the call was a no-op.
	Unchanged Transition = iota
	// Started means the session moved from Paused to Running.
	Started
	// Paused means the session moved from Running to Paused.
	Paused
)

func (t Transition) String() string {
	switch t {
	case Started:
		return "started"
	case Paused:
		return "paused"
	default:
		return "unchanged"
	}
}

// Running reports whether the session clock is running.
func Running(s storage.Session) bool {
	return s.StartedAt > 0
}

// Remaining returns the effective balance at now.
func Remaining(s storage.Session, now uint64) uint64 {
	if !Running(s) {
		return s.RemainingSecs
	}
	return saturatingSub(s.RemainingSecs, saturatingSub(now, s.StartedAt))
}

// IsActive reports whether the session is running with time left at now.
func IsActive(s storage.Session, now uint64) bool {
	return Running(s) && Remaining(s, now) > 0
}

// ExpiresAt returns when a running session runs out, or 0 when paused.
func ExpiresAt(s storage.Session) uint64 {
	if !Running(s) {
		return 0
	}
	return saturatingAdd(s.StartedAt, s.RemainingSecs)
}

// Start begins consuming the balance at now. Sessions that are already
// running keep their original start time, and an empty balance stays paused.
// A zero now cannot be recorded as a start time, so it is also a no-op.
func Start(s *storage.Session, now uint64) Transition {
	if Running(*s) || s.RemainingSecs == 0 || now == 0 {
		return Unchanged
	}
	s.StartedAt = now
	return Started
}

// Pause folds the elapsed time into the balance and stops the clock.
func Pause(s *storage.Session, now uint64) Transition {
	if !Running(*s) {
		return Unchanged
	}
	s.RemainingSecs = Remaining(*s, now)
	s.StartedAt = 0
	return Paused
}

// Credit adds secs to the balance without touching the clock and returns
// the new stored balance.
func Credit(s *storage.Session, secs uint64) uint64 {
	s.RemainingSecs = saturatingAdd(s.RemainingSecs, secs)
	return s.RemainingSecs
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}

func saturatingAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}
	return sum
}
