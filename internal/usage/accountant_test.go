package usage

import (
	"math"
	"testing"

	"github.com/goodtune/accesstime/internal/storage"
)

func TestRemaining(t *testing.T) {
	tests := []struct {
		name    string
		session storage.Session
		now     uint64
		want    uint64
	}{
		{"paused", storage.Session{RemainingSecs: 3480}, 5000, 3480},
		{"running", storage.Session{RemainingSecs: 3600, StartedAt: 1000}, 1120, 3480},
		{"running at start", storage.Session{RemainingSecs: 3600, StartedAt: 1000}, 1000, 3600},
		{"exhausted", storage.Session{RemainingSecs: 60, StartedAt: 1000}, 2000, 0},
		{"clock behind start", storage.Session{RemainingSecs: 60, StartedAt: 1000}, 10, 60},
		{"max values", storage.Session{RemainingSecs: math.MaxUint64, StartedAt: 1}, math.MaxUint64, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Remaining(tt.session, tt.now); got != tt.want {
				t.Errorf("Remaining = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRemainingNonIncreasingWhileRunning(t *testing.T) {
	s := storage.Session{RemainingSecs: 500, StartedAt: 100}
	prev := Remaining(s, 100)
	for now := uint64(100); now < 800; now += 7 {
		got := Remaining(s, now)
		if got > prev {
			t.Fatalf("remaining increased at %d: %d > %d", now, got, prev)
		}
		prev = got
	}
	if prev != 0 {
		t.Fatalf("expected balance to reach 0, got %d", prev)
	}
}

func TestStart(t *testing.T) {
	tests := []struct {
		name    string
		session storage.Session
		now     uint64
		want    Transition
		started uint64
	}{
		{"paused with balance", storage.Session{RemainingSecs: 10}, 1000, Started, 1000},
		{"empty balance", storage.Session{}, 1000, Unchanged, 0},
		{"already running", storage.Session{RemainingSecs: 10, StartedAt: 500}, 1000, Unchanged, 500},
		{"zero clock", storage.Session{RemainingSecs: 10}, 0, Unchanged, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.session
			if got := Start(&s, tt.now); got != tt.want {
				t.Errorf("Start = %v, want %v", got, tt.want)
			}
			if s.StartedAt != tt.started {
				t.Errorf("StartedAt = %d, want %d", s.StartedAt, tt.started)
			}
		})
	}
}

func TestPause(t *testing.T) {
	s := storage.Session{RemainingSecs: 3600, StartedAt: 1000}
	if got := Pause(&s, 1120); got != Paused {
		t.Fatalf("Pause = %v, want paused", got)
	}
	if s.RemainingSecs != 3480 || s.StartedAt != 0 {
		t.Fatalf("unexpected session after pause: %+v", s)
	}

	if got := Pause(&s, 1720); got != Unchanged {
		t.Fatalf("second Pause = %v, want unchanged", got)
	}
	if Remaining(s, 1720) != 3480 {
		t.Fatalf("paused balance changed: %d", Remaining(s, 1720))
	}
}

func TestPauseAfterExhaustion(t *testing.T) {
	s := storage.Session{RemainingSecs: 60, StartedAt: 1000}
	Pause(&s, 5000)
	if s.RemainingSecs != 0 || s.StartedAt != 0 {
		t.Fatalf("unexpected session: %+v", s)
	}
}

func TestCreditSaturatesAndKeepsClock(t *testing.T) {
	s := storage.Session{RemainingSecs: math.MaxUint64 - 5, StartedAt: 42}
	if got := Credit(&s, 100); got != math.MaxUint64 {
		t.Fatalf("Credit = %d, want max", got)
	}
	if s.StartedAt != 42 {
		t.Fatalf("Credit changed StartedAt to %d", s.StartedAt)
	}
}

func TestIsActiveAndExpiresAt(t *testing.T) {
	running := storage.Session{RemainingSecs: 100, StartedAt: 1000}
	if !IsActive(running, 1050) {
		t.Error("expected running session with balance to be active")
	}
	if IsActive(running, 1100) {
		t.Error("expected exhausted session to be inactive")
	}
	if IsActive(storage.Session{RemainingSecs: 100}, 1050) {
		t.Error("expected paused session to be inactive")
	}

	if got := ExpiresAt(running); got != 1100 {
		t.Errorf("ExpiresAt = %d, want 1100", got)
	}
	if got := ExpiresAt(storage.Session{RemainingSecs: 100}); got != 0 {
		t.Errorf("ExpiresAt paused = %d, want 0", got)
	}
	if got := ExpiresAt(storage.Session{RemainingSecs: math.MaxUint64, StartedAt: 2}); got != math.MaxUint64 {
		t.Errorf("ExpiresAt saturating = %d, want max", got)
	}
}
