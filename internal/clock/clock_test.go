package clock

import (
	"testing"
	"time"
)

func TestSeconds(t *testing.T) {
	c := NewTestClock(1000)
	if got := Seconds(c); got != 1000 {
		t.Fatalf("Seconds = %d, want 1000", got)
	}

	c.Advance(2 * time.Minute)
	if got := Seconds(c); got != 1120 {
		t.Fatalf("Seconds after advance = %d, want 1120", got)
	}

	c.Set(-5)
	if got := Seconds(c); got != 0 {
		t.Fatalf("Seconds before epoch = %d, want 0", got)
	}
}

func TestRealClockIsRecent(t *testing.T) {
	if Seconds(RealClock{}) == 0 {
		t.Fatal("expected real clock to be past the epoch")
	}
}
