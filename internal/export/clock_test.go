package export

import (
	"testing"
	"time"
)

func TestFakeClock_AdvanceFiresInDeadlineOrder(t *testing.T) {
	clock := NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	var fired []string
	clock.AfterFunc(2*time.Second, func() { fired = append(fired, "second") })
	clock.AfterFunc(1*time.Second, func() { fired = append(fired, "first") })
	clock.AfterFunc(3*time.Second, func() { fired = append(fired, "third") })

	clock.Advance(5 * time.Second)

	if len(fired) != 3 {
		t.Fatalf("expected 3 callbacks, got %d", len(fired))
	}
	if fired[0] != "first" || fired[1] != "second" || fired[2] != "third" {
		t.Errorf("callbacks fired out of order: %v", fired)
	}
}

func TestFakeClock_AdvancePartially(t *testing.T) {
	clock := NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	fired := false
	clock.AfterFunc(10*time.Second, func() { fired = true })

	clock.Advance(9 * time.Second)
	if fired {
		t.Fatal("callback fired before its deadline")
	}

	clock.Advance(1 * time.Second)
	if !fired {
		t.Fatal("callback did not fire at its deadline")
	}
}

func TestFakeClock_CallbackSchedulesFollowup(t *testing.T) {
	clock := NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	var fired []string
	clock.AfterFunc(1*time.Second, func() {
		fired = append(fired, "outer")
		clock.AfterFunc(1*time.Second, func() { fired = append(fired, "inner") })
	})

	// A follow-up scheduled by a due callback fires in the same Advance
	// when its deadline falls inside the window.
	clock.Advance(3 * time.Second)

	if len(fired) != 2 || fired[0] != "outer" || fired[1] != "inner" {
		t.Errorf("expected chained callbacks to fire in order, got %v", fired)
	}
}

func TestFakeClock_StopCancelsPending(t *testing.T) {
	clock := NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	fired := false
	timer := clock.AfterFunc(1*time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("expected Stop to report cancellation")
	}
	clock.Advance(2 * time.Second)

	if fired {
		t.Error("cancelled callback fired")
	}
	if timer.Stop() {
		t.Error("second Stop should report nothing to cancel")
	}
}

func TestFakeClock_NowAdvances(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	clock.Advance(90 * time.Minute)

	if got, want := clock.Now(), start.Add(90*time.Minute); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
}
