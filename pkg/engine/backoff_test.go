package engine

import (
	"context"
	"testing"
	"time"
)

func TestBackoffDelayBounds(t *testing.T) {
	cases := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{1, time.Second, time.Second + maxJitter},
		{2, 2 * time.Second, 2*time.Second + maxJitter},
		{3, 4 * time.Second, 4*time.Second + maxJitter},
		{4, 8 * time.Second, 8*time.Second + maxJitter},
		{5, maxDelay, maxDelay},
		{6, maxDelay, maxDelay},
		{10, maxDelay, maxDelay},
		{50, maxDelay, maxDelay},
	}

	for _, tc := range cases {
		for i := 0; i < 100; i++ {
			delay := backoffDelay(tc.attempt, defaultJitter)
			if delay < tc.min || delay > tc.max {
				t.Fatalf("attempt %d: delay %v outside [%v, %v]", tc.attempt, delay, tc.min, tc.max)
			}
		}
	}
}

func TestBackoffDelayDeterministicWithoutJitter(t *testing.T) {
	zero := func() time.Duration { return 0 }

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, maxDelay}
	for i, expected := range want {
		if got := backoffDelay(i+1, zero); got != expected {
			t.Fatalf("attempt %d: delay = %v, want %v", i+1, got, expected)
		}
	}

	if got := backoffDelay(0, zero); got != time.Second {
		t.Fatalf("attempt 0 clamps to first delay, got %v", got)
	}
}

func TestBackoffJitterNeverExceedsCap(t *testing.T) {
	// 8s + up to 2.5s jitter must still respect the 10s ceiling.
	big := func() time.Duration { return 2500 * time.Millisecond }
	if got := backoffDelay(4, big); got != maxDelay {
		t.Fatalf("delay = %v, want cap %v", got, maxDelay)
	}
}

func TestDefaultJitterRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		j := defaultJitter()
		if j < 0 || j >= maxJitter {
			t.Fatalf("jitter %v outside [0, %v)", j, maxJitter)
		}
	}
}

func TestSleepContextHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleepContext(ctx, time.Minute)
	if err == nil {
		t.Fatal("expected context error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("sleep did not abort promptly, took %v", elapsed)
	}
}

func TestSleepContextCompletes(t *testing.T) {
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("sleepContext error: %v", err)
	}
}
