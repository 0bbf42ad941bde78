package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestWait_FirstRequestImmediate(t *testing.T) {
	l := NewHostLimiter(time.Second)

	start := time.Now()
	if err := l.Wait(context.Background(), "boards.example.com"); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("first request waited %v, want immediate", elapsed)
	}
}

func TestWait_EnforcesDelayPerHost(t *testing.T) {
	l := NewHostLimiter(150 * time.Millisecond)
	ctx := context.Background()

	if err := l.Wait(ctx, "a.example.com"); err != nil {
		t.Fatal(err)
	}

	// A different host is not delayed.
	start := time.Now()
	if err := l.Wait(ctx, "b.example.com"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("different host waited %v, want immediate", elapsed)
	}

	// The same host is.
	start = time.Now()
	if err := l.Wait(ctx, "a.example.com"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("same host waited only %v, want ~150ms", elapsed)
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	l := NewHostLimiter(10 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	if err := l.Wait(ctx, "slow.example.com"); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := l.Wait(ctx, "slow.example.com"); err == nil {
		t.Fatal("Wait: expected error after context cancellation")
	}
}

func TestWait_ZeroDelayDisabled(t *testing.T) {
	l := NewHostLimiter(0)
	for i := 0; i < 5; i++ {
		if err := l.Wait(context.Background(), "x.example.com"); err != nil {
			t.Fatal(err)
		}
	}
}
