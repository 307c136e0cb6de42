package ratelimit

import (
	"testing"
	"time"

	"peergate.dev/peergate/internal/clock"
)

func TestAllowBasic(t *testing.T) {
	l := NewLimiter()

	for i := 0; i < 3; i++ {
		if !l.Allow("test-key", 3, time.Minute) {
			t.Errorf("request %d should be allowed", i+1)
		}
	}

	if l.Allow("test-key", 3, time.Minute) {
		t.Error("4th request should be denied")
	}
}

func TestAllowIndependentKeys(t *testing.T) {
	l := NewLimiter()

	for i := 0; i < 2; i++ {
		if !l.Allow("key1", 2, time.Minute) {
			t.Errorf("key1 request %d should be allowed", i+1)
		}
		if !l.Allow("key2", 2, time.Minute) {
			t.Errorf("key2 request %d should be allowed", i+1)
		}
	}

	if l.Allow("key1", 2, time.Minute) {
		t.Error("key1 should be rate limited")
	}
	if l.Allow("key2", 2, time.Minute) {
		t.Error("key2 should be rate limited")
	}
}

func TestAllowRefill(t *testing.T) {
	l := NewLimiter()
	mock := clock.NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	l.clk = mock

	for i := 0; i < 2; i++ {
		l.Allow("refill-key", 2, time.Minute)
	}
	if l.Allow("refill-key", 2, time.Minute) {
		t.Error("should be rate limited before the window elapses")
	}

	// Partial elapse does not refill.
	mock.Advance(30 * time.Second)
	if l.Allow("refill-key", 2, time.Minute) {
		t.Error("should still be rate limited mid-window")
	}

	mock.Advance(31 * time.Second)
	if !l.Allow("refill-key", 2, time.Minute) {
		t.Error("should be allowed after the window elapses")
	}
}

func TestReset(t *testing.T) {
	l := NewLimiter()

	for i := 0; i < 3; i++ {
		l.Allow("reset-key", 3, time.Minute)
	}
	if l.Allow("reset-key", 3, time.Minute) {
		t.Error("should be rate limited")
	}

	l.Reset("reset-key")

	if !l.Allow("reset-key", 3, time.Minute) {
		t.Error("should be allowed after Reset")
	}
}

func TestCleanupExpired(t *testing.T) {
	l := NewLimiter()
	mock := clock.NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	l.clk = mock

	l.Allow("key1", 10, time.Minute)
	l.Allow("key2", 10, time.Minute)

	// Fresh buckets survive.
	l.CleanupExpired(time.Hour)
	l.mu.Lock()
	n := len(l.buckets)
	l.mu.Unlock()
	if n != 2 {
		t.Errorf("expected 2 buckets after cleanup, got %d", n)
	}

	// Idle buckets past maxAge are removed.
	mock.Advance(2 * time.Hour)
	l.CleanupExpired(time.Hour)
	l.mu.Lock()
	n = len(l.buckets)
	l.mu.Unlock()
	if n != 0 {
		t.Errorf("expected 0 buckets after idle cleanup, got %d", n)
	}
}

func TestConcurrentAccess(t *testing.T) {
	l := NewLimiter()
	done := make(chan bool)

	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				l.Allow("concurrent-key", 1000, time.Minute)
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}
