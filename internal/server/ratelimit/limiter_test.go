package ratelimit

import (
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, requests int, window time.Duration, burst int) (*Limiter, *time.Time) {
	t.Helper()
	l := NewLimiter(requests, window, burst)
	t.Cleanup(l.Close)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiter_Allow(t *testing.T) {
	l, now := newTestLimiter(t, 5, time.Minute, 5)
	for i := range 5 {
		r := l.Allow("k")
		if !r.Allowed {
			t.Errorf("request %d should be allowed", i+1)
		}
		if r.Limit != 5 {
			t.Errorf("Limit = %d, want 5", r.Limit)
		}
		if r.Remaining != 4-i {
			t.Errorf("request %d: Remaining = %d, want %d", i+1, r.Remaining, 4-i)
		}
	}
	r := l.Allow("k")
	if r.Allowed {
		t.Fatal("6th request should be rate limited")
	}
	if r.RetryAfter != 12*time.Second {
		t.Errorf("RetryAfter = %v, want 12s", r.RetryAfter)
	}
	if !r.ResetAt.Equal(now.Add(time.Minute)) {
		t.Errorf("ResetAt = %v, want %v", r.ResetAt, now.Add(time.Minute))
	}

	// A token refills after 12s.
	*now = now.Add(13 * time.Second)
	if r := l.Allow("k"); !r.Allowed {
		t.Error("request after refill should be allowed")
	}
}

func TestLimiter_DifferentKeys(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Minute, 1)
	if !l.Allow("a").Allowed {
		t.Fatal("first request for a should be allowed")
	}
	if l.Allow("a").Allowed {
		t.Error("second request for a should be limited")
	}
	if !l.Allow("b").Allowed {
		t.Error("b should have its own bucket")
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	l, now := newTestLimiter(t, 60, time.Minute, 10)
	l.Allow("old")
	*now = now.Add(11 * time.Minute)
	l.Allow("fresh")
	l.cleanup()
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.buckets["old"]; ok {
		t.Error("stale bucket not removed")
	}
	if _, ok := l.buckets["fresh"]; !ok {
		t.Error("active bucket removed")
	}
}

func TestLimiter_CloseTwice(t *testing.T) {
	l := NewLimiter(1, time.Second, 1)
	l.Close()
	l.Close()
}
