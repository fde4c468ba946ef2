package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterCapsHits(t *testing.T) {
	l := NewLimiter(3, time.Minute)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if !l.allowAt("10.0.0.1", now) {
			t.Fatalf("hit %d should be allowed", i+1)
		}
	}
	if l.allowAt("10.0.0.1", now) {
		t.Fatal("fourth hit should be rejected")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	if !l.allowAt("a", now) {
		t.Fatal("first key should be allowed")
	}
	if !l.allowAt("b", now) {
		t.Fatal("second key should be allowed")
	}
}

func TestLimiterReadmitsAfterWindow(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	if !l.allowAt("a", now) {
		t.Fatal("first hit should be allowed")
	}
	if l.allowAt("a", now.Add(30*time.Second)) {
		t.Fatal("hit inside window should be rejected")
	}
	if !l.allowAt("a", now.Add(61*time.Second)) {
		t.Fatal("hit after window should be readmitted")
	}
}
